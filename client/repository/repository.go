package repository

import (
	"context"
	"errors"

	"idPhoto/client/models"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository stores processing history.
type Repository interface {
	CreateSession(ctx context.Context, rec *models.SessionRecord) error
	GetSession(ctx context.Context, id string) (*models.SessionRecord, error)
	UpdateSession(ctx context.Context, rec *models.SessionRecord) error
	ListRecent(ctx context.Context, limit int) ([]models.SessionRecord, error)
}
