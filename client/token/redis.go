package token

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"idPhoto/client/database"
	"idPhoto/client/models"
)

const credentialKey = "idphoto:credential"

// RedisStore shares one credential between processes. The key expires
// together with the credential.
type RedisStore struct {
	cache  *database.Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisStore(cache *database.Cache, logger *zap.Logger) *RedisStore {
	return &RedisStore{cache: cache, logger: logger, now: time.Now}
}

func (s *RedisStore) Load(ctx context.Context) (*models.Credential, error) {
	data, err := s.cache.Get(ctx, credentialKey)
	if errors.Is(err, database.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cred, err := decode([]byte(data))
	if err != nil {
		s.logger.Warn("Ignoring unreadable cached credential", zap.Error(err))
		return nil, nil
	}
	return cred, nil
}

func (s *RedisStore) Save(ctx context.Context, cred models.Credential) error {
	data, err := encode(cred)
	if err != nil {
		return err
	}

	ttl := cred.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.cache.Del(ctx, credentialKey)
	}
	return s.cache.Set(ctx, credentialKey, data, ttl)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.cache.Del(ctx, credentialKey)
}
