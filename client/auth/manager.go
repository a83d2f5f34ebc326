// Package auth keeps the service credential valid without user interaction.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"idPhoto/client/apperrors"
	"idPhoto/client/dto"
	"idPhoto/client/models"
	"idPhoto/client/obs"
	"idPhoto/client/token"
)

const (
	DefaultRefreshMargin   = 30 * time.Minute
	DefaultIssuedLifetime  = time.Hour
	DefaultRefreshInterval = 30 * time.Minute
)

// Authenticator performs the credential exchange.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*dto.LoginResponse, error)
}

type Config struct {
	Username        string
	Password        string
	RefreshMargin   time.Duration
	IssuedLifetime  time.Duration
	RefreshInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
	if c.IssuedLifetime <= 0 {
		c.IssuedLifetime = DefaultIssuedLifetime
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	return c
}

// Manager is the only component that talks to the auth endpoint.
// Concurrent EnsureValid calls are not coalesced: each may refresh, and the
// last successful write to the store wins.
type Manager struct {
	store  token.Store
	authn  Authenticator
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger

	startOnce sync.Once
}

func NewManager(store token.Store, authn Authenticator, cfg Config, clock clockwork.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		authn:  authn,
		cfg:    cfg.withDefaults(),
		clock:  clock,
		logger: logger,
	}
}

// EnsureValid returns the stored credential, exchanging a new one when none
// is stored or the stored one expires within the refresh margin.
func (m *Manager) EnsureValid(ctx context.Context) (models.Credential, error) {
	current, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("Failed to load stored credential", zap.Error(err))
		current = nil
	}

	if current != nil && !current.ExpiresWithin(m.clock.Now(), m.cfg.RefreshMargin) {
		return *current, nil
	}

	return m.refresh(ctx)
}

// Invalidate drops the stored credential so the next EnsureValid
// re-authenticates.
func (m *Manager) Invalidate(ctx context.Context) error {
	return m.store.Clear(ctx)
}

func (m *Manager) refresh(ctx context.Context) (models.Credential, error) {
	resp, err := m.authn.Login(ctx, m.cfg.Username, m.cfg.Password)
	if err != nil {
		obs.CredentialRefreshes.WithLabelValues("failure").Inc()
		m.logger.Error("Credential exchange failed", zap.Error(err))
		return models.Credential{}, apperrors.Auth("credential exchange failed", err)
	}

	cred := models.Credential{
		Token:     resp.AccessToken,
		ExpiresAt: m.clock.Now().Add(m.cfg.IssuedLifetime),
	}
	if err := m.store.Save(ctx, cred); err != nil {
		obs.CredentialRefreshes.WithLabelValues("failure").Inc()
		return models.Credential{}, apperrors.Auth("store credential", err)
	}

	obs.CredentialRefreshes.WithLabelValues("success").Inc()
	m.logger.Info("Credential refreshed", zap.Time("expires_at", cred.ExpiresAt))
	return cred, nil
}

// Start launches the background refresher once per Manager. Later calls are
// no-ops. The refresher stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.Run(ctx)
	})
}

// Run checks the credential immediately and then every RefreshInterval until
// ctx is cancelled. Failures are logged and retried on the next tick.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.check(ctx)
		}
	}
}

func (m *Manager) check(ctx context.Context) {
	if _, err := m.EnsureValid(ctx); err != nil {
		m.logger.Warn("Scheduled credential check failed", zap.Error(err))
	}
}
