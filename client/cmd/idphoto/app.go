package main

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"idPhoto/client/api"
	"idPhoto/client/auth"
	"idPhoto/client/cache"
	"idPhoto/client/compositor"
	"idPhoto/client/config"
	"idPhoto/client/database"
	"idPhoto/client/kafka"
	"idPhoto/client/obs"
	"idPhoto/client/poller"
	"idPhoto/client/repository"
	"idPhoto/client/service"
	"idPhoto/client/sizes"
	"idPhoto/client/token"
)

// app holds the process-wide collaborators. Remote ones are built on first
// use so offline commands never touch the network.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clockwork.Clock
	debug  bool

	sizes      *sizes.Table
	compositor *compositor.Compositor

	remoteOnce sync.Once
	remoteErr  error
	client     *api.Client
	creds      *auth.Manager
	poller     *poller.Poller
	statuses   *cache.StatusCache
	history    repository.Repository
	publisher  kafka.Publisher

	cancel   context.CancelFunc
	closers  []func()
	shutdown obs.Shutdown
}

func newApp() *app {
	return &app{clock: clockwork.NewRealClock()}
}

func (a *app) init(ctx context.Context) error {
	if a.cfg == nil {
		a.cfg = config.Load()
	}

	logger, err := newLogger(a.cfg.LogLevel, a.debug)
	if err != nil {
		return err
	}
	a.logger = logger

	shutdown, err := obs.InitTracing(ctx, "idphoto", a.cfg.OTLPEndpoint)
	if err != nil {
		a.logger.Warn("Tracing disabled", zap.Error(err))
		shutdown = func(context.Context) error { return nil }
	}
	a.shutdown = shutdown

	table, err := sizes.LoadTable(a.cfg.SizesFile)
	if err != nil {
		return err
	}
	a.sizes = table
	a.compositor = compositor.NewCompositor(a.logger)
	return nil
}

func newLogger(level string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// remote connects the service client, credential manager and the optional
// redis, postgres and kafka backends, and starts the credential refresher.
func (a *app) remote(ctx context.Context) error {
	a.remoteOnce.Do(func() {
		a.remoteErr = a.connect(ctx)
	})
	return a.remoteErr
}

func (a *app) connect(ctx context.Context) error {
	a.client = api.NewClient(api.Config{
		BaseURL:  a.cfg.APIURL,
		AuthPath: a.cfg.AuthPath,
		Timeout:  a.cfg.HTTPTimeout,
	}, a.logger)

	var store token.Store
	var recorder *cache.StatusCache
	if a.cfg.RedisAddr != "" {
		rc, err := database.ConnectCache(ctx, a.cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		store = token.NewRedisStore(rc, a.logger)
		recorder = cache.NewStatusCache(rc)
		a.logger.Info("Connected to Redis", zap.String("addr", a.cfg.RedisAddr))
	} else {
		store = token.NewFileStore(a.cfg.TokenFile, a.logger)
	}

	a.creds = auth.NewManager(store, a.client, auth.Config{
		Username:        a.cfg.Username,
		Password:        a.cfg.Password,
		RefreshInterval: a.cfg.RefreshInterval,
	}, a.clock, a.logger)

	a.poller = poller.NewPoller(a.client, poller.Config{
		Interval:    a.cfg.PollInterval,
		MaxAttempts: a.cfg.PollMaxAttempts,
	}, a.clock, a.logger)
	if recorder != nil {
		a.poller.WithRecorder(recorder)
		a.statuses = recorder
	}

	if a.cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := repository.NewPostgresRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		a.history = repo
		a.logger.Info("Connected to PostgreSQL")
	}

	if len(a.cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewProducer(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		a.publisher = p
		a.logger.Info("Kafka producer ready", zap.Strings("brokers", a.cfg.KafkaBrokers))
	}

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.creds.Start(refreshCtx)
	return nil
}

// newOrchestrator returns a fresh single-session orchestrator reporting to
// out. Batch workers each get their own.
func (a *app) newOrchestrator(out io.Writer, label string, opts renderOptions) (*service.Orchestrator, error) {
	bg, w, h, err := opts.resolve(a.sizes)
	if err != nil {
		return nil, err
	}

	orch := service.NewOrchestrator(a.creds, a.client, a.poller, a.compositor, service.Config{
		DismissDelay: a.cfg.DismissDelay,
		Background:   bg,
		Width:        w,
		Height:       h,
		PresetID:     opts.presetID(),
	}, a.clock, a.logger).WithObserver(newTerminalObserver(out, label))

	if a.history != nil {
		orch.WithHistory(a.history)
	}
	if a.publisher != nil {
		orch.WithPublisher(a.publisher)
	}
	return orch, nil
}

func (a *app) close(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.cfg != nil {
		if err := obs.Push(a.cfg.PushgateURL, "idphoto"); err != nil && a.logger != nil {
			a.logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}
	if a.shutdown != nil {
		_ = a.shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// renderOptions are the compositing flags shared by several commands.
type renderOptions struct {
	color    string
	size     string
	widthMM  float64
	heightMM float64
	preset   int
}

func (o renderOptions) resolve(table *sizes.Table) (color.NRGBA, int, int, error) {
	bg, err := compositor.ParseColor(o.color)
	if err != nil {
		return color.NRGBA{}, 0, 0, err
	}
	size, err := table.Resolve(o.size, o.widthMM, o.heightMM)
	if err != nil {
		return color.NRGBA{}, 0, 0, err
	}
	w, h := size.Pixels()
	return bg, w, h, nil
}

func (o renderOptions) presetID() *int {
	if o.preset <= 0 {
		return nil
	}
	id := o.preset
	return &id
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

func isImagePath(name string) bool {
	lower := strings.ToLower(name)
	for ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
