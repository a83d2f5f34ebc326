// Package poller drives a submitted task to a terminal status.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"idPhoto/client/apperrors"
	"idPhoto/client/models"
	"idPhoto/client/obs"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 30
)

type TaskClient interface {
	Status(ctx context.Context, token, taskID string) (*models.Task, error)
	Result(ctx context.Context, token, taskID string) ([]byte, error)
}

// StatusRecorder receives every observed status. Failures are logged only.
type StatusRecorder interface {
	Set(ctx context.Context, taskID string, status models.TaskStatus) error
}

type Result struct {
	TaskID   string
	Image    []byte
	Attempts int
}

type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

type Poller struct {
	client   TaskClient
	recorder StatusRecorder
	clock    clockwork.Clock
	cfg      Config
	logger   *zap.Logger
}

func NewPoller(client TaskClient, cfg Config, clock clockwork.Clock, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Poller{client: client, cfg: cfg, clock: clock, logger: logger}
}

// WithRecorder attaches a status recorder and returns p.
func (p *Poller) WithRecorder(r StatusRecorder) *Poller {
	p.recorder = r
	return p
}

// Poll waits Interval before each status query and issues at most
// MaxAttempts queries. Any error, including an unauthorized response, ends
// polling at once; nothing is retried.
func (p *Poller) Poll(ctx context.Context, taskID string, cred models.Credential, onProgress func(float64)) (*Result, error) {
	ctx, span := obs.Tracer("poller").Start(ctx, "poller.Poll")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", taskID))

	report := func(percent float64) {
		if onProgress != nil {
			onProgress(percent)
		}
	}
	report(InitialProgress)

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poll task %s: %w", taskID, ctx.Err())
		case <-p.clock.After(p.cfg.Interval):
		}

		task, err := p.client.Status(ctx, cred.Token, taskID)
		obs.StatusQueries.Inc()
		if err != nil {
			p.logger.Warn("Status query failed",
				zap.String("task_id", taskID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}
		p.record(ctx, taskID, task.Status)

		report(Progress(attempt, p.cfg.MaxAttempts))

		phase := Step(attempt, p.cfg.MaxAttempts, task.Status)
		p.logger.Debug("Task status observed",
			zap.String("task_id", taskID),
			zap.Int("attempt", attempt),
			zap.String("status", string(task.Status)),
			zap.Stringer("phase", phase),
		)

		switch phase {
		case PhaseCompleted:
			image, err := p.client.Result(ctx, cred.Token, taskID)
			if err != nil {
				return nil, err
			}
			report(CompleteProgress)
			span.SetAttributes(attribute.Int("attempts", attempt))
			return &Result{TaskID: taskID, Image: image, Attempts: attempt}, nil
		case PhaseFailed:
			return nil, apperrors.TaskFailed(task.Error)
		case PhaseTimedOut:
			return nil, apperrors.PollTimeout(attempt)
		}
	}

	return nil, apperrors.PollTimeout(p.cfg.MaxAttempts)
}

func (p *Poller) record(ctx context.Context, taskID string, status models.TaskStatus) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Set(ctx, taskID, status); err != nil {
		p.logger.Warn("Failed to record task status",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}
}
