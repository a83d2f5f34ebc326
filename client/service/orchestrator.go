// Package service coordinates one upload session at a time: validation,
// credential, submission, polling and compositing.
package service

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"idPhoto/client/apperrors"
	"idPhoto/client/compositor"
	"idPhoto/client/dto"
	"idPhoto/client/kafka"
	"idPhoto/client/middleware"
	"idPhoto/client/models"
	"idPhoto/client/obs"
	"idPhoto/client/poller"
	"idPhoto/client/sizes"
	"idPhoto/client/validation"
)

const (
	DefaultDismissDelay = 3 * time.Second
	DefaultSettleDelay  = 500 * time.Millisecond
)

var (
	ErrBusy        = errors.New("a photo is already being processed")
	ErrNoComposite = errors.New("no composited image available")
)

type Credentials interface {
	EnsureValid(ctx context.Context) (models.Credential, error)
	Invalidate(ctx context.Context) error
}

type Submitter interface {
	Submit(ctx context.Context, token, filename string, file io.Reader, presetID *int) (*dto.SubmitResponse, error)
}

type TaskPoller interface {
	Poll(ctx context.Context, taskID string, cred models.Credential, onProgress func(float64)) (*poller.Result, error)
}

type Renderer interface {
	Render(cutout []byte, targetW, targetH int, bg color.Color) ([]byte, error)
}

// History persists one record per session. Failures are logged only.
type History interface {
	CreateSession(ctx context.Context, rec *models.SessionRecord) error
	UpdateSession(ctx context.Context, rec *models.SessionRecord) error
}

// File is an upload candidate. Reader is rewound before every read.
type File struct {
	Name   string
	Size   int64
	Reader io.ReadSeeker
}

// OpenFile opens path as a File. The caller closes the returned closer.
func OpenFile(path string) (File, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, err
	}
	return File{Name: filepath.Base(path), Size: info.Size(), Reader: f}, f, nil
}

type Config struct {
	DismissDelay time.Duration
	SettleDelay  time.Duration
	Background   color.Color
	Width        int
	Height       int
	PresetID     *int
}

func (c Config) withDefaults() Config {
	if c.DismissDelay <= 0 {
		c.DismissDelay = DefaultDismissDelay
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Background == nil {
		c.Background, _ = compositor.ParseColor(compositor.DefaultBackground)
	}
	// Only an unset size takes the default. Anything else is the caller's
	// choice and an invalid one fails at compositing.
	if c.Width == 0 && c.Height == 0 {
		c.Width, c.Height = sizes.MMToPx(sizes.DefaultWidthMM), sizes.MMToPx(sizes.DefaultHeightMM)
	}
	return c
}

// Orchestrator owns at most one in-flight session. A Submit while another
// is running is rejected with ErrBusy, never queued.
type Orchestrator struct {
	creds     Credentials
	api       Submitter
	poller    TaskPoller
	renderer  Renderer
	observer  Observer
	history   History
	publisher kafka.Publisher
	clock     clockwork.Clock
	logger    *zap.Logger

	busy     atomic.Bool
	renderMu sync.Mutex

	mu       sync.Mutex
	cfg      Config
	session  models.Session
	record   *models.SessionRecord
	cutout   []byte
	result   []byte
	gen      uint64
	idleTime clockwork.Timer

	// settings counts background and size changes; rendered is the count
	// the current result was composed with.
	settings uint64
	rendered uint64
}

func NewOrchestrator(creds Credentials, api Submitter, p TaskPoller, r Renderer, cfg Config, clock clockwork.Clock, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		creds:    creds,
		api:      api,
		poller:   p,
		renderer: r,
		observer: NopObserver{},
		clock:    clock,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		session:  models.Session{State: models.StateIdle},
	}
}

func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	if obs == nil {
		obs = NopObserver{}
	}
	o.observer = obs
	return o
}

func (o *Orchestrator) WithHistory(h History) *Orchestrator {
	o.history = h
	return o
}

func (o *Orchestrator) WithPublisher(p kafka.Publisher) *Orchestrator {
	o.publisher = p
	return o
}

// Submit runs one full session for f. Validation failures leave the session
// untouched. Every other outcome ends with the in-flight flag cleared.
func (o *Orchestrator) Submit(ctx context.Context, f File) error {
	_, err := o.submit(ctx, f, "")
	return err
}

// SubmitAndSave runs a session like Submit and writes the composite into dir
// before the session is released, so no other submission can replace it
// first. It returns the path written.
func (o *Orchestrator) SubmitAndSave(ctx context.Context, f File, dir string) (string, error) {
	return o.submit(ctx, f, dir)
}

func (o *Orchestrator) submit(ctx context.Context, f File, saveDir string) (string, error) {
	if !o.busy.CompareAndSwap(false, true) {
		o.logger.Warn("Submission rejected, session in flight", zap.String("filename", f.Name))
		return "", ErrBusy
	}
	defer o.release()

	if _, err := validation.ValidateImage(f.Reader, f.Size); err != nil {
		o.observer.OnStatus(apperrors.UserMessage(err))
		return "", err
	}

	traceID := uuid.New().String()
	ctx = middleware.WithTraceID(ctx, traceID)
	ctx, span := obs.Tracer("service").Start(ctx, "service.Submit")
	defer span.End()

	rec := o.begin(ctx, f, traceID)
	span.SetAttributes(attribute.String("session_id", rec.ID), attribute.String("filename", f.Name))
	start := o.clock.Now()

	taskID, err := o.run(ctx, f)
	if err != nil && apperrors.KindOf(err) == apperrors.KindUnauthorized {
		o.reauthorize(ctx)
	}

	obs.SessionDuration.Observe(o.clock.Since(start).Seconds())
	o.finish(ctx, rec, taskID, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.SessionsTotal.WithLabelValues(outcome(err)).Inc()
		return "", err
	}
	obs.SessionsTotal.WithLabelValues("completed").Inc()

	if saveDir == "" {
		return "", nil
	}
	o.catchUp()
	return o.Save(ctx, saveDir)
}

// release clears the in-flight flag. Settings changed while the session held
// it were not rendered by their setters, so the composite catches up here.
func (o *Orchestrator) release() {
	o.busy.Store(false)
	o.catchUp()
}

// catchUp recomposes when the settings moved on since the last render.
func (o *Orchestrator) catchUp() {
	o.mu.Lock()
	stale := o.cutout != nil && o.rendered != o.settings
	o.mu.Unlock()
	if !stale {
		return
	}
	if err := o.recompose(); err != nil {
		o.logger.Warn("Failed to apply changed settings", zap.Error(err))
		o.observer.OnStatus(apperrors.UserMessage(err))
	}
}

func (o *Orchestrator) run(ctx context.Context, f File) (string, error) {
	o.setState(models.StateAuthorizing)
	cred, err := o.creds.EnsureValid(ctx)
	if err != nil {
		return "", err
	}

	o.setState(models.StateUploading)
	if _, err := f.Reader.Seek(0, io.SeekStart); err != nil {
		return "", apperrors.Validation("failed to read file", err)
	}
	o.mu.Lock()
	presetID := o.cfg.PresetID
	o.mu.Unlock()

	resp, err := o.api.Submit(ctx, cred.Token, f.Name, f.Reader, presetID)
	if err != nil {
		return "", err
	}
	taskID := resp.TaskID
	o.mu.Lock()
	o.session.TaskID = taskID
	o.mu.Unlock()

	o.setState(models.StatePolling)
	res, err := o.poller.Poll(ctx, taskID, cred, o.setProgress)
	if err != nil {
		return taskID, err
	}

	o.setState(models.StateCompositing)
	o.mu.Lock()
	o.cutout = res.Image
	o.mu.Unlock()
	if err := o.recompose(); err != nil {
		return taskID, err
	}
	return taskID, nil
}

// reauthorize drops the rejected credential and tries to obtain a new one
// for the next submission. The failed operation is not retried.
func (o *Orchestrator) reauthorize(ctx context.Context) {
	if err := o.creds.Invalidate(ctx); err != nil {
		o.logger.Warn("Failed to invalidate credential", zap.Error(err))
	}
	if _, err := o.creds.EnsureValid(ctx); err != nil {
		o.logger.Warn("Re-authentication failed", zap.Error(err))
	}
}

func (o *Orchestrator) begin(ctx context.Context, f File, traceID string) *models.SessionRecord {
	o.mu.Lock()
	o.stopTimer()
	o.releaseArtifacts()
	o.session = models.Session{
		ID:           uuid.New().String(),
		State:        models.StateIdle,
		IsProcessing: true,
		CurrentFile:  f.Name,
		StartedAt:    o.clock.Now(),
	}
	rec := &models.SessionRecord{
		ID:               o.session.ID,
		TraceID:          traceID,
		OriginalFilename: f.Name,
		State:            models.StateUploading,
	}
	o.record = rec
	o.mu.Unlock()

	o.logger.Info("Session started",
		zap.String("session_id", rec.ID),
		zap.String("trace_id", traceID),
		zap.String("filename", f.Name),
	)
	o.setProgress(0)

	if o.history != nil {
		if err := o.history.CreateSession(ctx, rec); err != nil {
			o.logger.Warn("Failed to record session", zap.String("session_id", rec.ID), zap.Error(err))
		}
	}
	return rec
}

func (o *Orchestrator) finish(ctx context.Context, rec *models.SessionRecord, taskID string, runErr error) {
	o.mu.Lock()
	o.session.IsProcessing = false
	rec.TaskID = taskID
	if runErr != nil {
		o.releaseArtifacts()
		rec.State = models.StateFailed
		rec.ErrorMessage = runErr.Error()
	} else {
		rec.State = models.StateCompleted
	}
	o.mu.Unlock()

	if runErr != nil {
		o.logger.Error("Session failed",
			zap.String("session_id", rec.ID),
			zap.String("task_id", taskID),
			zap.String("kind", string(apperrors.KindOf(runErr))),
			zap.Error(runErr),
		)
		o.setState(models.StateFailed)
		o.observer.OnStatus(apperrors.UserMessage(runErr))
		o.scheduleIdle(o.cfg.DismissDelay)
	} else {
		o.logger.Info("Session completed",
			zap.String("session_id", rec.ID),
			zap.String("task_id", taskID),
		)
		o.setState(models.StateCompleted)
		o.observer.OnStatus("processing complete")
		o.scheduleIdle(o.cfg.SettleDelay)
	}

	if o.history != nil {
		if err := o.history.UpdateSession(ctx, rec); err != nil {
			o.logger.Warn("Failed to update session record", zap.String("session_id", rec.ID), zap.Error(err))
		}
	}
	if o.publisher != nil {
		event := &kafka.SessionEvent{
			SessionID:  rec.ID,
			TaskID:     taskID,
			TraceID:    rec.TraceID,
			Filename:   rec.OriginalFilename,
			Status:     string(rec.State),
			Error:      rec.ErrorMessage,
			FinishedAt: o.clock.Now(),
		}
		if err := o.publisher.PublishSessionEvent(ctx, event); err != nil {
			o.logger.Warn("Failed to publish session event", zap.String("session_id", rec.ID), zap.Error(err))
		}
	}
}

// scheduleIdle returns the display to idle after d unless a new session
// starts first.
func (o *Orchestrator) scheduleIdle(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopTimer()
	gen := o.gen
	o.idleTime = o.clock.AfterFunc(d, func() {
		o.mu.Lock()
		if o.gen != gen || o.session.IsProcessing {
			o.mu.Unlock()
			return
		}
		o.session.State = models.StateIdle
		o.mu.Unlock()
		o.observer.OnStateChange(models.StateIdle)
	})
}

// SetBackground changes the background colour and recomposes any cached
// cutout without contacting the service.
func (o *Orchestrator) SetBackground(bg color.Color) error {
	if bg == nil {
		return apperrors.Validation("background colour is required", nil)
	}
	o.mu.Lock()
	o.cfg.Background = bg
	o.settings++
	o.mu.Unlock()
	return o.recomposeIfIdle()
}

// SetTargetSize changes the canvas size in pixels and recomposes any cached
// cutout without contacting the service.
func (o *Orchestrator) SetTargetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return apperrors.Validation(fmt.Sprintf("invalid target size %dx%d", width, height), nil)
	}
	o.mu.Lock()
	o.cfg.Width, o.cfg.Height = width, height
	o.settings++
	o.mu.Unlock()
	return o.recomposeIfIdle()
}

// SetPreset selects the server-side removal preset for later submissions.
func (o *Orchestrator) SetPreset(id *int) {
	o.mu.Lock()
	o.cfg.PresetID = id
	o.mu.Unlock()
}

// recomposeIfIdle leaves an in-flight session alone. The session either reads
// the new settings when it reaches compositing or catches up on release.
func (o *Orchestrator) recomposeIfIdle() error {
	if o.busy.Load() {
		return nil
	}
	if err := o.recompose(); err != nil {
		o.observer.OnStatus(apperrors.UserMessage(err))
		return err
	}
	return nil
}

func (o *Orchestrator) recompose() error {
	o.renderMu.Lock()
	defer o.renderMu.Unlock()

	o.mu.Lock()
	cutout, gen, version := o.cutout, o.gen, o.settings
	w, h, bg := o.cfg.Width, o.cfg.Height, o.cfg.Background
	o.mu.Unlock()

	if cutout == nil {
		return nil
	}

	out, err := o.renderer.Render(cutout, w, h, bg)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.gen == gen {
		o.result = out
		o.rendered = version
		o.session.HasComposite = true
	}
	o.mu.Unlock()
	return nil
}

// Session returns a snapshot of the current session.
func (o *Orchestrator) Session() models.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Composite returns the latest composited PNG, or nil.
func (o *Orchestrator) Composite() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Cutout returns the cached cutout returned by the service, or nil.
func (o *Orchestrator) Cutout() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cutout
}

// Save writes the composite into dir under a timestamped name and returns
// the path written.
func (o *Orchestrator) Save(ctx context.Context, dir string) (string, error) {
	o.mu.Lock()
	data := o.result
	rec := o.record
	o.mu.Unlock()

	if data == nil {
		return "", ErrNoComposite
	}
	path, err := WriteOutput(dir, o.clock.Now(), data)
	if err != nil {
		return "", err
	}

	if rec != nil && o.history != nil {
		o.mu.Lock()
		rec.OutputPath = path
		snapshot := *rec
		o.mu.Unlock()
		if err := o.history.UpdateSession(ctx, &snapshot); err != nil {
			o.logger.Warn("Failed to record output path", zap.String("session_id", rec.ID), zap.Error(err))
		}
	}

	o.logger.Info("Composite saved", zap.String("path", path))
	return path, nil
}

// OutputName is the download filename for a composite saved at t.
func OutputName(t time.Time) string {
	return fmt.Sprintf("idphoto_%d.png", t.UnixMilli())
}

// WriteOutput stores data in dir under OutputName(t). Should that name be
// taken, a numeric suffix is added; existing files are never overwritten.
func WriteOutput(dir string, t time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	base := strings.TrimSuffix(OutputName(t), ".png")
	for i := 0; i < 1000; i++ {
		name := base + ".png"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.png", base, i)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create output file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write composite: %w", err)
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("no free output name for %s in %s", base, dir)
}

// Reset releases the cached cutout and composite and returns to idle.
func (o *Orchestrator) Reset() error {
	if o.busy.Load() {
		return ErrBusy
	}
	o.mu.Lock()
	o.stopTimer()
	o.releaseArtifacts()
	o.record = nil
	o.session = models.Session{State: models.StateIdle}
	o.mu.Unlock()

	o.observer.OnStateChange(models.StateIdle)
	return nil
}

// releaseArtifacts must be called with mu held.
func (o *Orchestrator) releaseArtifacts() {
	o.gen++
	o.cutout = nil
	o.result = nil
	o.session.HasComposite = false
}

// stopTimer must be called with mu held.
func (o *Orchestrator) stopTimer() {
	if o.idleTime != nil {
		o.idleTime.Stop()
		o.idleTime = nil
	}
}

func (o *Orchestrator) setState(state models.SessionState) {
	o.mu.Lock()
	o.session.State = state
	o.mu.Unlock()
	o.observer.OnStateChange(state)
}

func (o *Orchestrator) setProgress(percent float64) {
	o.mu.Lock()
	o.session.Progress = percent
	o.mu.Unlock()
	o.observer.OnProgress(percent)
}

func outcome(err error) string {
	if kind := apperrors.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}
