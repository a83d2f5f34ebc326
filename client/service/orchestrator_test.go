package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"idPhoto/client/api"
	"idPhoto/client/api/apitest"
	"idPhoto/client/apperrors"
	"idPhoto/client/auth"
	"idPhoto/client/compositor"
	"idPhoto/client/kafka"
	"idPhoto/client/models"
	"idPhoto/client/poller"
	"idPhoto/client/token"
)

var (
	defaultBlue = color.NRGBA{R: 0x00, G: 0x66, B: 0xCC, A: 0xff}
	white       = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

type recordingObserver struct {
	mu       sync.Mutex
	progress []float64
	states   []models.SessionState
	messages []string
}

func (r *recordingObserver) OnProgress(p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingObserver) OnStateChange(s models.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingObserver) OnStatus(m string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recordingObserver) States() []models.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SessionState(nil), r.states...)
}

func (r *recordingObserver) Progress() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.progress...)
}

func (r *recordingObserver) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type mockHistory struct {
	mu      sync.Mutex
	created []models.SessionRecord
	updated []models.SessionRecord
}

func (m *mockHistory) CreateSession(_ context.Context, rec *models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *rec)
	return nil
}

func (m *mockHistory) UpdateSession(_ context.Context, rec *models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, *rec)
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []kafka.SessionEvent
}

func (m *mockPublisher) PublishSessionEvent(_ context.Context, e *kafka.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type fixture struct {
	orch     *Orchestrator
	server   *apitest.Server
	clock    *clockwork.FakeClock
	observer *recordingObserver
	store    *token.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	server := apitest.NewServer(logger)
	t.Cleanup(server.Close)
	server.Result = cutoutPNG(t, 300, 200)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	client := api.NewClient(api.Config{BaseURL: server.URL}, logger)
	store := token.NewMemoryStore()
	creds := auth.NewManager(store, client, auth.Config{Username: apitest.Username, Password: apitest.Password}, clock, logger)
	p := poller.NewPoller(client, poller.Config{}, clock, logger)

	observer := &recordingObserver{}
	orch := NewOrchestrator(creds, client, p, compositor.NewCompositor(logger), Config{}, clock, logger).
		WithObserver(observer)

	return &fixture{orch: orch, server: server, clock: clock, observer: observer, store: store}
}

// cutoutPNG is a transparent image with an opaque white square in the centre.
func cutoutPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := height/2 - 20; y < height/2+20; y++ {
		for x := width/2 - 20; x < width/2+20; x++ {
			img.SetNRGBA(x, y, white)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func photo(t *testing.T) File {
	data := cutoutPNG(t, 40, 40)
	return File{Name: "me.png", Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// submit runs Submit while advancing the fake clock whenever the session
// waits on it.
func (f *fixture) submit(t *testing.T, file File) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.orch.Submit(context.Background(), file) }()
	return f.await(t, done)
}

func (f *fixture) await(t *testing.T, done <-chan error) error {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("submit did not finish")
			return nil
		default:
		}
		f.step()
	}
}

// step advances one poll interval if an in-flight session is waiting. Idle
// timers scheduled after the session ends are left alone.
func (f *fixture) step() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if f.clock.BlockUntilContext(ctx, 1) == nil && f.orch.Session().IsProcessing {
		f.clock.Advance(poller.DefaultInterval)
	}
}

func (f *fixture) eventuallyIdle(t *testing.T) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return f.orch.Session().State == models.StateIdle
	}, time.Second, 5*time.Millisecond)
}

func decodeComposite(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func pixel(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestSubmit_PendingThenCompleted(t *testing.T) {
	f := newFixture(t)
	f.server.Statuses = append(repeat("pending", 5), "completed")

	err := f.submit(t, photo(t))

	require.NoError(t, err)
	assert.Equal(t, 1, f.server.LoginCalls())
	assert.Equal(t, 1, f.server.SubmitCalls())
	assert.Equal(t, 6, f.server.StatusCalls())
	assert.Equal(t, 1, f.server.ResultCalls())

	f.clock.Advance(DefaultSettleDelay)
	f.eventuallyIdle(t)
	s := f.orch.Session()
	assert.False(t, s.IsProcessing)
	assert.True(t, s.HasComposite)
	assert.Equal(t, "task-1", s.TaskID)
	assert.Equal(t, "me.png", s.CurrentFile)

	img := decodeComposite(t, f.orch.Composite())
	assert.Equal(t, 295, img.Bounds().Dx())
	assert.Equal(t, 413, img.Bounds().Dy())
	assert.Equal(t, defaultBlue, pixel(img, 0, 0))

	assert.Eventually(t, func() bool { return len(f.observer.States()) == 6 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.SessionState{
		models.StateAuthorizing,
		models.StateUploading,
		models.StatePolling,
		models.StateCompositing,
		models.StateCompleted,
		models.StateIdle,
	}, f.observer.States())

	progress := f.observer.Progress()
	require.NotEmpty(t, progress)
	assert.Equal(t, 100.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestSubmit_RejectsSecondWhileInFlight(t *testing.T) {
	f := newFixture(t)
	f.server.Statuses = append(repeat("pending", 3), "completed")

	first := make(chan error, 1)
	go func() { first <- f.orch.Submit(context.Background(), photo(t)) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.True(t, f.orch.Session().IsProcessing)

	err := f.orch.Submit(context.Background(), photo(t))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, f.server.SubmitCalls())

	require.NoError(t, f.await(t, first))
	assert.Equal(t, 1, f.server.SubmitCalls())
	assert.Equal(t, 4, f.server.StatusCalls())
	assert.NotNil(t, f.orch.Composite())
}

func TestSubmit_UnauthorizedOnThirdStatusQuery(t *testing.T) {
	f := newFixture(t)
	f.server.Statuses = repeat("pending", 30)
	f.server.StatusCodes = map[int]int{3: http.StatusUnauthorized}

	err := f.submit(t, photo(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, 3, f.server.StatusCalls())
	assert.Equal(t, 0, f.server.ResultCalls())
	assert.Equal(t, 2, f.server.LoginCalls(), "expected re-authentication after 401")

	cred, loadErr := f.store.Load(context.Background())
	require.NoError(t, loadErr)
	require.NotNil(t, cred)
	assert.Equal(t, "token-2", cred.Token)

	s := f.orch.Session()
	assert.False(t, s.IsProcessing)
	assert.False(t, s.HasComposite)
	assert.Equal(t, models.StateFailed, s.State)

	f.clock.Advance(DefaultDismissDelay)
	f.eventuallyIdle(t)
}

func TestSubmit_TaskFailedSurfacesReason(t *testing.T) {
	f := newFixture(t)
	f.server.Statuses = []string{"pending", "failed"}
	f.server.FailReason = "no subject detected"

	err := f.submit(t, photo(t))

	assert.ErrorIs(t, err, apperrors.ErrTaskFailed)
	assert.Contains(t, err.Error(), "no subject detected")
	assert.Equal(t, 0, f.server.ResultCalls())

	messages := f.observer.Messages()
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[len(messages)-1], "no subject detected")
	assert.False(t, f.orch.Session().IsProcessing)
}

func TestSubmit_ServerBusyMessage(t *testing.T) {
	f := newFixture(t)
	f.server.SubmitStatus = http.StatusServiceUnavailable

	err := f.submit(t, photo(t))

	assert.ErrorIs(t, err, apperrors.ErrTransport)
	messages := f.observer.Messages()
	require.NotEmpty(t, messages)
	assert.Equal(t, "server busy, please try again later", messages[len(messages)-1])
}

func TestSubmit_ValidationLeavesSessionUntouched(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{
			name: "not an image",
			file: File{Name: "notes.txt", Size: 11, Reader: strings.NewReader("hello world")},
		},
		{
			name: "too large",
			file: File{Name: "huge.png", Size: 6 << 20, Reader: bytes.NewReader([]byte("\x89PNG\r\n\x1a\n"))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.orch.Session()

			err := f.orch.Submit(context.Background(), tt.file)

			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Equal(t, before, f.orch.Session())
			assert.Empty(t, f.observer.States())
			assert.Equal(t, 0, f.server.LoginCalls())
			assert.Equal(t, 0, f.server.SubmitCalls())
		})
	}
}

func TestSetBackground_RecomposesWithoutServer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.submit(t, photo(t)))
	calls := f.server.StatusCalls() + f.server.ResultCalls() + f.server.SubmitCalls()

	red := color.NRGBA{R: 0xff, A: 0xff}
	require.NoError(t, f.orch.SetBackground(red))

	img := decodeComposite(t, f.orch.Composite())
	assert.Equal(t, red, pixel(img, 0, 0))

	require.NoError(t, f.orch.SetTargetSize(100, 200))
	img = decodeComposite(t, f.orch.Composite())
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
	assert.Equal(t, red, pixel(img, 0, 0))

	assert.Equal(t, calls, f.server.StatusCalls()+f.server.ResultCalls()+f.server.SubmitCalls())
}

func TestSetTargetSize_RejectsInvalid(t *testing.T) {
	f := newFixture(t)

	err := f.orch.SetTargetSize(0, 100)

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSetBackground_BeforeSubmitAppliesToNextComposite(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orch.SetBackground(white))
	assert.Nil(t, f.orch.Composite())

	require.NoError(t, f.submit(t, photo(t)))

	img := decodeComposite(t, f.orch.Composite())
	assert.Equal(t, white, pixel(img, 0, 0))
}

func TestSave_WritesTimestampedFile(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	_, err := f.orch.Save(context.Background(), dir)
	assert.ErrorIs(t, err, ErrNoComposite)

	require.NoError(t, f.submit(t, photo(t)))

	path, err := f.orch.Save(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, OutputName(f.clock.Now())), path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "idphoto_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.orch.Composite(), data)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "idphoto_1700000000123.png", OutputName(time.UnixMilli(1700000000123)))
}

func TestReset_ReleasesArtifacts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.submit(t, photo(t)))
	require.NotNil(t, f.orch.Cutout())

	require.NoError(t, f.orch.Reset())

	assert.Nil(t, f.orch.Cutout())
	assert.Nil(t, f.orch.Composite())
	s := f.orch.Session()
	assert.False(t, s.HasComposite)
	assert.Equal(t, models.StateIdle, s.State)
}

func TestSubmit_FailureReleasesPreviousArtifacts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.submit(t, photo(t)))
	require.NotNil(t, f.orch.Composite())

	f.server.ResultStatus = http.StatusInternalServerError
	err := f.submit(t, photo(t))

	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Nil(t, f.orch.Composite())
	assert.False(t, f.orch.Session().HasComposite)
}

func TestSubmit_RecordsHistoryAndPublishes(t *testing.T) {
	f := newFixture(t)
	history := &mockHistory{}
	publisher := &mockPublisher{}
	f.orch.WithHistory(history).WithPublisher(publisher)

	require.NoError(t, f.submit(t, photo(t)))

	require.Len(t, history.created, 1)
	require.Len(t, history.updated, 1)
	assert.Equal(t, "me.png", history.created[0].OriginalFilename)
	assert.Equal(t, models.StateCompleted, history.updated[0].State)
	assert.Equal(t, "task-1", history.updated[0].TaskID)
	assert.Equal(t, history.created[0].ID, history.updated[0].ID)

	require.Len(t, publisher.events, 1)
	ev := publisher.events[0]
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, history.created[0].ID, ev.SessionID)
	assert.Equal(t, history.created[0].TraceID, ev.TraceID)
	assert.Contains(t, f.server.TraceIDs(), ev.TraceID)

	path, err := f.orch.Save(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, history.updated, 2)
	assert.Equal(t, path, history.updated[1].OutputPath)
}

func TestSubmit_PollTimeout(t *testing.T) {
	f := newFixture(t)
	f.server.Statuses = []string{"pending"}

	err := f.submit(t, photo(t))

	assert.ErrorIs(t, err, apperrors.ErrPollTimeout)
	assert.Equal(t, poller.DefaultMaxAttempts, f.server.StatusCalls())
	assert.False(t, f.orch.Session().IsProcessing)
}

func TestWriteOutput_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	at := time.UnixMilli(1700000000123)

	first, err := WriteOutput(dir, at, []byte("one"))
	require.NoError(t, err)
	second, err := WriteOutput(dir, at, []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "idphoto_1700000000123.png"), first)
	assert.Equal(t, filepath.Join(dir, "idphoto_1700000000123_1.png"), second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

// gatedRenderer holds the first render until release is closed.
type gatedRenderer struct {
	Renderer
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRenderer) Render(cutout []byte, targetW, targetH int, bg color.Color) ([]byte, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Renderer.Render(cutout, targetW, targetH, bg)
}

func TestSetBackground_DuringCompositingAppliesToResult(t *testing.T) {
	f := newFixture(t)
	gate := &gatedRenderer{Renderer: f.orch.renderer, entered: make(chan struct{}), release: make(chan struct{})}
	f.orch.renderer = gate

	done := make(chan error, 1)
	go func() { done <- f.orch.Submit(context.Background(), photo(t)) }()

	deadline := time.After(5 * time.Second)
	for composing := false; !composing; {
		select {
		case <-gate.entered:
			composing = true
		case <-deadline:
			t.Fatal("session never reached compositing")
		default:
			f.step()
		}
	}

	red := color.NRGBA{R: 0xff, A: 0xff}
	require.NoError(t, f.orch.SetBackground(red))
	require.NoError(t, f.orch.SetTargetSize(100, 200))
	close(gate.release)

	require.NoError(t, f.await(t, done))
	img := decodeComposite(t, f.orch.Composite())
	assert.Equal(t, red, pixel(img, 0, 0))
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

// savingHistory tries to start another session while the output path of
// the current one is being recorded.
type savingHistory struct {
	mockHistory
	orch       *Orchestrator
	file       File
	duringSave error
}

func (h *savingHistory) UpdateSession(ctx context.Context, rec *models.SessionRecord) error {
	if rec.OutputPath != "" {
		h.duringSave = h.orch.Submit(ctx, h.file)
	}
	return h.mockHistory.UpdateSession(ctx, rec)
}

func TestSubmitAndSave_HoldsSessionUntilSaved(t *testing.T) {
	f := newFixture(t)
	history := &savingHistory{orch: f.orch, file: photo(t)}
	f.orch.WithHistory(history)
	dir := t.TempDir()

	var path string
	done := make(chan error, 1)
	go func() {
		var err error
		path, err = f.orch.SubmitAndSave(context.Background(), photo(t), dir)
		done <- err
	}()
	require.NoError(t, f.await(t, done))

	assert.ErrorIs(t, history.duringSave, ErrBusy)
	assert.Equal(t, 1, f.server.SubmitCalls())
	assert.Equal(t, filepath.Join(dir, OutputName(f.clock.Now())), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.orch.Composite(), data)
}

func TestConfig_DefaultSizeOnlyWhenUnset(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 295, cfg.Width)
	assert.Equal(t, 413, cfg.Height)

	cfg = Config{Width: 0, Height: 413}.withDefaults()
	assert.Equal(t, 0, cfg.Width)
	assert.Equal(t, 413, cfg.Height)
}
