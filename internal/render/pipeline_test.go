package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"relive/replay/internal/types"
)

type fakeSurface struct {
	mu       sync.Mutex
	calls    int
	failures int
	block    chan struct{}
}

func (f *fakeSurface) Render(ctx context.Context, script Script, framesDir string) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if n <= f.failures {
		return errors.New("browser crashed")
	}
	return os.WriteFile(filepath.Join(framesDir, "frame-000000.png"), []byte("png"), 0o644)
}

func (f *fakeSurface) renders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEncoder struct {
	mu      sync.Mutex
	encodes int
	fail    bool
}

func (f *fakeEncoder) Encode(ctx context.Context, framesDir, outPath string, frameRate int) error {
	f.mu.Lock()
	f.encodes++
	f.mu.Unlock()
	if f.fail {
		return errors.New("bad pixel format")
	}
	return os.WriteFile(outPath, []byte("mp4"), 0o644)
}

func (f *fakeEncoder) ExtractFrame(ctx context.Context, videoPath string, frameIndex int, outPath string) error {
	return os.WriteFile(outPath, []byte("png"), 0o644)
}

func renderSession(id string, n int) *types.Session {
	events := make([]types.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, types.Event{
			Type: types.EventMouseMove, Timestamp: int64(i), Data: map[string]any{"x": 1.0, "y": 1.0},
		})
	}
	return &types.Session{
		SessionID: id,
		Events:    events,
		Metadata:  types.Metadata{URL: "http://x", UserAgent: "UA", Timestamp: 1000, RecordedAt: 42},
	}
}

func newTestPipeline(t *testing.T, s Surface, e Encoder, opts Options) *Pipeline {
	t.Helper()
	base := t.TempDir()
	opts.VideosDir = filepath.Join(base, "videos")
	opts.ThumbnailsDir = filepath.Join(base, "thumbs")
	p := NewPipeline(s, e, opts)
	if err := p.Init(); err != nil {
		t.Fatalf("init pipeline: %v", err)
	}
	return p
}

func TestEnsureVideoRendersOnce(t *testing.T) {
	surface := &fakeSurface{}
	encoder := &fakeEncoder{}
	p := newTestPipeline(t, surface, encoder, Options{MaxConcurrent: 2, MaxAttempts: 2})

	sess := renderSession("v1", 3)
	first, err := p.EnsureVideo(context.Background(), sess)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := p.EnsureVideo(context.Background(), sess)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if first != second {
		t.Fatalf("artifact path changed: %q vs %q", first, second)
	}
	if surface.renders() != 1 {
		t.Fatalf("expected exactly one surface render, got %d", surface.renders())
	}
	if _, err := os.Stat(first); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestEnsureVideoEmptySession(t *testing.T) {
	p := newTestPipeline(t, &fakeSurface{}, &fakeEncoder{}, Options{})

	_, err := p.EnsureVideo(context.Background(), renderSession("empty", 0))
	if !errors.Is(err, types.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
	if fileExists(p.VideoPath("empty")) {
		t.Fatal("zero-byte artifact must never be cached")
	}
}

func TestSurfaceFailureLeavesNoArtifact(t *testing.T) {
	surface := &fakeSurface{failures: 10}
	p := newTestPipeline(t, surface, &fakeEncoder{}, Options{MaxAttempts: 2})

	sess := renderSession("f1", 2)
	_, err := p.EnsureVideo(context.Background(), sess)
	if !errors.Is(err, ErrRetryBudgetExhausted) {
		t.Fatalf("expected ErrRetryBudgetExhausted, got %v", err)
	}
	if surface.renders() != 2 {
		t.Fatalf("expected 2 attempts, got %d", surface.renders())
	}
	if fileExists(p.VideoPath("f1")) {
		t.Fatal("failed render left an artifact at the canonical path")
	}
}

func TestSurfaceRetrySucceeds(t *testing.T) {
	surface := &fakeSurface{failures: 1}
	p := newTestPipeline(t, surface, &fakeEncoder{}, Options{MaxAttempts: 2})

	if _, err := p.EnsureVideo(context.Background(), renderSession("r1", 2)); err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if surface.renders() != 2 {
		t.Fatalf("expected 2 attempts, got %d", surface.renders())
	}
}

func TestEncodeFailureLeavesNoArtifact(t *testing.T) {
	p := newTestPipeline(t, &fakeSurface{}, &fakeEncoder{fail: true}, Options{})

	_, err := p.EnsureVideo(context.Background(), renderSession("e1", 2))
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("expected ErrEncodeFailed, got %v", err)
	}
	if fileExists(p.VideoPath("e1")) {
		t.Fatal("failed encode left an artifact at the canonical path")
	}
}

func TestConcurrencyCapRejects(t *testing.T) {
	block := make(chan struct{})
	surface := &fakeSurface{block: block}
	p := newTestPipeline(t, surface, &fakeEncoder{}, Options{MaxConcurrent: 1})

	done := make(chan error, 1)
	go func() {
		_, err := p.EnsureVideo(context.Background(), renderSession("busy1", 1))
		done <- err
	}()

	// Wait until the first render holds the slot.
	for surface.renders() == 0 {
		time.Sleep(time.Millisecond)
	}

	_, err := p.EnsureVideo(context.Background(), renderSession("busy2", 1))
	if !errors.Is(err, ErrTooBusy) {
		t.Fatalf("expected ErrTooBusy for second session, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first render: %v", err)
	}
}

func TestSameSessionInflightRejected(t *testing.T) {
	block := make(chan struct{})
	surface := &fakeSurface{block: block}
	p := newTestPipeline(t, surface, &fakeEncoder{}, Options{MaxConcurrent: 2})

	sess := renderSession("dup", 1)
	done := make(chan error, 1)
	go func() {
		_, err := p.EnsureVideo(context.Background(), sess)
		done <- err
	}()
	for surface.renders() == 0 {
		time.Sleep(time.Millisecond)
	}

	_, err := p.EnsureVideo(context.Background(), sess)
	if !errors.Is(err, ErrTooBusy) {
		t.Fatalf("expected ErrTooBusy for duplicate render, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first render: %v", err)
	}
}

func TestEnsureThumbnail(t *testing.T) {
	surface := &fakeSurface{}
	p := newTestPipeline(t, surface, &fakeEncoder{}, Options{})

	sess := renderSession("t1", 5)
	path, err := p.EnsureThumbnail(context.Background(), sess)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if filepath.Base(path) != "42.png" {
		t.Fatalf("expected thumbnail keyed by recordedAt, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}

	// Cached on the second request.
	if _, err := p.EnsureThumbnail(context.Background(), sess); err != nil {
		t.Fatalf("cached thumbnail: %v", err)
	}
	if surface.renders() != 1 {
		t.Fatalf("expected one surface render for thumbnails, got %d", surface.renders())
	}
}
