// Package render turns a stored session into a video artifact by replaying
// its event log against a render surface and encoding the captured frames.
package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"relive/replay/internal/types"
)

var (
	// ErrRendererUnavailable means the surface failed to launch or died
	// mid-replay. Transient: callers may retry shortly.
	ErrRendererUnavailable = errors.New("renderer unavailable")
	// ErrEncodeFailed means frames were captured but the encode step failed.
	// Terminal for this request.
	ErrEncodeFailed = errors.New("video encode failed")
	// ErrRetryBudgetExhausted means every surface attempt failed.
	ErrRetryBudgetExhausted = errors.New("render retry budget exhausted")
	// ErrTooBusy means the pipeline is at its concurrency cap or the session
	// is already rendering. Callers should retry after a delay.
	ErrTooBusy = errors.New("render capacity exhausted, try again")
)

type Options struct {
	VideosDir     string
	ThumbnailsDir string
	MaxConcurrent int
	MaxAttempts   int
	EventDelayMS  int
	FrameRate     int
}

// Pipeline renders sessions to MP4 artifacts, one cached artifact per
// session. Concurrency is capped by a semaphore; renders beyond capacity are
// refused rather than queued so the caller can signal retry-after.
type Pipeline struct {
	surface Surface
	encoder Encoder
	opts    Options

	sem      chan struct{}
	inflight *inflightSet
}

// NewPipeline wires a surface and encoder. Init must be called before use.
func NewPipeline(surface Surface, encoder Encoder, opts Options) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	return &Pipeline{
		surface:  surface,
		encoder:  encoder,
		opts:     opts,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		inflight: newInflightSet(),
	}
}

// Init creates the artifact directories. Kept separate from construction so
// filesystem failures surface explicitly.
func (p *Pipeline) Init() error {
	for _, dir := range []string{p.opts.VideosDir, p.opts.ThumbnailsDir, p.workRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("init render pipeline: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) workRoot() string {
	return filepath.Join(p.opts.VideosDir, ".work")
}

// VideoPath is the canonical artifact location for a session. Only ever
// populated by an atomic rename, so its presence means a complete file.
func (p *Pipeline) VideoPath(sessionID string) string {
	return filepath.Join(p.opts.VideosDir, sessionID+".mp4")
}

// ThumbnailPath keys thumbnails by the session's creation time.
func (p *Pipeline) ThumbnailPath(sess *types.Session) string {
	return filepath.Join(p.opts.ThumbnailsDir, strconv.FormatInt(sess.Metadata.RecordedAt, 10)+".png")
}

// EnsureVideo returns the cached artifact path, rendering it first if absent.
// A second call for the same session is a no-op cache hit; artifacts are
// never invalidated by later appends.
func (p *Pipeline) EnsureVideo(ctx context.Context, sess *types.Session) (string, error) {
	out := p.VideoPath(sess.SessionID)
	if fileExists(out) {
		metricRenders.WithLabelValues("cache_hit").Inc()
		return out, nil
	}
	if len(sess.Events) == 0 {
		return "", fmt.Errorf("%w: no events to render", types.ErrInvalidData)
	}

	if !p.inflight.add(sess.SessionID) {
		return "", fmt.Errorf("%w: session %s already rendering", ErrTooBusy, sess.SessionID)
	}
	defer p.inflight.remove(sess.SessionID)

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	default:
		metricRenders.WithLabelValues("rejected").Inc()
		return "", ErrTooBusy
	}

	// Re-check: a render that finished between the first check and the slot
	// acquisition already produced the artifact.
	if fileExists(out) {
		metricRenders.WithLabelValues("cache_hit").Inc()
		return out, nil
	}

	start := time.Now()
	script := BuildScript(sess, p.opts.FrameRate, p.opts.EventDelayMS)
	if err := p.renderTo(ctx, sess.SessionID, script, out); err != nil {
		metricRenders.WithLabelValues("failed").Inc()
		return "", err
	}
	metricRenders.WithLabelValues("rendered").Inc()
	metricRenderDuration.Observe(time.Since(start).Seconds())

	if fi, err := os.Stat(out); err == nil {
		log.Printf("render[%s] artifact ready: %s (%s in %s)",
			sess.SessionID, out, humanize.Bytes(uint64(fi.Size())), time.Since(start).Round(time.Millisecond))
	}
	return out, nil
}

// EnsureThumbnail renders a minimal one-event video and extracts its first
// frame, with the same cache discipline as EnsureVideo.
func (p *Pipeline) EnsureThumbnail(ctx context.Context, sess *types.Session) (string, error) {
	out := p.ThumbnailPath(sess)
	if fileExists(out) {
		return out, nil
	}
	if len(sess.Events) == 0 {
		return "", fmt.Errorf("%w: no events to render", types.ErrInvalidData)
	}

	first := &types.Session{
		SessionID: sess.SessionID,
		Events:    sess.Events[:1],
		Metadata:  sess.Metadata,
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	default:
		return "", ErrTooBusy
	}

	script := BuildScript(first, p.opts.FrameRate, p.opts.EventDelayMS)
	tmpVideo := filepath.Join(p.workRoot(), uuid.NewString()+".mp4")
	defer os.Remove(tmpVideo)
	if err := p.renderTo(ctx, sess.SessionID, script, tmpVideo); err != nil {
		return "", err
	}

	tmpPNG := out + ".tmp"
	if err := p.encoder.ExtractFrame(ctx, tmpVideo, 0, tmpPNG); err != nil {
		_ = os.Remove(tmpPNG)
		return "", fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if err := os.Rename(tmpPNG, out); err != nil {
		_ = os.Remove(tmpPNG)
		return "", fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return out, nil
}

// renderTo runs surface replay and encode into a temp path, then renames onto
// dst. A failure at any stage leaves nothing at dst.
func (p *Pipeline) renderTo(ctx context.Context, sessionID string, script Script, dst string) error {
	p.sweepWork()

	job := uuid.NewString()
	framesDir := filepath.Join(p.workRoot(), job)
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	defer os.RemoveAll(framesDir)

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if err := p.surface.Render(ctx, script, framesDir); err != nil {
			lastErr = err
			log.Printf("render[%s] surface attempt %d/%d failed: %v", sessionID, attempt, p.opts.MaxAttempts, err)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		if p.opts.MaxAttempts > 1 {
			return fmt.Errorf("%w: %v (last: %v)", ErrRetryBudgetExhausted, ErrRendererUnavailable, lastErr)
		}
		return fmt.Errorf("%w: %v", ErrRendererUnavailable, lastErr)
	}

	tmpOut := filepath.Join(p.workRoot(), job+".mp4")
	if err := p.encoder.Encode(ctx, framesDir, tmpOut, script.FrameRate); err != nil {
		_ = os.Remove(tmpOut)
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if err := os.Rename(tmpOut, dst); err != nil {
		_ = os.Remove(tmpOut)
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return nil
}

// sweepWork drops leftover frame directories from earlier crashed renders so
// disk growth stays bounded. Failures here are logged, never fatal.
func (p *Pipeline) sweepWork() {
	entries, err := os.ReadDir(p.workRoot())
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-time.Hour)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(p.workRoot(), e.Name())); err != nil {
			log.Printf("render: work dir cleanup failed for %s: %v", e.Name(), err)
		}
	}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

type inflightSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{ids: make(map[string]struct{})}
}

func (s *inflightSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *inflightSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}
