// Package replay is the read side: it lists sessions, resolves raw replay
// data and turns sessions into servable video and thumbnail artifacts on
// demand.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"relive/replay/internal/types"
)

// ErrRecordingNotFound means no client-uploaded screen recording exists for
// the session.
var ErrRecordingNotFound = errors.New("recording not found")

// Store is the slice of the session store this service reads from.
type Store interface {
	Read(id string) (*types.Session, error)
	List() ([]types.SessionSummary, error)
}

// Renderer produces cached artifacts from a session.
type Renderer interface {
	EnsureVideo(ctx context.Context, sess *types.Session) (string, error)
	EnsureThumbnail(ctx context.Context, sess *types.Session) (string, error)
}

// Replay is a session plus whether a companion raw screen recording was
// uploaded for it.
type Replay struct {
	*types.Session
	HasRecording bool `json:"hasRecording"`
}

type Service struct {
	store         Store
	renderer      Renderer
	recordingsDir string
}

func NewService(store Store, renderer Renderer, recordingsDir string) *Service {
	return &Service{store: store, renderer: renderer, recordingsDir: recordingsDir}
}

// Init creates the recordings directory.
func (s *Service) Init() error {
	if err := os.MkdirAll(s.recordingsDir, 0o755); err != nil {
		return fmt.Errorf("init replay service: %w", err)
	}
	return nil
}

func (s *Service) ListReplays() ([]types.SessionSummary, error) {
	return s.store.List()
}

// GetReplay returns the raw session for the in-browser replay widget.
func (s *Service) GetReplay(id string) (*Replay, error) {
	sess, err := s.store.Read(id)
	if err != nil {
		return nil, err
	}
	return &Replay{
		Session:      sess,
		HasRecording: fileExists(s.recordingPath(id)),
	}, nil
}

// VideoURL guarantees a video artifact exists for the session and returns its
// servable URL. An existing artifact is never re-rendered.
func (s *Service) VideoURL(ctx context.Context, id string) (string, error) {
	sess, err := s.store.Read(id)
	if err != nil {
		return "", err
	}
	if _, err := s.renderer.EnsureVideo(ctx, sess); err != nil {
		return "", err
	}
	return "/videos/" + id + ".mp4", nil
}

// Thumbnail guarantees a thumbnail exists and returns its filesystem path.
func (s *Service) Thumbnail(ctx context.Context, id string) (string, error) {
	sess, err := s.store.Read(id)
	if err != nil {
		return "", err
	}
	return s.renderer.EnsureThumbnail(ctx, sess)
}

// RecordingURL returns the servable URL of the uploaded screen recording.
func (s *Service) RecordingURL(id string) (string, error) {
	if !fileExists(s.recordingPath(id)) {
		return "", fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return "/recordings/" + id + ".webm", nil
}

// SaveRecording stores a client-uploaded webm next to the session data.
func (s *Service) SaveRecording(id string, r io.Reader) error {
	tmp := s.recordingPath(id) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("save recording: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save recording: %w", err)
	}
	if err := os.Rename(tmp, s.recordingPath(id)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save recording: %w", err)
	}
	return nil
}

func (s *Service) recordingPath(id string) string {
	return filepath.Join(s.recordingsDir, id+".webm")
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
