// Package session persists one JSON document per session under a flat
// directory. Writes go through a temp/backup/commit sequence so that a crash
// mid-append never leaves the session without a readable file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"relive/replay/internal/types"
)

var (
	// ErrNotFound means neither the primary file nor a recoverable backup
	// exists or parses.
	ErrNotFound = errors.New("session not found")
	// ErrWriteFailed means the durability protocol could not complete; the
	// previous file state was preserved best-effort.
	ErrWriteFailed = errors.New("session write failed")
)

const (
	suffixPrimary = ".json"
	suffixTemp    = ".json.tmp"
	suffixBackup  = ".json.bak"

	schemaVersion = "1.0.0"
)

// Store owns the on-disk session documents. Appends to the same session ID
// are serialized by a per-ID mutex; different IDs proceed in parallel.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open initializes a store rooted at dir, creating it if needed. Directory
// creation is an explicit step here rather than a construction side effect so
// the caller gets the error.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{
		dir:   dir,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) primaryPath(id string) string {
	return filepath.Join(s.dir, id+suffixPrimary)
}

// CreateOrAppend loads the persisted session for id if present, otherwise
// initializes an empty one, appends events in arrival order, merges the
// metadata patch and persists durably. Returns the session ID (generated when
// id is empty). Events are never deduplicated or reordered.
func (s *Store) CreateOrAppend(id string, events []types.Event, patch types.MetadataPatch) (string, error) {
	if err := types.Validate(events, patch); err != nil {
		return "", err
	}
	if id == "" {
		id = GenerateID(patch.Timestamp, patch.UserAgent)
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	start := s.now()
	sess, err := s.load(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
		sess = &types.Session{
			SessionID: id,
			Events:    []types.Event{},
			Metadata: types.Metadata{
				RecordedAt: s.now().UnixMilli(),
				Status:     types.StatusRecording,
				Version:    schemaVersion,
			},
		}
	}

	sess.Events = append(sess.Events, events...)
	sess.Metadata.Merge(patch)
	sess.Metadata.LastUpdated = s.now().UnixMilli()

	if err := s.writeSessionFile(id, sess); err != nil {
		metricAppendErrors.Inc()
		return "", err
	}
	metricAppends.Inc()
	metricAppendDuration.Observe(s.now().Sub(start).Seconds())
	return id, nil
}

// Read returns a copy of the persisted session. If the primary file is
// missing or corrupt but a valid backup exists, the backup is treated as
// authoritative and rewritten to the primary path.
func (s *Store) Read(id string) (*types.Session, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return s.load(id)
}

// load assumes the per-ID lock is held.
func (s *Store) load(id string) (*types.Session, error) {
	primary := s.primaryPath(id)
	sess, err := readSessionFile(primary)
	if err == nil {
		return sess, nil
	}

	recovered, rerr := readSessionFile(filepath.Join(s.dir, id+suffixBackup))
	if rerr != nil {
		if os.IsNotExist(err) && os.IsNotExist(rerr) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %s (primary: %v, backup: %v)", ErrNotFound, id, err, rerr)
	}

	// Self-heal: the backup survived a failed update, make it primary again.
	log.Printf("store[%s] primary unreadable, recovering from backup: %v", id, err)
	if werr := s.writeSessionFile(id, recovered); werr != nil {
		log.Printf("store[%s] backup rewrite failed: %v", id, werr)
	} else {
		metricRecoveredReads.Inc()
	}
	return recovered, nil
}

// List reduces every committed session file to a summary, newest client
// timestamp first. Temp and backup files are never listed; unreadable entries
// are logged and skipped.
func (s *Store) List() ([]types.SessionSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	summaries := make([]types.SessionSummary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffixPrimary) ||
			strings.HasSuffix(name, suffixTemp) || strings.HasSuffix(name, suffixBackup) {
			continue
		}
		sess, err := readSessionFile(filepath.Join(s.dir, name))
		if err != nil {
			log.Printf("store: skipping unreadable session file %s: %v", name, err)
			continue
		}
		summaries = append(summaries, types.SessionSummary{
			SessionID:   sess.SessionID,
			URL:         sess.Metadata.URL,
			Timestamp:   sess.Metadata.Timestamp,
			UserAgent:   sess.Metadata.UserAgent,
			Status:      sess.Metadata.Status,
			RecordedAt:  sess.Metadata.RecordedAt,
			LastUpdated: sess.Metadata.LastUpdated,
			EventCount:  len(sess.Events),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp > summaries[j].Timestamp
	})
	return summaries, nil
}

func readSessionFile(path string) (*types.Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sess types.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if sess.SessionID == "" {
		return nil, fmt.Errorf("parse %s: missing sessionId", filepath.Base(path))
	}
	return &sess, nil
}

// writeSessionFile runs the durability protocol: serialize to <id>.json.tmp,
// rename any existing primary to <id>.json.bak, rename temp over primary,
// then drop the backup. On failure the backup is restored so the primary ends
// the operation either fully updated or unchanged.
func (s *Store) writeSessionFile(id string, sess *types.Session) error {
	primary := s.primaryPath(id)
	temp := filepath.Join(s.dir, id+suffixTemp)
	backup := filepath.Join(s.dir, id+suffixBackup)

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrWriteFailed, err)
	}

	if err := os.WriteFile(temp, raw, 0o644); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("%w: write temp: %v", ErrWriteFailed, err)
	}

	// Best-effort: there is no primary to back up on first write.
	backedUp := os.Rename(primary, backup) == nil

	if err := os.Rename(temp, primary); err != nil {
		if backedUp {
			if rerr := os.Rename(backup, primary); rerr != nil {
				log.Printf("store[%s] backup restore failed: %v", id, rerr)
			}
		}
		_ = os.Remove(temp)
		return fmt.Errorf("%w: commit: %v", ErrWriteFailed, err)
	}

	_ = os.Remove(backup)
	return nil
}
