package types

// EventType identifies the kind of captured interaction. The set is closed:
// the replay dispatcher switches over every constant below, and anything else
// arriving on the wire is preserved in storage but skipped during rendering.
type EventType string

const (
	EventMouseMove      EventType = "mouse_move"
	EventMouseClick     EventType = "mouse_click"
	EventScroll         EventType = "scroll"
	EventInput          EventType = "input"
	EventViewportResize EventType = "viewport_resize"
	EventDOMMutation    EventType = "dom_mutation"
	EventNetwork        EventType = "network"
	EventConsole        EventType = "console"
	EventError          EventType = "error"
	EventSnapshot       EventType = "snapshot"
	EventCustom         EventType = "custom"
)

// Known reports whether t is one of the closed event kinds.
func (t EventType) Known() bool {
	switch t {
	case EventMouseMove, EventMouseClick, EventScroll, EventInput,
		EventViewportResize, EventDOMMutation, EventNetwork,
		EventConsole, EventError, EventSnapshot, EventCustom:
		return true
	}
	return false
}

// Event is one captured interaction. Timestamp is milliseconds relative to
// session start; within a session it is expected to be non-decreasing but the
// store never enforces or repairs ordering.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type SessionStatus string

const (
	StatusRecording SessionStatus = "recording"
	StatusComplete  SessionStatus = "complete"
)

// Metadata describes the client environment of a session. RecordedAt is set
// once at creation; LastUpdated is overwritten on every successful append.
type Metadata struct {
	URL         string        `json:"url"`
	UserAgent   string        `json:"userAgent"`
	Timestamp   int64         `json:"timestamp"`
	Viewport    *Viewport     `json:"viewport,omitempty"`
	RecordedAt  int64         `json:"recordedAt"`
	LastUpdated int64         `json:"lastUpdated"`
	Status      SessionStatus `json:"status"`
	Version     string        `json:"version"`
}

// MetadataPatch carries the per-batch metadata sent alongside events. Fields
// left at their zero value are not applied; URL may legitimately change on
// later batches (single-page-app navigation).
type MetadataPatch struct {
	URL        string    `json:"url"`
	UserAgent  string    `json:"userAgent"`
	Timestamp  int64     `json:"timestamp"`
	Viewport   *Viewport `json:"viewport,omitempty"`
	IsComplete bool      `json:"isComplete,omitempty"`
}

// Merge applies the patch over m, later values winning. RecordedAt and
// Version are never touched here.
func (m *Metadata) Merge(p MetadataPatch) {
	if p.URL != "" {
		m.URL = p.URL
	}
	if p.UserAgent != "" {
		m.UserAgent = p.UserAgent
	}
	if p.Timestamp != 0 {
		m.Timestamp = p.Timestamp
	}
	if p.Viewport != nil {
		m.Viewport = p.Viewport
	}
	if p.IsComplete {
		m.Status = StatusComplete
	}
}

// Session is the canonical on-disk document: metadata plus the ordered event
// log. Callers always receive copies; the store owns the persisted form.
type Session struct {
	SessionID string   `json:"sessionId"`
	Events    []Event  `json:"events"`
	Metadata  Metadata `json:"metadata"`
}

// SessionSummary is the listing projection of a session.
type SessionSummary struct {
	SessionID   string        `json:"sessionId"`
	URL         string        `json:"url"`
	Timestamp   int64         `json:"timestamp"`
	UserAgent   string        `json:"userAgent"`
	Status      SessionStatus `json:"status"`
	RecordedAt  int64         `json:"recordedAt"`
	LastUpdated int64         `json:"lastUpdated"`
	EventCount  int           `json:"eventCount"`
}
