package render

import (
	"log"

	"relive/replay/internal/types"
)

// CommandOp is one primitive the render surface knows how to execute.
type CommandOp string

const (
	OpMouseMove   CommandOp = "mouse_move"
	OpClick       CommandOp = "click"
	OpScroll      CommandOp = "scroll"
	OpSetValue    CommandOp = "set_value"
	OpSetDocument CommandOp = "set_document"
	OpResize      CommandOp = "resize"
)

// Command is a single replay instruction, already resolved from the stored
// event payload. DelayMS is the pause before dispatching the next command.
type Command struct {
	Op       CommandOp `json:"op"`
	DelayMS  int       `json:"delayMs"`
	X        float64   `json:"x,omitempty"`
	Y        float64   `json:"y,omitempty"`
	Selector string    `json:"selector,omitempty"`
	Value    string    `json:"value,omitempty"`
	HTML     string    `json:"html,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
}

// Script is the full input handed to a render surface: the page to open and
// the ordered command list to replay against it.
type Script struct {
	SessionID string         `json:"sessionId"`
	URL       string         `json:"url"`
	UserAgent string         `json:"userAgent"`
	Viewport  types.Viewport `json:"viewport"`
	FrameRate int            `json:"frameRate"`
	Commands  []Command      `json:"commands"`
}

// DefaultViewport is used when the session never declared one.
var DefaultViewport = types.Viewport{Width: 1920, Height: 1080}

// BuildScript translates the stored event log into surface commands, in
// stored order. Replay pacing is the fixed delayMS between commands; original
// inter-event wall-clock gaps are deliberately not reconstructed. Non-visual
// kinds (network, console, error, custom) produce no command. Unknown types
// are logged and skipped, never fatal.
func BuildScript(sess *types.Session, frameRate, delayMS int) Script {
	vp := DefaultViewport
	if sess.Metadata.Viewport != nil && sess.Metadata.Viewport.Width > 0 && sess.Metadata.Viewport.Height > 0 {
		vp = *sess.Metadata.Viewport
	}
	s := Script{
		SessionID: sess.SessionID,
		URL:       sess.Metadata.URL,
		UserAgent: sess.Metadata.UserAgent,
		Viewport:  vp,
		FrameRate: frameRate,
		Commands:  make([]Command, 0, len(sess.Events)),
	}

	for _, e := range sess.Events {
		switch e.Type {
		case types.EventMouseMove:
			s.push(Command{Op: OpMouseMove, X: numField(e.Data, "x"), Y: numField(e.Data, "y")}, delayMS)
		case types.EventMouseClick:
			// Move the pointer first so the click lands where the cursor is seen.
			x, y := numField(e.Data, "x"), numField(e.Data, "y")
			s.push(Command{Op: OpMouseMove, X: x, Y: y}, 0)
			s.push(Command{Op: OpClick, X: x, Y: y}, delayMS)
		case types.EventScroll:
			s.push(Command{
				Op: OpScroll,
				X:  firstNumField(e.Data, "scrollX", "x"),
				Y:  firstNumField(e.Data, "scrollY", "y"),
			}, delayMS)
		case types.EventInput:
			sel := firstStrField(e.Data, "selector", "id")
			if sel == "" {
				log.Printf("render[%s] input event without selector, skipping", sess.SessionID)
				continue
			}
			s.push(Command{Op: OpSetValue, Selector: sel, Value: strField(e.Data, "value")}, delayMS)
		case types.EventViewportResize:
			s.push(Command{
				Op:     OpResize,
				Width:  int(numField(e.Data, "width")),
				Height: int(numField(e.Data, "height")),
			}, delayMS)
		case types.EventDOMMutation, types.EventSnapshot:
			html := strField(e.Data, "html")
			if html == "" {
				log.Printf("render[%s] %s event without html, skipping", sess.SessionID, e.Type)
				continue
			}
			s.push(Command{Op: OpSetDocument, HTML: html}, delayMS)
		case types.EventNetwork, types.EventConsole, types.EventError, types.EventCustom:
			// Nothing to draw for these.
		default:
			log.Printf("render[%s] unknown event type %q, skipping", sess.SessionID, e.Type)
		}
	}
	return s
}

func (s *Script) push(c Command, delayMS int) {
	c.DelayMS = delayMS
	s.Commands = append(s.Commands, c)
}

func numField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func firstNumField(data map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if _, ok := data[k]; ok {
			return numField(data, k)
		}
	}
	return 0
}

func strField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func firstStrField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := strField(data, k); v != "" {
			return v
		}
	}
	return ""
}
