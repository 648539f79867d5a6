package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"relive/replay/internal/render"
	"relive/replay/internal/replay"
	"relive/replay/internal/session"
	"relive/replay/internal/types"
)

type mockRenderer struct {
	videos  int
	failErr error
}

func (m *mockRenderer) EnsureVideo(ctx context.Context, sess *types.Session) (string, error) {
	if m.failErr != nil {
		return "", m.failErr
	}
	m.videos++
	return "/tmp/" + sess.SessionID + ".mp4", nil
}

func (m *mockRenderer) EnsureThumbnail(ctx context.Context, sess *types.Session) (string, error) {
	return "/tmp/42.png", nil
}

func testServer(t *testing.T, renderer replay.Renderer) (*httptest.Server, *session.Store) {
	t.Helper()
	st, err := session.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := replay.NewService(st, renderer, t.TempDir())
	if err := svc.Init(); err != nil {
		t.Fatalf("init service: %v", err)
	}
	srv := httptest.NewServer(NewRouter(NewHandlers(st, svc)))
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestSaveAndFetchReplay(t *testing.T) {
	srv, _ := testServer(t, &mockRenderer{})

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"sessionId": "s1",
		"events":    []map[string]any{{"type": "mouse_click", "timestamp": 10, "data": map[string]any{"x": 5, "y": 5}}},
		"metadata":  map[string]any{"url": "http://x", "userAgent": "UA", "timestamp": 1000},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: expected 200, got %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/replays/s1")
	if err != nil {
		t.Fatalf("get replay: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get replay: expected 200, got %d", resp.StatusCode)
	}
	var rep struct {
		SessionID    string        `json:"sessionId"`
		Events       []types.Event `json:"events"`
		HasRecording bool          `json:"hasRecording"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if rep.SessionID != "s1" || len(rep.Events) != 1 || rep.HasRecording {
		t.Fatalf("unexpected replay: %+v", rep)
	}
}

func TestCreateSessionReturnsID(t *testing.T) {
	srv, st := testServer(t, &mockRenderer{})

	resp := postJSON(t, srv.URL+"/api/sessions/new", map[string]any{
		"url": "http://x", "userAgent": "UA", "timestamp": 1000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.SessionID) != 32 {
		t.Fatalf("unexpected generated id %q", out.SessionID)
	}
	if _, err := st.Read(out.SessionID); err != nil {
		t.Fatalf("created session unreadable: %v", err)
	}
}

func TestInvalidBatchRejected(t *testing.T) {
	srv, _ := testServer(t, &mockRenderer{})

	// Missing userAgent and timestamp.
	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"sessionId": "s1",
		"events":    []map[string]any{},
		"metadata":  map[string]any{"url": "http://x"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUnknownReplay404(t *testing.T) {
	srv, _ := testServer(t, &mockRenderer{})

	for _, path := range []string{"/api/replays/nope", "/api/replays/nope/video", "/api/replays/nope/recording"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestVideoURL(t *testing.T) {
	renderer := &mockRenderer{}
	srv, st := testServer(t, renderer)

	if _, err := st.CreateOrAppend("v1", []types.Event{{Type: types.EventMouseMove, Timestamp: 1}},
		types.MetadataPatch{URL: "http://x", UserAgent: "UA", Timestamp: 1000}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/replays/v1/video")
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.URL != "/videos/v1.mp4" {
		t.Fatalf("unexpected url %q", out.URL)
	}
	if renderer.videos != 1 {
		t.Fatalf("expected one render, got %d", renderer.videos)
	}
}

func TestBusyRendererGetsRetryAfter(t *testing.T) {
	srv, st := testServer(t, &mockRenderer{failErr: render.ErrTooBusy})

	if _, err := st.CreateOrAppend("b1", []types.Event{{Type: types.EventMouseMove, Timestamp: 1}},
		types.MetadataPatch{URL: "http://x", UserAgent: "UA", Timestamp: 1000}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/replays/b1/video")
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on transient failure")
	}
}

func TestTerminalRenderFailure500(t *testing.T) {
	srv, st := testServer(t, &mockRenderer{failErr: render.ErrEncodeFailed})

	if _, err := st.CreateOrAppend("e1", []types.Event{{Type: types.EventMouseMove, Timestamp: 1}},
		types.MetadataPatch{URL: "http://x", UserAgent: "UA", Timestamp: 1000}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/replays/e1/video")
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "" {
		t.Fatal("terminal failure must not advertise a retry")
	}
}

func TestListReplays(t *testing.T) {
	srv, st := testServer(t, &mockRenderer{})

	for _, id := range []string{"a", "b"} {
		if _, err := st.CreateOrAppend(id, []types.Event{{Type: types.EventScroll, Timestamp: 1}},
			types.MetadataPatch{URL: "http://" + id, UserAgent: "UA", Timestamp: 1000}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	resp, err := http.Get(srv.URL + "/api/replays")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var out []types.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(out))
	}
}
