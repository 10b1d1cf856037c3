package playback

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"nle-playback/internal/platform/logger"
)

func newTestRouter(t *testing.T, duration float64) (*chi.Mux, *Session) {
	t.Helper()
	repo, _ := newTestRepo(t, duration)
	s := newTestSession(t, repo, Options{})
	r := chi.NewRouter()
	NewHandler(s, logger.Discard()).Routes(r)
	return r, s
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Snapshot) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var snap Snapshot
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&snap); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return rec, snap
}

func TestHandler_GetState(t *testing.T) {
	r, s := newTestRouter(t, 10)

	rec, snap := do(t, r, http.MethodGet, "/state", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if snap.SessionID != s.ID() || snap.Duration != 10 || len(snap.Layers) != 1 {
		t.Errorf("state = %+v", snap)
	}
}

func TestHandler_Seek(t *testing.T) {
	r, _ := newTestRouter(t, 10)

	rec, snap := do(t, r, http.MethodPost, "/seek", `{"time": 2.5}`)
	if rec.Code != http.StatusOK || snap.PlayheadPosition != 2.5 {
		t.Errorf("status=%d position=%v", rec.Code, snap.PlayheadPosition)
	}

	for _, body := range []string{`{`, `{}`} {
		if rec, _ := do(t, r, http.MethodPost, "/seek", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHandler_SetSpeed(t *testing.T) {
	r, _ := newTestRouter(t, 10)

	if rec, snap := do(t, r, http.MethodPost, "/speed", `{"speed": -2}`); rec.Code != http.StatusOK || snap.Speed != -2 {
		t.Errorf("status=%d speed=%v", rec.Code, snap.Speed)
	}
	if rec, _ := do(t, r, http.MethodPost, "/speed", `{"speed": 0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("zero speed status = %d, want 400", rec.Code)
	}
}

func TestHandler_LoopAndDrag(t *testing.T) {
	r, _ := newTestRouter(t, 10)

	if _, snap := do(t, r, http.MethodPost, "/loop", `{"enabled": true}`); !snap.Loop {
		t.Error("loop not enabled")
	}
	if _, snap := do(t, r, http.MethodPost, "/drag", `{"active": true}`); !snap.Dragging {
		t.Error("dragging not set")
	}
}

func TestHandler_PlayPause(t *testing.T) {
	r, _ := newTestRouter(t, 10)

	if rec, snap := do(t, r, http.MethodPost, "/play", ""); rec.Code != http.StatusOK || !snap.Playing {
		t.Fatalf("play: status=%d playing=%v", rec.Code, snap.Playing)
	}
	if rec, snap := do(t, r, http.MethodPost, "/pause", ""); rec.Code != http.StatusOK || snap.Playing {
		t.Errorf("pause: status=%d playing=%v", rec.Code, snap.Playing)
	}
}

func TestHandler_Play_emptyTimeline(t *testing.T) {
	r, _ := newTestRouter(t, 0)

	if rec, _ := do(t, r, http.MethodPost, "/play", ""); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHandler_ServeWS_pushesSnapshots(t *testing.T) {
	r, s := newTestRouter(t, 10)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.SessionID != s.ID() {
		t.Errorf("initial snapshot = %+v", first)
	}

	s.Seek(7)
	var next Snapshot
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read after seek: %v", err)
	}
	if next.PlayheadPosition != 7 {
		t.Errorf("pushed position = %v, want 7", next.PlayheadPosition)
	}

	conn.Close()
	eventually(t, "subscriber cleanup", func() bool { return s.Subscribers() == 0 })
}
