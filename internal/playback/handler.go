package playback

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// Handler exposes the session over HTTP: control endpoints, a state read
// and a websocket push of published snapshots.
type Handler struct {
	sess     *Session
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler for sess.
func NewHandler(sess *Session, log *slog.Logger) *Handler {
	return &Handler{
		sess: sess,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/state", h.GetState)
	r.Post("/play", h.Play)
	r.Post("/pause", h.Pause)
	r.Post("/seek", h.Seek)
	r.Post("/speed", h.SetSpeed)
	r.Post("/loop", h.SetLoop)
	r.Post("/drag", h.SetDragging)
	r.Get("/ws", h.ServeWS)
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// Play handles POST /play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Play(); err != nil {
		switch {
		case errors.Is(err, ErrNothingToPlay):
			w.WriteHeader(http.StatusConflict)
		case errors.Is(err, ErrSessionClosed):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			h.log.Error("play failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// Pause handles POST /pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.sess.Pause()
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// Seek handles POST /seek. Body: { "time": 4.2 }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time *float64 `json:"time"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.Time == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.sess.Seek(*body.Time)
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// SetSpeed handles POST /speed. Body: { "speed": -2 }.
func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.sess.SetSpeed(body.Speed); err != nil {
		h.log.Debug("speed rejected", slog.Float64("speed", body.Speed), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// SetLoop handles POST /loop. Body: { "enabled": true }.
func (h *Handler) SetLoop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	h.sess.SetLoop(body.Enabled)
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// SetDragging handles POST /drag. Body: { "active": true }.
func (h *Handler) SetDragging(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active bool `json:"active"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	h.sess.SetDragging(body.Active)
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// ServeWS handles GET /ws: every published snapshot is pushed as a JSON
// text message. A slow client skips intermediate snapshots.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	sub, cancel := h.sess.Subscribe()
	h.log.Info("websocket subscriber connected", slog.String("subscriber_id", sub.ID))

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)

	cancel()
	h.log.Info("websocket subscriber disconnected", slog.String("subscriber_id", sub.ID))
}

// readPump discards client messages and detects disconnects.
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case snap, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid request body", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
