package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/service"
)

// ViewSource exposes dashboard view snapshots.
type ViewSource interface {
	Views() []service.ViewInfo
	Has(name string) bool
	Snapshot(name string) (service.ViewSnapshot, error)
	Subscribe(name string) (<-chan service.ViewSnapshot, func(), error)
}

const (
	streamWriteWait    = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingInterval = streamPongWait * 9 / 10
	streamReadLimit    = 4096
)

// ViewHandlers serves view snapshots over JSON and websocket.
type ViewHandlers struct {
	Views          ViewSource
	AllowedOrigins []string
	Metrics        *metrics.Recorder
	Logger         *slog.Logger
}

func (h *ViewHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// List returns the view catalogue.
// GET /api/views.
func (h *ViewHandlers) List(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"views": h.Views.Views()})
}

// Get returns the latest snapshot of one view. Upstream failures are listed
// inline in the snapshot and never fail the request.
// GET /api/views/{view}.
func (h *ViewHandlers) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Views.Snapshot(r.PathValue("view"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, snap)
}

// streamMessage is one frame sent to stream clients.
type streamMessage struct {
	Type     string                `json:"type"`
	Snapshot *service.ViewSnapshot `json:"snapshot,omitempty"`
}

// Stream pushes snapshots of a view as they change.
// GET /api/stream/{view} (websocket).
func (h *ViewHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	if !h.Views.Has(name) {
		WriteAppError(w, apperrors.NotFoundf("view %q not found", name))
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger().DebugContext(r.Context(), "websocket upgrade failed", "view", name, "error", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.Views.Subscribe(name)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(streamWriteWait))
		return
	}
	defer cancel()

	h.Metrics.StreamClients(1)
	defer h.Metrics.StreamClients(-1)
	h.logger().DebugContext(r.Context(), "stream client connected", "view", name)

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
				h.logger().DebugContext(r.Context(), "stream write failed", "view", name, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and close frames are
// processed, and signals when the connection goes away.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// checkOrigin accepts same-host pages and configured origins.
func (h *ViewHandlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.AllowedOrigins, "*") || slices.Contains(h.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}
