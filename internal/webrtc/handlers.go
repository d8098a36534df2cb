package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/open-beagle/bdwind-viewer/internal/events"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsQueueSize     = 32
	defaultPushTick = 30 * time.Second
)

// streamHandlers 流管理API的HTTP处理器
type streamHandlers struct {
	manager *Manager
}

func newStreamHandlers(manager *Manager) *streamHandlers {
	return &streamHandlers{manager: manager}
}

func (h *streamHandlers) setupRoutes(router *mux.Router) error {
	api := router.PathPrefix("/api/streams").Subrouter()
	// ws 必须先于 {id} 注册
	api.HandleFunc("/ws", h.handleWebSocket).Methods(http.MethodGet)
	api.HandleFunc("", h.handleList).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/{id}", h.handleStop).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/reconnect", h.handleReconnect).Methods(http.MethodPost)

	h.manager.logger.Debug("Stream API routes registered: /api/streams/*")
	return nil
}

func (h *streamHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Streams())
}

func (h *streamHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *streamHandlers) handleStart(w http.ResponseWriter, r *http.Request) {
	sup, err := h.manager.StartStream(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sup.Status())
}

func (h *streamHandlers) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StopStream(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *streamHandlers) handleReconnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Reconnect(id); err != nil {
		writeError(w, err)
		return
	}
	status, err := h.manager.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

// handleWebSocket 连接建立后推送一次全量快照，之后推送每个事件，并定期补发全量快照
func (h *streamHandlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.manager.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.manager.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	logger := h.manager.logger.WithField("remote", r.RemoteAddr)
	logger.Debug("Status websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queue := make(chan events.Event, wsQueueSize)
	if h.manager.bus != nil {
		unsubscribe, err := h.manager.bus.Subscribe(events.AllEvents, events.HandlerFunc(
			func(_ context.Context, event events.Event) error {
				select {
				case queue <- event:
				default:
				}
				return nil
			}))
		if err == nil {
			defer unsubscribe()
		}
	}

	// 读取循环只用于感知客户端断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := h.manager.config.WebServer.StatusPushInterval
	if interval <= 0 {
		interval = defaultPushTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := writeWS(conn, snapshotMessage(h.manager)); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Status websocket closed")
			return
		case <-h.manager.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case event := <-queue:
			if err := writeWS(conn, events.Envelope(event)); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeWS(conn, snapshotMessage(h.manager)); err != nil {
				return
			}
		}
	}
}

type snapshot struct {
	Type string `json:"type"`
	StreamsResponse
}

func snapshotMessage(m *Manager) snapshot {
	return snapshot{Type: "snapshot", StreamsResponse: m.Streams()}
}

func writeWS(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrStreamNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrStreamExists):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidStreamID):
		status = http.StatusBadRequest
	case errors.Is(err, ErrManagerNotRunning), errors.Is(err, ErrSupervisorDisposed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
