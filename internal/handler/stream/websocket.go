package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
	"github.com/zhouzirui/z-lingo/backend/internal/relay"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
	wsReadLimit    = 1 << 20
)

// wsEmitter writes outbound events as JSON text frames.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(event chat.StreamEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return e.conn.WriteJSON(event.Wire())
}

var _ relay.Emitter = (*wsEmitter)(nil)

// handleWebSocket serves chat requests over one connection. Each text frame is a
// StreamRequest; its events come back as frames shaped like the SSE payloads.
// Requests are handled one at a time in arrival order.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	requests := make(chan []byte, 1)
	go func() {
		defer cancel()
		defer close(requests)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Msg("websocket read error")
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			select {
			case requests <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := &wsEmitter{conn: conn}
	for data := range requests {
		var payload StreamRequest
		if err := json.Unmarshal(data, &payload); err != nil {
			h.rejectFrame(out, "invalid request body")
			continue
		}
		req, err := h.buildRequest(payload)
		if err != nil {
			h.rejectFrame(out, err.Error())
			continue
		}
		h.run(ctx, req, out)
		if ctx.Err() != nil {
			return
		}
	}
}

// rejectFrame reports an unusable request frame without closing the connection.
func (h *Handler) rejectFrame(out relay.Emitter, detail string) {
	if err := out.Emit(chat.ErrorEvent(detail)); err != nil {
		h.logger.Debug().Err(err).Msg("failed to report rejected websocket request")
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
