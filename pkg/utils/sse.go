package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

// ErrStreamClosed is returned when writing after the terminal event.
var ErrStreamClosed = errors.New("sse stream already closed")

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSEWriter encodes chat stream events as `data: <json>\n\n` lines, flushing
// after every event. Headers are committed lazily: an error event that arrives
// before anything was written becomes a plain JSON error response instead.
type SSEWriter struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	flusher     http.Flusher
	started     bool
	closed      bool
	errorStatus int
}

// NewSSEWriter wraps w. errorStatus is used for errors raised before the stream opens.
func NewSSEWriter(w http.ResponseWriter, errorStatus int) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	if errorStatus < 400 {
		errorStatus = http.StatusBadGateway
	}
	return &SSEWriter{w: w, flusher: flusher, errorStatus: errorStatus}, nil
}

// Started reports whether the event stream was opened. An error answered as a
// plain JSON response does not open it.
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Emit writes one event. Terminal events close the writer.
func (s *SSEWriter) Emit(event chat.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if event.Terminal() {
		s.closed = true
	}

	if !s.started && event.Kind == chat.EventError {
		RespondError(s.w, s.errorStatus, event.Detail)
		return nil
	}

	if !s.started {
		SetupSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	return SendSSEChunk(s.w, s.flusher, event.Wire())
}

// Close marks the stream finished; later writes fail with ErrStreamClosed.
func (s *SSEWriter) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// SendSSEChunk 发送Server-Sent Events数据块
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}

	if _, err := w.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("write sse prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write sse payload: %w", err)
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("write sse terminator: %w", err)
	}
	flusher.Flush()
	return nil
}
