package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	readSize     = 4096
)

// UpstreamKind tags an UpstreamEvent.
type UpstreamKind int

const (
	// UpstreamFragment carries a non-empty content delta.
	UpstreamFragment UpstreamKind = iota
	// UpstreamDone signals the end of generation.
	UpstreamDone
	// UpstreamFailure signals a transport failure. No further events follow.
	UpstreamFailure
)

// UpstreamEvent is one decoded provider event.
type UpstreamEvent struct {
	Kind UpstreamKind
	Text string
	Err  error
}

// Decoder turns provider SSE bytes into events. It keeps the unterminated tail of
// the previous chunk so that lines split across reads are decoded whole.
type Decoder struct {
	buf  []byte
	done bool
}

// Done reports whether a terminal event has been produced.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed consumes one chunk and returns the events completed by it.
func (d *Decoder) Feed(chunk []byte) []UpstreamEvent {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []UpstreamEvent
	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		events = d.decodeLine(line, events)
	}
	if d.done {
		d.buf = nil
	}
	return events
}

// Flush decodes a trailing line left without a newline and always ends the stream
// with a done event unless one was already produced.
func (d *Decoder) Flush() []UpstreamEvent {
	if d.done {
		return nil
	}
	var events []UpstreamEvent
	if len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		events = d.decodeLine(line, events)
	}
	if !d.done {
		d.done = true
		events = append(events, UpstreamEvent{Kind: UpstreamDone})
	}
	return events
}

func (d *Decoder) decodeLine(line string, events []UpstreamEvent) []UpstreamEvent {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return events
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		d.done = true
		return append(events, UpstreamEvent{Kind: UpstreamDone})
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// heartbeats and other non-JSON lines
		return events
	}
	if len(chunk.Choices) == 0 {
		return events
	}

	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		events = append(events, UpstreamEvent{Kind: UpstreamFragment, Text: choice.Delta.Content})
	}
	if choice.FinishReason != "" {
		d.done = true
		events = append(events, UpstreamEvent{Kind: UpstreamDone})
	}
	return events
}

// Source produces upstream events for one request.
type Source interface {
	// Stream calls emit for every event until a terminal event is produced, emit
	// returns false, or ctx ends.
	Stream(ctx context.Context, emit func(UpstreamEvent) bool)
	// Close releases the underlying transport. It may be called concurrently with Stream.
	Close() error
}

// BodySource decodes a provider SSE response body.
type BodySource struct {
	body io.ReadCloser
}

// NewBodySource wraps an already validated (2xx) provider response body.
func NewBodySource(body io.ReadCloser) *BodySource {
	return &BodySource{body: body}
}

func (s *BodySource) Stream(ctx context.Context, emit func(UpstreamEvent) bool) {
	var decoder Decoder
	buf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			emit(UpstreamEvent{Kind: UpstreamFailure, Err: err})
			return
		}

		n, err := s.body.Read(buf)
		if n > 0 {
			for _, ev := range decoder.Feed(buf[:n]) {
				if !emit(ev) {
					return
				}
			}
			if decoder.Done() {
				return
			}
		}
		if errors.Is(err, io.EOF) {
			for _, ev := range decoder.Flush() {
				if !emit(ev) {
					return
				}
			}
			return
		}
		if err != nil {
			emit(UpstreamEvent{Kind: UpstreamFailure, Err: fmt.Errorf("read upstream stream: %w", err)})
			return
		}
	}
}

func (s *BodySource) Close() error {
	return s.body.Close()
}

// TextSource adapts a non-streaming completion into a single fragment followed by done.
type TextSource struct {
	generate func(ctx context.Context) (string, error)
}

// NewTextSource wraps a blocking completion call.
func NewTextSource(generate func(ctx context.Context) (string, error)) *TextSource {
	return &TextSource{generate: generate}
}

func (s *TextSource) Stream(ctx context.Context, emit func(UpstreamEvent) bool) {
	text, err := s.generate(ctx)
	if err != nil {
		emit(UpstreamEvent{Kind: UpstreamFailure, Err: err})
		return
	}
	if text != "" && !emit(UpstreamEvent{Kind: UpstreamFragment, Text: text}) {
		return
	}
	emit(UpstreamEvent{Kind: UpstreamDone})
}

func (s *TextSource) Close() error {
	return nil
}
