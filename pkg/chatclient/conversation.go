package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

var (
	// ErrBusy is returned when a send is attempted while another is in flight.
	ErrBusy = errors.New("chatclient: a message is already in flight")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("chatclient: message is empty")
	// ErrSuperseded is returned when the conversation was reset or switched mid-stream.
	ErrSuperseded = errors.New("chatclient: stream superseded")
)

// StreamFailedError carries the detail of a terminal error event.
type StreamFailedError struct {
	Detail string
}

func (e *StreamFailedError) Error() string {
	return "chatclient: stream failed: " + e.Detail
}

// State is the phase of the current request.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateSettled:
		return "settled"
	default:
		return "idle"
	}
}

// Streamer opens relay streams. *Client implements it.
type Streamer interface {
	Stream(ctx context.Context, req ChatRequest, handle func(chat.StreamEvent) error) error
}

// Entry is one visible message of a conversation.
type Entry struct {
	Role    chat.Role
	Content string
	Links   []chat.Link
	// Failed marks a synthetic error reply. Failed entries are never sent back to the model.
	Failed bool
}

// ConversationOptions configures a Conversation.
type ConversationOptions struct {
	Model string
	Mode  string
	// Persister may be nil, in which case turns stay local.
	Persister Persister
	Logger    zerolog.Logger
	// ErrorText is the content of the synthetic reply appended on failure.
	ErrorText string
}

// Conversation applies relay events to a local transcript. Only one send may be
// in flight at a time, and events from an abandoned stream are ignored.
type Conversation struct {
	streamer  Streamer
	persister Persister
	model     string
	mode      string
	errorText string
	logger    zerolog.Logger

	mu         sync.Mutex
	entries    []Entry
	sessionID  string
	state      State
	generation uint64
	// assistant is the index of the in-progress reply, or -1.
	assistant int
	// cancel aborts the in-flight stream, if any.
	cancel context.CancelFunc
}

// NewConversation creates an empty conversation.
func NewConversation(streamer Streamer, opts ConversationOptions) *Conversation {
	errorText := opts.ErrorText
	if errorText == "" {
		errorText = "Sorry, something went wrong. Please try again."
	}
	return &Conversation{
		streamer:  streamer,
		persister: opts.Persister,
		model:     opts.Model,
		mode:      opts.Mode,
		errorText: errorText,
		logger:    opts.Logger,
		assistant: -1,
	}
}

// Send submits text and blocks until the reply settles. It returns the final
// assistant entry; the entry is zero when the model produced no content.
func (c *Conversation) Send(ctx context.Context, text string) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.state == StateSending || c.state == StateStreaming {
		c.mu.Unlock()
		return Entry{}, ErrBusy
	}
	c.generation++
	gen := c.generation
	c.entries = append(c.entries, Entry{Role: chat.RoleUser, Content: text})
	c.assistant = -1
	c.state = StateSending
	req := c.requestLocked()
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	var failure error
	streamErr := c.streamer.Stream(streamCtx, req, func(event chat.StreamEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			return ErrSuperseded
		}
		if event.Kind == chat.EventError {
			failure = &StreamFailedError{Detail: event.Detail}
			return nil
		}
		c.applyLocked(event)
		return nil
	})
	if streamErr != nil {
		failure = streamErr
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return Entry{}, ErrSuperseded
	}
	c.cancel = nil

	if failure != nil {
		c.failLocked()
		c.mu.Unlock()
		return Entry{}, failure
	}

	reply := c.finishLocked()
	sessionID := c.sessionID
	c.state = StateSettled
	c.mu.Unlock()

	c.persist(ctx, gen, sessionID, text, reply)
	return reply, nil
}

// requestLocked builds the relay request from the non-failed transcript.
func (c *Conversation) requestLocked() ChatRequest {
	messages := make([]Message, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.Failed || entry.Content == "" {
			continue
		}
		messages = append(messages, Message{Role: string(entry.Role), Content: entry.Content})
	}
	return ChatRequest{Model: c.model, Mode: c.mode, Messages: messages}
}

func (c *Conversation) applyLocked(event chat.StreamEvent) {
	c.state = StateStreaming

	switch event.Kind {
	case chat.EventDelta:
		c.placeholderLocked().Content += event.Text
	case chat.EventMessage:
		c.placeholderLocked().Content = event.Text
	case chat.EventLinks:
		if len(event.Links) == 0 {
			return
		}
		reply := c.placeholderLocked()
		reply.Links = append([]chat.Link(nil), event.Links...)
	}
}

func (c *Conversation) placeholderLocked() *Entry {
	if c.assistant < 0 {
		c.entries = append(c.entries, Entry{Role: chat.RoleAssistant})
		c.assistant = len(c.entries) - 1
	}
	return &c.entries[c.assistant]
}

// finishLocked drops an empty placeholder and returns the settled reply.
func (c *Conversation) finishLocked() Entry {
	defer func() { c.assistant = -1 }()
	if c.assistant < 0 {
		return Entry{}
	}
	reply := c.entries[c.assistant]
	if reply.Content == "" {
		c.entries = append(c.entries[:c.assistant], c.entries[c.assistant+1:]...)
		return Entry{}
	}
	return reply
}

func (c *Conversation) failLocked() {
	if c.assistant >= 0 && c.assistant == len(c.entries)-1 && c.entries[c.assistant].Content == "" {
		c.entries = c.entries[:c.assistant]
	}
	c.assistant = -1
	c.entries = append(c.entries, Entry{Role: chat.RoleAssistant, Content: c.errorText, Failed: true})
	c.state = StateSettled
}

func (c *Conversation) persist(ctx context.Context, gen uint64, sessionID, userText string, reply Entry) {
	if c.persister == nil {
		return
	}

	if sessionID == "" {
		created, err := c.persister.CreateSession(ctx, userText)
		if err != nil {
			c.logger.Warn().Err(err).Msg("create chat session failed")
			return
		}
		sessionID = created

		c.mu.Lock()
		if c.generation == gen && c.sessionID == "" {
			c.sessionID = created
		}
		c.mu.Unlock()
	}

	if err := c.persister.Save(ctx, sessionID, chat.RoleUser, userText, nil); err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("save user turn failed")
		return
	}
	if reply.Content == "" {
		return
	}
	if err := c.persister.Save(ctx, sessionID, chat.RoleAssistant, reply.Content, reply.Links); err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("save assistant turn failed")
	}
}

// Reset starts a new conversation. A stream still in flight is cancelled.
func (c *Conversation) Reset() {
	c.Load("", nil)
}

// Load switches to an existing session with the given transcript. A stream
// still in flight is cancelled and its remaining events are ignored.
func (c *Conversation) Load(sessionID string, turns []chat.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.sessionID = sessionID
	c.assistant = -1
	c.state = StateIdle
	c.entries = make([]Entry, 0, len(turns))
	for _, turn := range turns {
		c.entries = append(c.entries, Entry{Role: turn.Role, Content: turn.Content, Links: turn.Links})
	}
}

// Entries returns a copy of the visible transcript.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	for i, entry := range c.entries {
		entry.Links = append([]chat.Link(nil), entry.Links...)
		out[i] = entry
	}
	return out
}

// State reports the phase of the latest request.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the persisted session, or "" before the first successful turn.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}
