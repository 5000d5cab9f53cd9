package chat

// EventKind tags a StreamEvent.
type EventKind string

const (
	EventDelta   EventKind = "delta"
	EventMessage EventKind = "message"
	EventLinks   EventKind = "links"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"
)

// StreamEvent is one transient event of a relayed chat response. Only the field
// matching Kind is meaningful.
type StreamEvent struct {
	Kind   EventKind
	Text   string
	Links  []Link
	Detail string
}

// DeltaEvent carries a raw fragment for live rendering.
func DeltaEvent(text string) StreamEvent { return StreamEvent{Kind: EventDelta, Text: text} }

// MessageEvent carries the recovered display message.
func MessageEvent(text string) StreamEvent { return StreamEvent{Kind: EventMessage, Text: text} }

// LinksEvent carries validated navigation links.
func LinksEvent(links []Link) StreamEvent { return StreamEvent{Kind: EventLinks, Links: links} }

// DoneEvent terminates a successful stream.
func DoneEvent() StreamEvent { return StreamEvent{Kind: EventDone} }

// ErrorEvent terminates a failed stream.
func ErrorEvent(detail string) StreamEvent { return StreamEvent{Kind: EventError, Detail: detail} }

// Terminal reports whether the event closes the stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// WireEvent is the JSON shape of an outbound event. Exactly one field is set.
type WireEvent struct {
	Content         *string `json:"content,omitempty"`
	Message         *string `json:"message,omitempty"`
	NavigationLinks []Link  `json:"navigationLinks,omitempty"`
	Done            bool    `json:"done,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Wire converts the event into its outbound JSON shape.
func (e StreamEvent) Wire() WireEvent {
	switch e.Kind {
	case EventDelta:
		text := e.Text
		return WireEvent{Content: &text}
	case EventMessage:
		text := e.Text
		return WireEvent{Message: &text}
	case EventLinks:
		links := e.Links
		if links == nil {
			links = []Link{}
		}
		return WireEvent{NavigationLinks: links}
	case EventDone:
		return WireEvent{Done: true}
	default:
		return WireEvent{Error: e.Detail}
	}
}

// Event converts a decoded outbound payload back into a StreamEvent. The second
// result is false when the payload carries none of the known fields.
func (w WireEvent) Event() (StreamEvent, bool) {
	switch {
	case w.Error != "":
		return ErrorEvent(w.Error), true
	case w.Done:
		return DoneEvent(), true
	case w.Message != nil:
		return MessageEvent(*w.Message), true
	case w.Content != nil:
		return DeltaEvent(*w.Content), true
	case w.NavigationLinks != nil:
		return LinksEvent(w.NavigationLinks), true
	default:
		return StreamEvent{}, false
	}
}
