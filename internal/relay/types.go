package relay

import (
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

// FormattingSpan is one rich-text annotation over message text: a byte
// offset and length into the text plus the entity kind and, for link
// entities, the URL. The client adapter converts to and from the wire
// encoding's own offset scheme.
type FormattingSpan struct {
	Offset int
	Length int
	Kind   string // "bold", "italic", "text_link", "mention", ...
	URL    string // set for kind "text_link"
}

// Button is one inline-keyboard button. Only URL buttons are relayed;
// callback and other kinds are ignored.
type Button struct {
	Label string
	URL   string
}

// Media is an opaque reference to one media payload, resendable by file id.
type Media struct {
	Kind   string // "photo", "video", "document", "animation", "audio"
	FileID string
}

// Message is the value the router observes from a source chat. It is a
// closed view over the client's update type so the core never inspects
// client-specific shapes.
type Message struct {
	ID        int
	ChatID    int64
	Text      string // text or caption
	Spans     []FormattingSpan
	ReplyToID int    // 0 = not a reply
	TopicID   int    // originating forum topic root id, 0 = none
	Buttons   [][]Button
	Media     []Media
	GroupID   string // media_group_id, set for album items
}

// HasContent reports whether there is anything worth forwarding.
func (m Message) HasContent() bool {
	return m.Text != "" || len(m.Media) > 0
}

// Unit kinds.
const (
	UnitSingle  = "single"
	UnitGrouped = "grouped"
)

// SendUnit is one logical outbound delivery: a single message or a
// reassembled album, bound to the route that selected it.
type SendUnit struct {
	ID       uuid.UUID
	Kind     string
	Messages []Message
	GroupID  string
	Route    config.Route

	retryCount int
}

// NewSingleUnit wraps one message for direct delivery.
func NewSingleUnit(msg Message, route config.Route) *SendUnit {
	return &SendUnit{
		ID:       uuid.New(),
		Kind:     UnitSingle,
		Messages: []Message{msg},
		Route:    route,
	}
}

// NewGroupedUnit wraps a flushed album in arrival order.
func NewGroupedUnit(groupID string, msgs []Message, route config.Route) *SendUnit {
	return &SendUnit{
		ID:       uuid.New(),
		Kind:     UnitGrouped,
		Messages: msgs,
		GroupID:  groupID,
		Route:    route,
	}
}

// First returns the lead message of the unit. Albums carry their text and
// reply context on whichever item has them; for reply resolution the first
// item is authoritative.
func (u *SendUnit) First() Message {
	return u.Messages[0]
}
