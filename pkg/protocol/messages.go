// Package protocol defines the wire frames exchanged over the Ryver realtime
// WebSocket connection and the codec that converts between raw JSON text
// frames and typed messages.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is the type discriminator carried by every realtime frame.
type MessageType string

const (
	// Inbound message types (server to client)
	TypeChat            MessageType = "chat"            // a chat message was received
	TypeChatUpdated     MessageType = "chat_updated"    // a chat message was edited
	TypeChatDeleted     MessageType = "chat_deleted"    // a chat message was deleted
	TypePresenceChanged MessageType = "presence_change" // a user changed their presence
	TypeUserTyping      MessageType = "user_typing"     // a user is typing in a chat
	TypeEvent           MessageType = "event"           // a generic event, discriminated further by topic
	TypeAck             MessageType = "ack"             // acknowledgement of a previously sent frame

	// Outbound message types (client to server)
	TypeAuth MessageType = "auth" // handshake credential frame
	TypePing MessageType = "ping" // keepalive probe

	// TypeAll is the wildcard used when registering handlers for all
	// otherwise unhandled message types.
	TypeAll MessageType = ""
)

// Event topics carried by TypeEvent frames.
const (
	// TopicReactionAdded fires when a reaction is added to a message,
	// topic, task or reply.
	TopicReactionAdded = "/api/reaction/added"
	// TopicReactionRemoved fires when a reaction is removed.
	TopicReactionRemoved = "/api/reaction/removed"
	// TopicTopicChanged fires when a forum/team topic is created, updated
	// or deleted.
	TopicTopicChanged = "/api/activityfeed/posts/changed"
	// TopicTaskChanged fires when a task is created, updated or deleted.
	TopicTaskChanged = "/api/activityfeed/tasks/changed"
	// TopicEntityChanged fires when some entity is created, updated or
	// deleted.
	TopicEntityChanged = "/api/entity/changed"

	// TopicAll is the wildcard used when registering handlers for all
	// otherwise unhandled event topics.
	TopicAll = ""
)

// Presence values accepted by NewPresenceChange.
const (
	PresenceAvailable    = "available"   // green
	PresenceAway         = "away"        // yellow clock
	PresenceDoNotDisturb = "dnd"         // red stop sign
	PresenceOffline      = "unavailable" // grey
)

// Typing indicator states carried by user_typing frames.
const (
	TypingComposing = "composing" // typing in progress
	TypingDone      = "done"      // typing finished, clears the indicator
)

// Frame is implemented by every decoded realtime frame.
type Frame interface {
	// FrameType returns the wire type discriminator of the frame.
	FrameType() MessageType
}

// BaseFrame contains the fields common to all realtime frames. Outbound
// frames carry a client-generated correlation ID that the server echoes back
// in the matching ack frame.
type BaseFrame struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id,omitempty"`
}

// FrameType returns the wire type discriminator of the frame.
func (f *BaseFrame) FrameType() MessageType { return f.Type }

// CorrelationID returns the client-generated frame ID, or "" for inbound
// frames that do not carry one.
func (f *BaseFrame) CorrelationID() string { return f.ID }

// NewID generates a fresh correlation ID for an outbound frame.
func NewID() string {
	return uuid.NewString()
}

// ChatMessage represents a chat message, both as received from the server and
// as sent by the client. Inbound messages carry Key/From/Subtype; outbound
// messages only need To and Text.
type ChatMessage struct {
	BaseFrame
	Key     string `json:"key,omitempty"`  // server-assigned message ID
	From    string `json:"from,omitempty"` // JID of the sender
	To      string `json:"to"`             // JID of the destination chat
	Text    string `json:"text"`
	Subtype string `json:"subtype,omitempty"`
}

// ChatUpdated represents a chat message edit notification.
type ChatUpdated struct {
	BaseFrame
	Key     string `json:"key,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Text    string `json:"text"`
	Subtype string `json:"subtype,omitempty"`
}

// ChatDeleted represents a chat message deletion notification.
type ChatDeleted struct {
	BaseFrame
	Key     string `json:"key,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Text    string `json:"text"`
	Subtype string `json:"subtype,omitempty"`
}

// PresenceChanged represents a user presence notification. The same shape
// (without From/Client/Received) is sent by the client to change its own
// presence.
type PresenceChanged struct {
	BaseFrame
	Presence string `json:"presence"`
	From     string `json:"from,omitempty"`     // JID of the user that changed presence
	Client   string `json:"client,omitempty"`   // the client the user is on
	Received string `json:"received,omitempty"` // ISO 8601 timestamp
}

// UserTyping represents a typing indicator, both inbound (another user is
// typing) and outbound (this client is typing).
type UserTyping struct {
	BaseFrame
	From  string `json:"from,omitempty"` // JID of the typing user
	To    string `json:"to"`             // JID of the chat being typed in
	State string `json:"state"`          // TypingComposing or TypingDone
}

// Event represents a generic server event, discriminated by Topic.
type Event struct {
	BaseFrame
	Topic string         `json:"topic"`
	Data  map[string]any `json:"data,omitempty"`
}

// Ack acknowledges a previously sent frame. ReplyTo and ReplyType identify
// the frame being acknowledged. A non-empty Error means the server rejected
// the command.
type Ack struct {
	BaseFrame
	ReplyTo   string      `json:"reply_to"`
	ReplyType MessageType `json:"reply_type"`
	Error     string      `json:"error,omitempty"`
}

// Auth is the handshake credential frame sent immediately after the socket
// opens.
type Auth struct {
	BaseFrame
	Authorization string `json:"authorization"`
	Agent         string `json:"agent"`
	Resource      string `json:"resource"`
}

// Ping is the keepalive probe. The server acknowledges it like any other
// correlated frame.
type Ping struct {
	BaseFrame
}

// UnknownFrame holds a frame whose type discriminator is not recognized. It
// is still dispatched to global wildcard handlers; Raw carries the full
// undecoded payload.
type UnknownFrame struct {
	BaseFrame
	Raw json.RawMessage `json:"-"`
}

// NewChatMessage builds an outbound chat message with a fresh correlation ID.
func NewChatMessage(to, text string) *ChatMessage {
	return &ChatMessage{
		BaseFrame: BaseFrame{Type: TypeChat, ID: NewID()},
		To:        to,
		Text:      text,
	}
}

// NewPresenceChange builds an outbound presence change with a fresh
// correlation ID. The change is global, not per chat.
func NewPresenceChange(presence string) *PresenceChanged {
	return &PresenceChanged{
		BaseFrame: BaseFrame{Type: TypePresenceChanged, ID: NewID()},
		Presence:  presence,
	}
}

// NewUserTyping builds an outbound typing indicator with a fresh correlation
// ID. Use TypingComposing to show the indicator and TypingDone to clear it.
func NewUserTyping(to, state string) *UserTyping {
	return &UserTyping{
		BaseFrame: BaseFrame{Type: TypeUserTyping, ID: NewID()},
		To:        to,
		State:     state,
	}
}

// NewAuth builds the handshake frame for a session ID obtained from the
// User.Login endpoint.
func NewAuth(sessionID string) *Auth {
	return &Auth{
		BaseFrame:     BaseFrame{Type: TypeAuth, ID: NewID()},
		Authorization: "Session " + sessionID,
		Agent:         "Ryver",
		Resource:      fmt.Sprintf("Contatta-%d", time.Now().UnixMilli()),
	}
}

// NewPing builds a keepalive probe with a fresh correlation ID.
func NewPing() *Ping {
	return &Ping{BaseFrame: BaseFrame{Type: TypePing, ID: NewID()}}
}

// ParseFrame parses a raw text frame into the appropriate typed struct. A
// frame with an unrecognized type discriminator parses into *UnknownFrame; a
// frame that is not valid JSON or lacks a discriminator returns an error.
func ParseFrame(data []byte) (Frame, error) {
	var base BaseFrame
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if base.Type == "" {
		return nil, fmt.Errorf("frame is missing a type discriminator")
	}

	switch base.Type {
	case TypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeChatUpdated:
		var msg ChatUpdated
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeChatDeleted:
		var msg ChatDeleted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypePresenceChanged:
		var msg PresenceChanged
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeUserTyping:
		var msg UserTyping
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeEvent:
		var msg Event
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeAck:
		var msg Ack
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	default:
		return &UnknownFrame{BaseFrame: base, Raw: append([]byte(nil), data...)}, nil
	}
}
