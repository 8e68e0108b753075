package signal

import "time"

// Address identifies a conversation endpoint. Assigned by the transport,
// never reinterpreted.
type Address int64

// Stage is a point in a signal's approval lifecycle. Resolution and decline
// are represented by removal from the store, not by a stage value.
type Stage int

const (
	StageAwaitingOpen Stage = iota
	StageAwaitingAccept
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingOpen:
		return "awaiting_open"
	case StageAwaitingAccept:
		return "awaiting_accept"
	default:
		return "unknown"
	}
}

// Pending is one in-flight signal waiting on the recipient. Owned exclusively
// by the Store; callers operate on copies and re-read by key.
type Pending struct {
	ID              string    `json:"id"`
	Payload         string    `json:"payload"`
	SenderHandle    string    `json:"sender_handle,omitempty"`
	ImageMessageID  int       `json:"image_message_id,omitempty"`
	PromptMessageID int       `json:"prompt_message_id,omitempty"`
	Stage           Stage     `json:"stage"`
	CreatedAt       time.Time `json:"created_at"`
}

// Key addresses a pending interaction: the chat plus the stage token its
// buttons currently carry.
type Key struct {
	Address Address
	Token   string
}

// Event is one transport update. Exactly one of Message or Press is set for
// events the adapter recognizes; unrecognized updates carry only UpdateID so
// the poll cursor still advances past them.
type Event struct {
	UpdateID int64
	Message  *Message
	Press    *ButtonPress
}

// Message is an inbound plain-text message.
type Message struct {
	Address      Address
	SenderHandle string
	Text         string
}

// ButtonPress is an inline-button callback.
type ButtonPress struct {
	Address         Address
	PromptMessageID int
	PressID         string
	Token           Token
	PressingHandle  string
}

// Button is one inline button on an outgoing prompt.
type Button struct {
	Label string
	Token string
}
