package models

import "time"

// MessageStatus is the delivery lifecycle marker of a message.
// It only ever moves forward: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank returns the ordinal of the status inside the lifecycle.
// Unknown statuses rank below "sent" so they can never overwrite a real one.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

// AdvancesTo reports whether moving from s to next is a forward transition.
func (s MessageStatus) AdvancesTo(next MessageStatus) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

type Message struct {
	ID              int64         `json:"id"`
	ChatID          int           `json:"chat_id"`
	SenderID        string        `json:"sender_id"`
	Content         string        `json:"content"`
	Type            string        `json:"type"`
	MediaURL        string        `json:"media_url,omitempty"`
	Status          MessageStatus `json:"status"`
	ReplyToID       *int64        `json:"reply_to_id,omitempty"`
	ForwardedFromID *int64        `json:"forwarded_from_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ClientEvent is a frame received from a connected client over the
// realtime channel. Unused fields stay at their zero value depending
// on Type.
type ClientEvent struct {
	Type            string `json:"type"`
	ChatID          int    `json:"chat_id,omitempty"`
	MessageID       int64  `json:"message_id,omitempty"`
	Content         string `json:"content,omitempty"`
	MessageType     string `json:"msg_type,omitempty"`
	MediaURL        string `json:"media_url,omitempty"`
	ReplyToID       *int64 `json:"reply_to_id,omitempty"`
	ForwardedFromID *int64 `json:"forwarded_from_id,omitempty"`
}

const (
	EventSendMessage      = "send_message"
	EventReceiveMessage   = "receive_message"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventStatusUpdate     = "status_update"
	EventChatRead         = "chat_read"
	EventJoinChat         = "join_chat"
	EventUserStatus       = "user_status"
)
