package models

import (
	"strings"
	"time"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeEmoji  MessageType = "emoji"
	MessageTypeSystem MessageType = "system"
)

// Valid reports whether a client may send this type. System messages are server-made only.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeEmoji:
		return true
	}
	return false
}

type Scope string

const (
	ScopeRoom    Scope = "room"
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
)

type FileMeta struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type Message struct {
	ID         int64       `json:"id,omitempty"`
	Scope      Scope       `json:"scope"`
	RoomID     int64       `json:"room_id,omitempty"`
	GroupID    int64       `json:"group_id,omitempty"`
	ReceiverID int64       `json:"receiver_id,omitempty"`
	SenderID   int64       `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	File       *FileMeta   `json:"file,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ScopeID is the id of the room, group or receiver the message belongs to.
func (m *Message) ScopeID() int64 {
	switch m.Scope {
	case ScopeGroup:
		return m.GroupID
	case ScopePrivate:
		return m.ReceiverID
	default:
		return m.RoomID
	}
}

// HasBody reports whether the message carries something to show: text for plain
// messages, the file or emoji payload otherwise.
func (m *Message) HasBody() bool {
	if m.Type == MessageTypeText {
		return strings.TrimSpace(m.Content) != ""
	}
	if m.File != nil && m.File.URL != "" {
		return true
	}
	return m.Content != ""
}

func SystemMessage(scope Scope, scopeID int64, text string) *Message {
	msg := &Message{
		Scope:      scope,
		SenderName: "system",
		Content:    text,
		Type:       MessageTypeSystem,
		CreatedAt:  time.Now(),
	}
	switch scope {
	case ScopeGroup:
		msg.GroupID = scopeID
	case ScopePrivate:
		msg.ReceiverID = scopeID
	default:
		msg.RoomID = scopeID
	}
	return msg
}
