package models

import "time"

type CommandAction string

const (
	ActionJoin  CommandAction = "join"
	ActionSend  CommandAction = "send"
	ActionLeave CommandAction = "leave"
)

// Command is one inbound client frame. ScopeID is the room id, the group id, or the
// friend's user id on the private hub.
type Command struct {
	Action   CommandAction `json:"action"`
	ScopeID  int64         `json:"scope_id"`
	Username string        `json:"username,omitempty"`
	Content  string        `json:"content,omitempty"`
	Type     MessageType   `json:"type,omitempty"`
	FileURL  string        `json:"file_url,omitempty"`
	FileName string        `json:"file_name,omitempty"`
	FileSize int64         `json:"file_size,omitempty"`
}

// FileMeta returns nil when the command carries no file.
func (c *Command) FileMeta() *FileMeta {
	if c.FileURL == "" {
		return nil
	}
	return &FileMeta{URL: c.FileURL, Name: c.FileName, Size: c.FileSize}
}

type EventType string

const (
	EventHistory     EventType = "history"
	EventOnlineUsers EventType = "online_users"
	EventMessage     EventType = "message"
	EventNotify      EventType = "notify"
	EventError       EventType = "error"
)

type Event struct {
	Type      EventType       `json:"type"`
	Scope     Scope           `json:"scope,omitempty"`
	ScopeID   int64           `json:"scope_id,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	Messages  []*Message      `json:"messages,omitempty"`
	Users     []*UserPresence `json:"users,omitempty"`
	UserCount int             `json:"user_count"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func NewEvent(t EventType, scope Scope, scopeID int64) *Event {
	return &Event{
		Type:      t,
		Scope:     scope,
		ScopeID:   scopeID,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
