package models

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	StatusOnline = "online"
	// StatusRecent marks users taken from recent message senders when nobody is connected.
	StatusRecent = "recent"
)

type UserPresence struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Status     string    `json:"status"`
	LastActive time.Time `json:"last_active"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
}
