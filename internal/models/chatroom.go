package models

import "time"

// ChatRoom is a multi-participant conversation context. Participants is an
// order-preserving list of character ids; duplicates are not prevented here.
// MessageCount caches the stored history length under chatRoom_<id>.
type ChatRoom struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Participants []string  `json:"participants"`
	IsActive     bool      `json:"isActive"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
}
