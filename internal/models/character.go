package models

import "time"

// Status tracks a character's training lifecycle.
type Status string

const (
	StatusTraining Status = "training"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// Character is a configured chat persona. Messages is a cached tally of
// completed exchanges; the stored history under chat_<id> is authoritative.
type Character struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Avatar      string    `json:"avatar,omitempty"`
	Status      Status    `json:"status"`
	Messages    int       `json:"messages"`
	ModelURL    string    `json:"model_url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ready reports whether the character can participate in conversations.
func (c *Character) Ready() bool {
	return c != nil && c.Status == StatusReady
}
