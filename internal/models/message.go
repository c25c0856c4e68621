package models

import "time"

// UserSender is the sentinel character id for user-authored room messages.
const UserSender = "user"

// ChatMessage is one entry in a character's 1:1 history. The owning character
// id lives in the storage key (chat_<id>), not in the record.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomMessage is one entry in a room's multi-party history. CharacterID is
// either a participant id or the "user" sentinel.
type RoomMessage struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	CharacterID   string    `json:"characterId"`
	CharacterName string    `json:"characterName"`
	Timestamp     time.Time `json:"timestamp"`
}
