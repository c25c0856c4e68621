package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"characterlab/internal/config"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("key not found")

// Store is the persistence boundary: a string-keyed mapping of JSON-encoded
// values. Delete is idempotent. Writes to the same key are last-write-wins;
// no transactional isolation is provided by any backend.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Fixed keys of the persisted state layout.
const (
	KeyUser       = "user"
	KeyProfile    = "profile"
	KeyCharacters = "characters"
	KeyChatRooms  = "chatRooms"
)

// ChatKey addresses a character's 1:1 message history.
func ChatKey(characterID string) string {
	return "chat_" + characterID
}

// RoomChatKey addresses a room's message history.
func RoomChatKey(roomID string) string {
	return "chatRoom_" + roomID
}

// TokenKey addresses an auth token record.
func TokenKey(token string) string {
	return "authToken_" + token
}

// Open constructs the store backend selected by name.
func Open(backend string, cfg *config.Config) (Store, error) {
	switch strings.ToLower(backend) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(cfg.BasicConfig.DataPath)
	case "redis":
		return OpenRedis(cfg)
	case "sqlite", "sqlite3", "mysql":
		return OpenSQL(backend, cfg)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}
