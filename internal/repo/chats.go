package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"characterlab/internal/models"
	"characterlab/internal/store"
)

// Chats persists the append-only message sequences, keyed chat_<characterId>
// for 1:1 histories and chatRoom_<roomId> for rooms.
type Chats struct {
	store store.Store
}

func NewChats(s store.Store) *Chats {
	return &Chats{store: s}
}

func (r *Chats) History(ctx context.Context, characterID string) []models.ChatMessage {
	return readList[models.ChatMessage](ctx, r.store, store.ChatKey(characterID))
}

func (r *Chats) Append(ctx context.Context, characterID string, msgs ...models.ChatMessage) error {
	history := append(r.History(ctx, characterID), msgs...)
	return writeList(ctx, r.store, store.ChatKey(characterID), history)
}

func (r *Chats) RoomHistory(ctx context.Context, roomID string) []models.RoomMessage {
	return readList[models.RoomMessage](ctx, r.store, store.RoomChatKey(roomID))
}

func (r *Chats) AppendRoom(ctx context.Context, roomID string, msgs ...models.RoomMessage) error {
	history := append(r.RoomHistory(ctx, roomID), msgs...)
	return writeList(ctx, r.store, store.RoomChatKey(roomID), history)
}

// Export serializes a character's full history as a standalone, indented JSON
// document suitable for download.
func (r *Chats) Export(ctx context.Context, characterID string) ([]byte, error) {
	history := r.History(ctx, characterID)
	if history == nil {
		history = []models.ChatMessage{}
	}
	raw, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return raw, nil
}

// ParseExport reads an export document back into a message sequence.
func ParseExport(raw []byte) ([]models.ChatMessage, error) {
	var history []models.ChatMessage
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return history, nil
}

// ExportFilename names the download after the character.
func ExportFilename(characterName string) string {
	return strings.TrimSpace(characterName) + "_chat_history.json"
}
