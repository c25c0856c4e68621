package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"characterlab/internal/models"
	"characterlab/internal/store"
)

// Rooms persists the chat room collection under the "chatRooms" key.
type Rooms struct {
	store store.Store

	NewID func() string
	Now   func() time.Time
}

func NewRooms(s store.Store) *Rooms {
	return &Rooms{store: s, NewID: uuid.NewString, Now: time.Now}
}

func (r *Rooms) List(ctx context.Context) []models.ChatRoom {
	return readList[models.ChatRoom](ctx, r.store, store.KeyChatRooms)
}

func (r *Rooms) Get(ctx context.Context, id string) (*models.ChatRoom, error) {
	for _, room := range r.List(ctx) {
		if room.ID == id {
			return &room, nil
		}
	}
	return nil, ErrNotFound
}

func (r *Rooms) Create(ctx context.Context, room models.ChatRoom) (*models.ChatRoom, error) {
	if room.ID == "" {
		room.ID = r.NewID()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = r.Now().UTC()
	}
	if room.Participants == nil {
		room.Participants = []string{}
	}
	// Rooms start inactive; activation is an explicit settings update.
	room.IsActive = false
	room.MessageCount = 0

	rooms := append(r.List(ctx), room)
	if err := writeList(ctx, r.store, store.KeyChatRooms, rooms); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Rooms) Update(ctx context.Context, id string, mutate func(*models.ChatRoom)) (*models.ChatRoom, error) {
	rooms := r.List(ctx)
	for i := range rooms {
		if rooms[i].ID != id {
			continue
		}
		mutate(&rooms[i])
		rooms[i].ID = id
		if err := writeList(ctx, r.store, store.KeyChatRooms, rooms); err != nil {
			return nil, err
		}
		updated := rooms[i]
		return &updated, nil
	}
	return nil, ErrNotFound
}

// RemoveParticipant drops a character from the room's participant list.
// Removing an id that is not a participant leaves the room unchanged.
func (r *Rooms) RemoveParticipant(ctx context.Context, roomID, characterID string) (*models.ChatRoom, error) {
	return r.Update(ctx, roomID, func(room *models.ChatRoom) {
		kept := room.Participants[:0]
		for _, id := range room.Participants {
			if id != characterID {
				kept = append(kept, id)
			}
		}
		room.Participants = kept
	})
}

// Delete removes the room and its message history. Deleting an absent id is
// not an error.
func (r *Rooms) Delete(ctx context.Context, id string) error {
	rooms := r.List(ctx)
	kept := rooms[:0]
	for _, room := range rooms {
		if room.ID != id {
			kept = append(kept, room)
		}
	}
	if len(kept) != len(rooms) {
		if err := writeList(ctx, r.store, store.KeyChatRooms, kept); err != nil {
			return err
		}
	}
	if err := r.store.Delete(ctx, store.RoomChatKey(id)); err != nil {
		return fmt.Errorf("cascade room history: %w", err)
	}
	return nil
}

// ReconcileMessageCount recomputes the cached counter from the stored
// history length.
func (r *Rooms) ReconcileMessageCount(ctx context.Context, id string) (*models.ChatRoom, error) {
	history := readList[models.RoomMessage](ctx, r.store, store.RoomChatKey(id))
	return r.Update(ctx, id, func(room *models.ChatRoom) {
		room.MessageCount = len(history)
	})
}
