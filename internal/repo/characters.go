package repo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"characterlab/internal/models"
	"characterlab/internal/store"
)

// Characters persists the character collection under the "characters" key.
type Characters struct {
	store store.Store

	// NewID and Now are injectable for deterministic tests.
	NewID func() string
	Now   func() time.Time
}

func NewCharacters(s store.Store) *Characters {
	return &Characters{store: s, NewID: uuid.NewString, Now: time.Now}
}

func (r *Characters) List(ctx context.Context) []models.Character {
	return readList[models.Character](ctx, r.store, store.KeyCharacters)
}

func (r *Characters) Get(ctx context.Context, id string) (*models.Character, error) {
	for _, c := range r.List(ctx) {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// Create appends a new character. Missing id, timestamp, status and avatar
// are filled in; freshly created characters always start training.
func (r *Characters) Create(ctx context.Context, c models.Character) (*models.Character, error) {
	if c.ID == "" {
		c.ID = r.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.Now().UTC()
	}
	if c.Status == "" {
		c.Status = models.StatusTraining
	}
	if c.Avatar == "" {
		c.Avatar = DefaultAvatarURL(c.Name)
	}
	c.Messages = 0

	characters := append(r.List(ctx), c)
	if err := writeList(ctx, r.store, store.KeyCharacters, characters); err != nil {
		return nil, err
	}
	return &c, nil
}

// Update applies mutate to the stored character and persists the result.
func (r *Characters) Update(ctx context.Context, id string, mutate func(*models.Character)) (*models.Character, error) {
	characters := r.List(ctx)
	for i := range characters {
		if characters[i].ID != id {
			continue
		}
		mutate(&characters[i])
		characters[i].ID = id
		if err := writeList(ctx, r.store, store.KeyCharacters, characters); err != nil {
			return nil, err
		}
		updated := characters[i]
		return &updated, nil
	}
	return nil, ErrNotFound
}

// Delete removes the character and its chat history. Deleting an absent id is
// not an error.
func (r *Characters) Delete(ctx context.Context, id string) error {
	characters := r.List(ctx)
	kept := characters[:0]
	for _, c := range characters {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) != len(characters) {
		if err := writeList(ctx, r.store, store.KeyCharacters, kept); err != nil {
			return err
		}
	}
	if err := r.store.Delete(ctx, store.ChatKey(id)); err != nil {
		return fmt.Errorf("cascade chat history: %w", err)
	}
	return nil
}

// ReconcileMessages recomputes the cached exchange counter from the stored
// history. One exchange equals one non-user message.
func (r *Characters) ReconcileMessages(ctx context.Context, id string) (*models.Character, error) {
	history := readList[models.ChatMessage](ctx, r.store, store.ChatKey(id))
	count := 0
	for _, m := range history {
		if !m.IsUser {
			count++
		}
	}
	return r.Update(ctx, id, func(c *models.Character) {
		c.Messages = count
	})
}

// DefaultAvatarURL builds the fallback avatar for characters created without
// an uploaded picture.
func DefaultAvatarURL(name string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(strings.TrimSpace(name))
}
