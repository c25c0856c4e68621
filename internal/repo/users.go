package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"characterlab/internal/models"
	"characterlab/internal/store"
)

// Users persists the single local user and profile records. Both are
// overwritten wholesale on save.
type Users struct {
	store store.Store

	NewID func() string
	Now   func() time.Time
}

func NewUsers(s store.Store) *Users {
	return &Users{store: s, NewID: uuid.NewString, Now: time.Now}
}

// Current returns the logged-in user, or ErrNotFound before first login.
func (r *Users) Current(ctx context.Context) (*models.User, error) {
	return readRecord[models.User](ctx, r.store, store.KeyUser)
}

// Login records the local session for the given email. Login is simulated:
// any non-empty email is accepted and replaces the previous session.
func (r *Users) Login(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	user := models.User{ID: r.NewID(), Email: email}
	if existing, err := r.Current(ctx); err == nil && existing.Email == email {
		user.ID = existing.ID
	}
	if err := writeRecord(ctx, r.store, store.KeyUser, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile returns the saved settings record, with built-in defaults applied
// when nothing has been saved yet.
func (r *Users) Profile(ctx context.Context) models.Profile {
	saved, err := readRecord[models.Profile](ctx, r.store, store.KeyProfile)
	if err != nil {
		return models.DefaultProfile()
	}
	if saved.DefaultModel == "" {
		saved.DefaultModel = models.DefaultProfile().DefaultModel
	}
	if saved.Vendor == "" {
		saved.Vendor = models.DefaultProfile().Vendor
	}
	return *saved
}

// SaveProfile overwrites the settings record.
func (r *Users) SaveProfile(ctx context.Context, profile models.Profile) error {
	return writeRecord(ctx, r.store, store.KeyProfile, profile)
}
