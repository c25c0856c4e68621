package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"characterlab/internal/models"
	"characterlab/internal/repo"
	"characterlab/internal/simulator"
)

var (
	// ErrReplyPending rejects a prompt while the previous exchange in the
	// same conversation is still unresolved.
	ErrReplyPending = errors.New("a reply is already pending for this conversation")
	// ErrCharacterNotReady rejects prompts to characters still training (or
	// failed).
	ErrCharacterNotReady = errors.New("character is not ready to chat")
	// ErrConversationClosed reports a reply discarded because its
	// conversation was deleted while the reply was in flight.
	ErrConversationClosed = errors.New("conversation was closed before the reply resolved")
)

// ReplyResult delivers the resolved 1:1 reply (or the reason it was
// discarded) to whoever is still listening.
type ReplyResult struct {
	Message *models.ChatMessage
	Err     error
}

// RoomResult delivers a resolved room batch.
type RoomResult struct {
	Messages []models.RoomMessage
	Err      error
}

// Engine is the session layer: it validates prompts, persists the user side
// of an exchange immediately, and schedules the simulated side. All work is
// cooperative; the only suspension points are the artificial delays.
type Engine struct {
	characters *repo.Characters
	rooms      *repo.Rooms
	chats      *repo.Chats
	sim        *simulator.Simulator
	sched      Scheduler
	clock      simulator.Clock

	NewID func() string

	mu           sync.Mutex
	pendingChats map[string]struct{}
	pendingRooms map[string]struct{}
}

func New(characters *repo.Characters, rooms *repo.Rooms, chats *repo.Chats, sim *simulator.Simulator, sched Scheduler, clock simulator.Clock) *Engine {
	return &Engine{
		characters:   characters,
		rooms:        rooms,
		chats:        chats,
		sim:          sim,
		sched:        sched,
		clock:        clock,
		NewID:        uuid.NewString,
		pendingChats: make(map[string]struct{}),
		pendingRooms: make(map[string]struct{}),
	}
}

// SubmitPrompt validates and persists the user message, then schedules the
// simulated reply. It returns the persisted message and a channel carrying
// the eventual result. At most one exchange may be in flight per character.
func (e *Engine) SubmitPrompt(ctx context.Context, characterID, text string) (*models.ChatMessage, <-chan ReplyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, simulator.ErrEmptyPrompt
	}
	character, err := e.characters.Get(ctx, characterID)
	if err != nil {
		return nil, nil, err
	}
	if !character.Ready() {
		return nil, nil, ErrCharacterNotReady
	}
	if !e.acquire(e.pendingChats, characterID) {
		return nil, nil, ErrReplyPending
	}

	userMsg := models.ChatMessage{
		ID:        e.NewID(),
		Text:      text,
		IsUser:    true,
		Timestamp: e.clock.Now(),
	}
	if err := e.chats.Append(ctx, characterID, userMsg); err != nil {
		e.release(e.pendingChats, characterID)
		return nil, nil, err
	}

	results := make(chan ReplyResult, 1)
	e.sched.AfterFunc(e.sim.ReplyDelay(), func() {
		e.resolveReply(characterID, text, results)
	})
	return &userMsg, results, nil
}

// resolveReply commits the simulated reply after the delay. A timer firing
// for a since-deleted character discards its batch instead of writing an
// orphaned history.
func (e *Engine) resolveReply(characterID, prompt string, out chan<- ReplyResult) {
	defer e.release(e.pendingChats, characterID)
	ctx := context.Background()

	character, err := e.characters.Get(ctx, characterID)
	if err != nil {
		out <- ReplyResult{Err: ErrConversationClosed}
		return
	}
	reply, err := e.sim.SingleReply(character, prompt)
	if err != nil {
		out <- ReplyResult{Err: err}
		return
	}
	if err := e.chats.Append(ctx, characterID, *reply); err != nil {
		out <- ReplyResult{Err: err}
		return
	}
	if _, err := e.characters.Update(ctx, characterID, func(c *models.Character) {
		c.Messages++
	}); err != nil {
		log.Printf("bump message counter for %s: %v", characterID, err)
	}
	out <- ReplyResult{Message: reply}
}

// SubmitRoomPrompt is the multi-party variant: the user message persists
// immediately and one delayed batch of participant replies follows.
func (e *Engine) SubmitRoomPrompt(ctx context.Context, roomID, text string) (*models.RoomMessage, <-chan RoomResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, simulator.ErrEmptyPrompt
	}
	if _, err := e.rooms.Get(ctx, roomID); err != nil {
		return nil, nil, err
	}
	if !e.acquire(e.pendingRooms, roomID) {
		return nil, nil, ErrReplyPending
	}

	userMsg := models.RoomMessage{
		ID:            e.NewID(),
		Text:          text,
		CharacterID:   models.UserSender,
		CharacterName: "You",
		Timestamp:     e.clock.Now(),
	}
	if err := e.chats.AppendRoom(ctx, roomID, userMsg); err != nil {
		e.release(e.pendingRooms, roomID)
		return nil, nil, err
	}

	results := make(chan RoomResult, 1)
	e.sched.AfterFunc(e.sim.RoomReplyDelay(), func() {
		e.resolveRoomReplies(roomID, text, results)
	})
	return &userMsg, results, nil
}

func (e *Engine) resolveRoomReplies(roomID, prompt string, out chan<- RoomResult) {
	defer e.release(e.pendingRooms, roomID)
	ctx := context.Background()

	room, err := e.rooms.Get(ctx, roomID)
	if err != nil {
		out <- RoomResult{Err: ErrConversationClosed}
		return
	}
	participants := make([]models.Character, 0, len(room.Participants))
	for _, id := range room.Participants {
		if c, err := e.characters.Get(ctx, id); err == nil {
			participants = append(participants, *c)
		}
	}

	replies, err := e.sim.RoomReplies(participants, prompt)
	if err != nil {
		out <- RoomResult{Err: err}
		return
	}
	if len(replies) > 0 {
		if err := e.chats.AppendRoom(ctx, roomID, replies...); err != nil {
			out <- RoomResult{Err: err}
			return
		}
	}
	if _, err := e.rooms.Update(ctx, roomID, func(r *models.ChatRoom) {
		r.MessageCount += 1 + len(replies)
	}); err != nil {
		log.Printf("bump room counter for %s: %v", roomID, err)
	}
	out <- RoomResult{Messages: replies}
}

// Pending reports whether a 1:1 reply is currently in flight for the
// character.
func (e *Engine) Pending(characterID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pendingChats[characterID]
	return ok
}

func (e *Engine) acquire(set map[string]struct{}, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := set[id]; busy {
		return false
	}
	set[id] = struct{}{}
	return true
}

func (e *Engine) release(set map[string]struct{}, id string) {
	e.mu.Lock()
	delete(set, id)
	e.mu.Unlock()
}

// ReplyTimeout bounds how long an API caller waits for a scheduled result
// before giving up on the stream (the timer still commits in the
// background).
const ReplyTimeout = 2 * time.Minute
