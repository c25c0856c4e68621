package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"characterlab/internal/models"
	"characterlab/internal/repo"
	"characterlab/internal/simulator"
	"characterlab/internal/store"
)

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, fn func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, fn)
	s.mu.Unlock()
}

func (s *fakeScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		t.Fatalf("no scheduled task to fire")
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.mu.Unlock()
	task()
}

func (s *fakeScheduler) pendingTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type stubRand struct{}

func (stubRand) Intn(int) int     { return 0 }
func (stubRand) Float64() float64 { return 0 }
func (stubRand) Perm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

type harness struct {
	mem        *store.Memory
	characters *repo.Characters
	rooms      *repo.Rooms
	chats      *repo.Chats
	sched      *fakeScheduler
	engine     *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemory()
	clock := &fixedClock{now: time.Date(2026, 8, 4, 15, 0, 0, 0, time.UTC)}

	characters := repo.NewCharacters(mem)
	rooms := repo.NewRooms(mem)
	chats := repo.NewChats(mem)
	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	characters.NewID = nextID
	rooms.NewID = nextID

	sim := simulator.New(simulator.DefaultConfig(), clock, stubRand{})
	sim.NewID = nextID
	sched := &fakeScheduler{}

	eng := New(characters, rooms, chats, sim, sched, clock)
	eng.NewID = nextID
	return &harness{mem: mem, characters: characters, rooms: rooms, chats: chats, sched: sched, engine: eng}
}

func (h *harness) readyCharacter(t *testing.T, name string) *models.Character {
	t.Helper()
	c, err := h.characters.Create(context.Background(), models.Character{
		Name:        name,
		Description: "test persona",
		Status:      models.StatusReady,
	})
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	return c
}

func TestSubmitPromptExchange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ada := h.readyCharacter(t, "Ada")

	userMsg, results, err := h.engine.SubmitPrompt(ctx, ada.ID, "  hello there  ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if userMsg.Text != "hello there" || !userMsg.IsUser {
		t.Fatalf("unexpected user message: %+v", userMsg)
	}
	if got := h.chats.History(ctx, ada.ID); len(got) != 1 {
		t.Fatalf("user message not persisted, history len %d", len(got))
	}
	if !h.engine.Pending(ada.ID) {
		t.Fatalf("expected pending state while reply is in flight")
	}

	// Second prompt while the first is pending is rejected before the
	// simulator is reached.
	if _, _, err := h.engine.SubmitPrompt(ctx, ada.ID, "still there?"); !errors.Is(err, ErrReplyPending) {
		t.Fatalf("expected ErrReplyPending, got %v", err)
	}
	if h.sched.pendingTasks() != 1 {
		t.Fatalf("busy submission scheduled a task")
	}

	h.sched.fire(t)
	result := <-results
	if result.Err != nil {
		t.Fatalf("reply result: %v", result.Err)
	}
	if result.Message.IsUser {
		t.Fatalf("reply flagged as user message")
	}

	history := h.chats.History(ctx, ada.ID)
	if len(history) != 2 || history[1].ID != result.Message.ID {
		t.Fatalf("reply not appended after the prompt: %+v", history)
	}
	updated, err := h.characters.Get(ctx, ada.ID)
	if err != nil || updated.Messages != 1 {
		t.Fatalf("exchange counter not bumped: %+v %v", updated, err)
	}
	if h.engine.Pending(ada.ID) {
		t.Fatalf("pending state not cleared")
	}

	// The conversation accepts the next prompt now.
	if _, _, err := h.engine.SubmitPrompt(ctx, ada.ID, "next"); err != nil {
		t.Fatalf("submit after resolution: %v", err)
	}
}

func TestSubmitPromptValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ada := h.readyCharacter(t, "Ada")

	if _, _, err := h.engine.SubmitPrompt(ctx, ada.ID, "   "); !errors.Is(err, simulator.ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if got := h.chats.History(ctx, ada.ID); len(got) != 0 {
		t.Fatalf("blank prompt persisted a message")
	}

	if _, _, err := h.engine.SubmitPrompt(ctx, "missing", "hi"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	training, err := h.characters.Create(ctx, models.Character{Name: "Bo", Description: "d", Status: models.StatusTraining})
	if err != nil {
		t.Fatalf("create training character: %v", err)
	}
	if _, _, err := h.engine.SubmitPrompt(ctx, training.ID, "hi"); !errors.Is(err, ErrCharacterNotReady) {
		t.Fatalf("expected ErrCharacterNotReady, got %v", err)
	}
}

func TestInFlightReplyDiscardedWhenCharacterDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ada := h.readyCharacter(t, "Ada")

	_, results, err := h.engine.SubmitPrompt(ctx, ada.ID, "hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.characters.Delete(ctx, ada.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	h.sched.fire(t)
	result := <-results
	if !errors.Is(result.Err, ErrConversationClosed) {
		t.Fatalf("expected discarded reply, got %+v", result)
	}
	// The cascade delete removed the history key; the late timer must not
	// recreate it.
	if _, err := h.mem.Get(ctx, store.ChatKey(ada.ID)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("late reply resurrected the chat history: %v", err)
	}
}

func TestSubmitRoomPromptBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.readyCharacter(t, "A")
	b := h.readyCharacter(t, "B")
	c, err := h.characters.Create(ctx, models.Character{Name: "C", Description: "d", Status: models.StatusTraining})
	if err != nil {
		t.Fatalf("create training character: %v", err)
	}

	room, err := h.engine.CreateRoom(ctx, "Council", "talks", []string{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	userMsg, results, err := h.engine.SubmitRoomPrompt(ctx, room.ID, "hello everyone")
	if err != nil {
		t.Fatalf("submit room prompt: %v", err)
	}
	if userMsg.CharacterID != models.UserSender {
		t.Fatalf("user message sender: %+v", userMsg)
	}
	if _, _, err := h.engine.SubmitRoomPrompt(ctx, room.ID, "again"); !errors.Is(err, ErrReplyPending) {
		t.Fatalf("expected busy rejection, got %v", err)
	}

	h.sched.fire(t)
	result := <-results
	if result.Err != nil {
		t.Fatalf("room result: %v", result.Err)
	}
	if len(result.Messages) < 1 || len(result.Messages) > 2 {
		t.Fatalf("batch size %d outside [1, min(3, 2)]", len(result.Messages))
	}
	for _, msg := range result.Messages {
		if msg.CharacterID == c.ID {
			t.Fatalf("training participant replied: %+v", msg)
		}
	}

	updated, err := h.rooms.Get(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	want := 1 + len(result.Messages)
	if updated.MessageCount != want {
		t.Fatalf("message count %d, want %d", updated.MessageCount, want)
	}
	if history := h.chats.RoomHistory(ctx, room.ID); len(history) != want {
		t.Fatalf("stored history %d, want %d", len(history), want)
	}
}

func TestSubmitRoomPromptNoReadyParticipants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c1, _ := h.characters.Create(ctx, models.Character{Name: "C1", Description: "d", Status: models.StatusTraining})
	c2, _ := h.characters.Create(ctx, models.Character{Name: "C2", Description: "d", Status: models.StatusTraining})

	room, err := h.engine.CreateRoom(ctx, "Quiet", "", []string{c1.ID, c2.ID})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, results, err := h.engine.SubmitRoomPrompt(ctx, room.ID, "anyone?")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.sched.fire(t)
	result := <-results
	if result.Err != nil || len(result.Messages) != 0 {
		t.Fatalf("expected empty batch, got %+v", result)
	}
	updated, _ := h.rooms.Get(ctx, room.ID)
	if updated.MessageCount != 1 {
		t.Fatalf("expected only the user message counted, got %d", updated.MessageCount)
	}
}

func TestTrainingLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateCharacter(ctx, CreateCharacterRequest{
		Name:        "Ada",
		Description: "mathematician",
		Dataset:     "ada_notes.txt",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != models.StatusTraining {
		t.Fatalf("new character should start training, got %s", created.Status)
	}

	h.sched.fire(t)
	ready, err := h.characters.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ready.Status != models.StatusReady {
		t.Fatalf("training did not complete: %s", ready.Status)
	}
	if ready.ModelURL == "" {
		t.Fatalf("expected model url after training")
	}
	if ready.Name != created.Name || ready.Description != created.Description ||
		!ready.CreatedAt.Equal(created.CreatedAt) || ready.Messages != created.Messages {
		t.Fatalf("training changed unrelated fields: %+v", ready)
	}

	retrained, err := h.engine.Retrain(ctx, created.ID)
	if err != nil || retrained.Status != models.StatusTraining {
		t.Fatalf("retrain: %+v %v", retrained, err)
	}
	h.sched.fire(t)
	final, _ := h.characters.Get(ctx, created.ID)
	if final.Status != models.StatusReady {
		t.Fatalf("retraining did not complete: %s", final.Status)
	}
}

func TestCreateCharacterValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.CreateCharacter(ctx, CreateCharacterRequest{Name: "Ada"}); !errors.Is(err, ErrMissingCharacterFields) {
		t.Fatalf("expected missing fields error, got %v", err)
	}
	if _, err := h.engine.CreateCharacter(ctx, CreateCharacterRequest{
		Name: "Ada", Description: "d", Dataset: "weights.bin",
	}); !errors.Is(err, ErrInvalidDatasetType) {
		t.Fatalf("expected dataset type error, got %v", err)
	}
	if len(h.characters.List(ctx)) != 0 {
		t.Fatalf("rejected creation mutated state")
	}
	if h.sched.pendingTasks() != 0 {
		t.Fatalf("rejected creation scheduled training")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.CreateRoom(ctx, "  ", "", []string{"a", "b"}); !errors.Is(err, ErrRoomNameRequired) {
		t.Fatalf("expected name error, got %v", err)
	}
	if _, err := h.engine.CreateRoom(ctx, "Solo", "", []string{"a"}); !errors.Is(err, ErrTooFewParticipants) {
		t.Fatalf("expected participant error, got %v", err)
	}
	if len(h.rooms.List(ctx)) != 0 {
		t.Fatalf("rejected creation stored a room")
	}
}
