package simulator

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"characterlab/internal/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// fakeRand replays scripted Intn results and keeps permutations in input
// order.
type fakeRand struct {
	intn  []int
	float float64
}

func (r *fakeRand) Intn(n int) int {
	if len(r.intn) == 0 {
		return 0
	}
	v := r.intn[0] % n
	r.intn = r.intn[1:]
	return v
}

func (r *fakeRand) Float64() float64 { return r.float }

func (r *fakeRand) Perm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newTestSimulator(rng Rand) (*Simulator, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)}
	sim := New(DefaultConfig(), clock, rng)
	seq := 0
	sim.NewID = func() string {
		seq++
		return fmt.Sprintf("msg-%d", seq)
	}
	return sim, clock
}

func TestSingleReplyRejectsBlankPrompt(t *testing.T) {
	sim, _ := newTestSimulator(&fakeRand{})
	character := &models.Character{ID: "c1", Name: "Ada", Status: models.StatusReady}
	for _, prompt := range []string{"", "   ", "\n\t"} {
		if _, err := sim.SingleReply(character, prompt); !errors.Is(err, ErrEmptyPrompt) {
			t.Fatalf("prompt %q: expected ErrEmptyPrompt, got %v", prompt, err)
		}
	}
}

func TestSingleReplyInterpolation(t *testing.T) {
	character := &models.Character{ID: "c1", Name: "Ada", Status: models.StatusReady}

	sim, clock := newTestSimulator(&fakeRand{intn: []int{0}})
	reply, err := sim.SingleReply(character, "Tell me about trains")
	if err != nil {
		t.Fatalf("single reply: %v", err)
	}
	if !strings.Contains(reply.Text, "As Ada,") {
		t.Fatalf("template 0 should name the character: %q", reply.Text)
	}
	if reply.IsUser {
		t.Fatalf("reply must not be marked as user message")
	}
	if !reply.Timestamp.Equal(clock.now) {
		t.Fatalf("timestamp should come from the clock")
	}

	sim, _ = newTestSimulator(&fakeRand{intn: []int{2}})
	reply, err = sim.SingleReply(character, "Tell Me About TRAINS")
	if err != nil {
		t.Fatalf("single reply: %v", err)
	}
	if !strings.Contains(reply.Text, "tell me about trains") {
		t.Fatalf("template 2 should lowercase the prompt: %q", reply.Text)
	}
}

func roomParticipants() []models.Character {
	return []models.Character{
		{ID: "a", Name: "A", Status: models.StatusReady},
		{ID: "b", Name: "B", Status: models.StatusReady},
		{ID: "c", Name: "C", Status: models.StatusTraining},
	}
}

func TestRoomRepliesSelectsOnlyReadyCharacters(t *testing.T) {
	// Ask for the maximum batch; only the two ready characters qualify.
	sim, _ := newTestSimulator(&fakeRand{intn: []int{2, 0, 0}})
	replies, err := sim.RoomReplies(roomParticipants(), "hello all")
	if err != nil {
		t.Fatalf("room replies: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("expected batch capped at ready count 2, got %d", len(replies))
	}
	seen := map[string]bool{}
	for _, reply := range replies {
		if reply.CharacterID == "c" {
			t.Fatalf("training character selected: %+v", reply)
		}
		if seen[reply.CharacterID] {
			t.Fatalf("character repeated within a batch: %+v", reply)
		}
		seen[reply.CharacterID] = true
	}
}

func TestRoomRepliesTimestampsStrictlyIncrease(t *testing.T) {
	sim, clock := newTestSimulator(&fakeRand{intn: []int{2, 1, 3}})
	replies, err := sim.RoomReplies(roomParticipants(), "hello")
	if err != nil {
		t.Fatalf("room replies: %v", err)
	}
	prev := clock.now
	for i, reply := range replies {
		if !reply.Timestamp.After(prev) {
			t.Fatalf("reply %d timestamp %v not after %v", i, reply.Timestamp, prev)
		}
		if got := reply.Timestamp.Sub(prev); got != time.Second {
			t.Fatalf("reply %d offset %v, want 1s", i, got)
		}
		prev = reply.Timestamp
	}
}

func TestRoomRepliesCountBounds(t *testing.T) {
	participants := roomParticipants()
	for draw := 0; draw < 3; draw++ {
		sim, _ := newTestSimulator(&fakeRand{intn: []int{draw, 0, 0, 0}})
		replies, err := sim.RoomReplies(participants, "hello")
		if err != nil {
			t.Fatalf("room replies: %v", err)
		}
		if len(replies) < 1 || len(replies) > 2 {
			t.Fatalf("draw %d: batch size %d outside [1, min(3, 2)]", draw, len(replies))
		}
	}
}

func TestRoomRepliesEmptyWhenNobodyReady(t *testing.T) {
	sim, _ := newTestSimulator(&fakeRand{})
	replies, err := sim.RoomReplies([]models.Character{
		{ID: "c", Name: "C", Status: models.StatusTraining},
		{ID: "d", Name: "D", Status: models.StatusFailed},
	}, "anyone there?")
	if err != nil {
		t.Fatalf("room replies: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected empty batch, got %d", len(replies))
	}
}

func TestRoomRepliesRejectsBlankPrompt(t *testing.T) {
	sim, _ := newTestSimulator(&fakeRand{})
	if _, err := sim.RoomReplies(roomParticipants(), "  \t"); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestDelayWindows(t *testing.T) {
	for _, f := range []float64{0, 0.5, 0.999} {
		sim, _ := newTestSimulator(&fakeRand{float: f})
		if d := sim.ReplyDelay(); d < time.Second || d > 3*time.Second {
			t.Fatalf("reply delay %v outside window", d)
		}
		if d := sim.RoomReplyDelay(); d < 1500*time.Millisecond || d > 3500*time.Millisecond {
			t.Fatalf("room delay %v outside window", d)
		}
	}
	sim, _ := newTestSimulator(&fakeRand{})
	if sim.TrainingDelay() != 5*time.Second {
		t.Fatalf("training delay %v", sim.TrainingDelay())
	}
}
