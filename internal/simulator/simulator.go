package simulator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"characterlab/internal/config"
	"characterlab/internal/models"
)

// ErrEmptyPrompt rejects whitespace-only prompts before any delay is
// scheduled.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// Clock and Rand isolate wall time and randomness so tests can pin both.
type Clock interface {
	Now() time.Time
}

type Rand interface {
	Intn(n int) int
	Float64() float64
	Perm(n int) []int
}

// Config holds the artificial delay windows and batch limits.
type Config struct {
	ReplyDelayMin  time.Duration
	ReplyDelayMax  time.Duration
	RoomDelayMin   time.Duration
	RoomDelayMax   time.Duration
	TrainingDelay  time.Duration
	RoomReplyGap   time.Duration
	MaxRoomReplies int
}

// DefaultConfig returns the standard windows: 1-3s single replies, 1.5-3.5s
// room batches, 5s training, up to 3 repliers spaced 1s apart.
func DefaultConfig() Config {
	return Config{
		ReplyDelayMin:  time.Second,
		ReplyDelayMax:  3 * time.Second,
		RoomDelayMin:   1500 * time.Millisecond,
		RoomDelayMax:   3500 * time.Millisecond,
		TrainingDelay:  5 * time.Second,
		RoomReplyGap:   time.Second,
		MaxRoomReplies: 3,
	}
}

// FromAppConfig overlays configured values onto the defaults.
func FromAppConfig(sc config.SimulatorConfig) Config {
	def := DefaultConfig()
	cfg := Config{
		ReplyDelayMin:  config.Delay(sc.ReplyDelayMinMs, def.ReplyDelayMin),
		ReplyDelayMax:  config.Delay(sc.ReplyDelayMaxMs, def.ReplyDelayMax),
		RoomDelayMin:   config.Delay(sc.RoomDelayMinMs, def.RoomDelayMin),
		RoomDelayMax:   config.Delay(sc.RoomDelayMaxMs, def.RoomDelayMax),
		TrainingDelay:  config.Delay(sc.TrainingDelayMs, def.TrainingDelay),
		RoomReplyGap:   config.Delay(sc.RoomReplyGapMs, def.RoomReplyGap),
		MaxRoomReplies: sc.MaxRoomRepliers,
	}
	if cfg.MaxRoomReplies <= 0 {
		cfg.MaxRoomReplies = def.MaxRoomReplies
	}
	return cfg
}

// Simulator fabricates character replies without real inference.
type Simulator struct {
	cfg   Config
	clock Clock
	rng   Rand

	// NewID is injectable for deterministic tests.
	NewID func() string
}

func New(cfg Config, clock Clock, rng Rand) *Simulator {
	return &Simulator{cfg: cfg, clock: clock, rng: rng, NewID: uuid.NewString}
}

// The canned reply templates, parameterized by character name and the
// lowercased prompt.
var singleTemplates = []func(name, prompt string) string{
	func(name, _ string) string {
		return fmt.Sprintf("That's interesting! As %s, I think about that differently.", name)
	},
	func(_, _ string) string {
		return "I appreciate you sharing that with me. What else would you like to discuss?"
	},
	func(_, prompt string) string {
		return fmt.Sprintf("From my perspective, %s is quite fascinating.", strings.ToLower(prompt))
	},
	func(_, _ string) string {
		return "Let me think about that... Based on my understanding, I'd say that's a great point."
	},
	func(_, _ string) string {
		return "That reminds me of something similar. Would you like to hear more about it?"
	},
}

var roomTemplates = []func(name string) string{
	func(name string) string { return fmt.Sprintf("Interesting perspective! As %s, I'd add that...", name) },
	func(name string) string { return fmt.Sprintf("%s here - I think we should consider...", name) },
	func(name string) string { return fmt.Sprintf("From my experience as %s, I've noticed...", name) },
	func(name string) string { return fmt.Sprintf("That's a great point! %s would say...", name) },
	func(name string) string { return fmt.Sprintf("Building on that, %s believes...", name) },
}

// SingleReply fabricates one reply to a 1:1 prompt. Validation happens
// synchronously; the caller owns the delay and the pending-state guard.
func (s *Simulator) SingleReply(character *models.Character, prompt string) (*models.ChatMessage, error) {
	if character == nil {
		return nil, errors.New("character required")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	template := singleTemplates[s.rng.Intn(len(singleTemplates))]
	return &models.ChatMessage{
		ID:        s.NewID(),
		Text:      template(character.Name, prompt),
		IsUser:    false,
		Timestamp: s.clock.Now(),
	}, nil
}

// RoomReplies fabricates a batch of replies from the room's ready
// participants: between 1 and min(MaxRoomReplies, ready) distinct characters,
// chosen by permutation prefix, with strictly increasing timestamps. Zero
// ready participants yield an empty batch.
func (s *Simulator) RoomReplies(participants []models.Character, prompt string) ([]models.RoomMessage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	var ready []models.Character
	for _, c := range participants {
		if c.Status == models.StatusReady {
			ready = append(ready, c)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}

	count := s.rng.Intn(s.cfg.MaxRoomReplies) + 1
	if count > len(ready) {
		count = len(ready)
	}
	order := s.rng.Perm(len(ready))[:count]

	base := s.clock.Now()
	replies := make([]models.RoomMessage, 0, count)
	for i, idx := range order {
		character := ready[idx]
		template := roomTemplates[s.rng.Intn(len(roomTemplates))]
		replies = append(replies, models.RoomMessage{
			ID:            s.NewID(),
			Text:          template(character.Name),
			CharacterID:   character.ID,
			CharacterName: character.Name,
			Timestamp:     base.Add(time.Duration(i+1) * s.cfg.RoomReplyGap),
		})
	}
	return replies, nil
}

// ReplyDelay draws a uniform delay for a single reply.
func (s *Simulator) ReplyDelay() time.Duration {
	return s.window(s.cfg.ReplyDelayMin, s.cfg.ReplyDelayMax)
}

// RoomReplyDelay draws one delay for a whole room batch.
func (s *Simulator) RoomReplyDelay() time.Duration {
	return s.window(s.cfg.RoomDelayMin, s.cfg.RoomDelayMax)
}

// TrainingDelay reports the fixed simulated training duration.
func (s *Simulator) TrainingDelay() time.Duration {
	return s.cfg.TrainingDelay
}

func (s *Simulator) window(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Float64()*float64(max-min))
}
