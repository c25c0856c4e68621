package engine

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"

	"characterlab/internal/models"
)

var (
	// ErrMissingCharacterFields rejects a creation request without name,
	// description and dataset.
	ErrMissingCharacterFields = errors.New("name, description and dataset are required")
	// ErrInvalidDatasetType rejects datasets other than .txt, .json or .csv.
	ErrInvalidDatasetType = errors.New("dataset must be a .txt, .json or .csv file")
	// ErrRoomNameRequired rejects a room creation without a name.
	ErrRoomNameRequired = errors.New("room name is required")
	// ErrTooFewParticipants enforces the two-participant minimum for rooms.
	ErrTooFewParticipants = errors.New("at least 2 participants are required")
)

var allowedDatasetExts = map[string]bool{
	".txt":  true,
	".json": true,
	".csv":  true,
}

// CreateCharacterRequest carries the creation form. Dataset is the uploaded
// training file's name; only its type is checked, the contents are never
// read.
type CreateCharacterRequest struct {
	Name        string
	Description string
	Dataset     string
	Avatar      string
}

// CreateCharacter validates the request, stores the character in the
// training state and schedules the simulated training completion.
func (e *Engine) CreateCharacter(ctx context.Context, req CreateCharacterRequest) (*models.Character, error) {
	name := strings.TrimSpace(req.Name)
	description := strings.TrimSpace(req.Description)
	dataset := strings.TrimSpace(req.Dataset)
	if name == "" || description == "" || dataset == "" {
		return nil, ErrMissingCharacterFields
	}
	if !allowedDatasetExts[strings.ToLower(filepath.Ext(dataset))] {
		return nil, ErrInvalidDatasetType
	}

	character, err := e.characters.Create(ctx, models.Character{
		Name:        name,
		Description: description,
		Avatar:      strings.TrimSpace(req.Avatar),
		Status:      models.StatusTraining,
	})
	if err != nil {
		return nil, err
	}
	e.scheduleTraining(character.ID)
	return character, nil
}

// Retrain moves an existing character back to training and schedules the
// transition to ready again.
func (e *Engine) Retrain(ctx context.Context, characterID string) (*models.Character, error) {
	character, err := e.characters.Update(ctx, characterID, func(c *models.Character) {
		c.Status = models.StatusTraining
	})
	if err != nil {
		return nil, err
	}
	e.scheduleTraining(characterID)
	return character, nil
}

// scheduleTraining flips the character to ready after the fixed training
// delay, stamping a model url the way a real training completion callback
// would. A character deleted mid-training is left alone.
func (e *Engine) scheduleTraining(characterID string) {
	e.sched.AfterFunc(e.sim.TrainingDelay(), func() {
		_, err := e.characters.Update(context.Background(), characterID, func(c *models.Character) {
			c.Status = models.StatusReady
			if c.ModelURL == "" {
				c.ModelURL = "local/models/" + characterID
			}
		})
		if err != nil {
			log.Printf("complete training for %s: %v", characterID, err)
		}
	})
}

// CreateRoom validates the room policy (a name plus at least two
// participants) and stores the room.
func (e *Engine) CreateRoom(ctx context.Context, name, description string, participants []string) (*models.ChatRoom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRoomNameRequired
	}
	if len(participants) < 2 {
		return nil, ErrTooFewParticipants
	}
	return e.rooms.Create(ctx, models.ChatRoom{
		Name:         name,
		Description:  strings.TrimSpace(description),
		Participants: participants,
	})
}
