// Package store holds the collaborator stores the core reads through:
// per-backend credentials and user preferences.
//
// Three backends are provided: in-memory, a JSON file for preferences,
// and Redis. Credentials can also be read from the environment.
package store

import (
	"context"
	"errors"

	"github.com/teslashibe/voicecore/pkg/audiosession"
	"github.com/teslashibe/voicecore/pkg/backend"
)

var (
	// ErrNotFound is returned when no credential is stored for a backend.
	ErrNotFound = errors.New("store: not found")

	// ErrReadOnly is returned by stores that cannot be written.
	ErrReadOnly = errors.New("store: read only")
)

// Credentials stores one secret per backend.
type Credentials interface {
	Get(ctx context.Context, id backend.ID) (string, error)
	Save(ctx context.Context, id backend.ID, credential string) error
	Delete(ctx context.Context, id backend.ID) error
}

// Preferences are the user's persisted choices.
type Preferences struct {
	SelectedBackend backend.ID              `json:"selected_backend,omitempty"`
	OutputMode      audiosession.OutputMode `json:"output_mode,omitempty"`
	PersonaVoice    string                  `json:"persona_voice,omitempty"`
	LastWorking     backend.ID              `json:"last_working,omitempty"`
	LastChosen      backend.ID              `json:"last_chosen,omitempty"`
}

// Settings loads and updates Preferences.
type Settings interface {
	Load(ctx context.Context) (Preferences, error)

	// Update applies fn to the current preferences and saves the result.
	Update(ctx context.Context, fn func(*Preferences)) error
}

// OutputModes exposes the output mode of s to an audio session manager.
func OutputModes(s Settings) audiosession.OutputModeStore {
	return outputModes{s}
}

type outputModes struct{ s Settings }

func (o outputModes) OutputMode(ctx context.Context) (audiosession.OutputMode, error) {
	p, err := o.s.Load(ctx)
	if err != nil {
		return audiosession.OutputAutomatic, err
	}
	if p.OutputMode == "" {
		return audiosession.OutputAutomatic, nil
	}
	return p.OutputMode, nil
}

func (o outputModes) SetOutputMode(ctx context.Context, mode audiosession.OutputMode) error {
	return o.s.Update(ctx, func(p *Preferences) { p.OutputMode = mode })
}

// RecordWorking marks id as the last backend that completed a turn.
func RecordWorking(ctx context.Context, s Settings, id backend.ID) error {
	return s.Update(ctx, func(p *Preferences) { p.LastWorking = id })
}

// RecordChosen marks id as the last backend the user picked.
func RecordChosen(ctx context.Context, s Settings, id backend.ID) error {
	return s.Update(ctx, func(p *Preferences) {
		p.SelectedBackend = id
		p.LastChosen = id
	})
}
