package store

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/teslashibe/voicecore/pkg/backend"
)

// EnvVars maps backends to the environment variables holding their keys.
// The first non-empty variable wins.
var EnvVars = map[backend.ID][]string{
	backend.OpenAI:         {"OPENAI_API_KEY"},
	backend.OpenAIRealtime: {"OPENAI_API_KEY"},
	backend.Anthropic:      {"ANTHROPIC_API_KEY"},
	backend.Gemini:         {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	backend.Groq:           {"GROQ_API_KEY"},
}

// EnvCredentials reads credentials from the environment. It is read-only.
type EnvCredentials struct {
	lookup func(string) (string, bool)
}

// NewEnvCredentials reads from the process environment.
func NewEnvCredentials() *EnvCredentials {
	return &EnvCredentials{lookup: os.LookupEnv}
}

func (e *EnvCredentials) Get(_ context.Context, id backend.ID) (string, error) {
	for _, name := range EnvVars[id] {
		if v, ok := e.lookup(name); ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", ErrNotFound
}

func (e *EnvCredentials) Save(context.Context, backend.ID, string) error { return ErrReadOnly }
func (e *EnvCredentials) Delete(context.Context, backend.ID) error       { return ErrReadOnly }

// Layered reads through several stores in order and writes to the first.
type Layered struct {
	layers []Credentials
}

// NewLayered builds a Layered store. The first layer must be writable for
// Save and Delete to succeed.
func NewLayered(layers ...Credentials) *Layered {
	return &Layered{layers: layers}
}

func (l *Layered) Get(ctx context.Context, id backend.ID) (string, error) {
	for _, c := range l.layers {
		v, err := c.Get(ctx, id)
		if err == nil && strings.TrimSpace(v) != "" {
			return v, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}

func (l *Layered) Save(ctx context.Context, id backend.ID, credential string) error {
	if len(l.layers) == 0 {
		return ErrReadOnly
	}
	return l.layers[0].Save(ctx, id, credential)
}

func (l *Layered) Delete(ctx context.Context, id backend.ID) error {
	if len(l.layers) == 0 {
		return ErrReadOnly
	}
	return l.layers[0].Delete(ctx, id)
}

var (
	_ Credentials = (*EnvCredentials)(nil)
	_ Credentials = (*Layered)(nil)
)
