// Package session defines the contract every conversation pipeline
// implements: lifecycle, the state machine, and the three push streams
// (state, transcript, audio level) consumed by presentation layers.
package session

import (
	"context"
	"fmt"
)

// Phase is the coarse pipeline phase.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseSpeaking   Phase = "speaking"
	PhaseError      Phase = "error"
)

// State is a session state. Message is set only for PhaseError.
type State struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
}

var (
	Idle       = State{Phase: PhaseIdle}
	Listening  = State{Phase: PhaseListening}
	Processing = State{Phase: PhaseProcessing}
	Speaking   = State{Phase: PhaseSpeaking}
)

// Failed returns an error state carrying msg.
func Failed(msg string) State {
	return State{Phase: PhaseError, Message: msg}
}

// IsActive reports whether the session is mid-conversation.
func (s State) IsActive() bool {
	switch s.Phase {
	case PhaseListening, PhaseProcessing, PhaseSpeaking:
		return true
	}
	return false
}

// IsError reports whether s is an error state.
func (s State) IsError() bool {
	return s.Phase == PhaseError
}

func (s State) String() string {
	if s.Phase == PhaseError {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return string(s.Phase)
}

// Role identifies the speaker of a transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Transcript is a piece of recognized or generated speech. A final
// transcript closes the utterance for its role.
type Transcript struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Role    Role   `json:"role"`
}

// Session is implemented by the turn-based and realtime pipelines.
//
// Start may be called again after the session lands in an error state.
// Stop always succeeds and is idempotent; a stopped session is not reused.
type Session interface {
	Start(ctx context.Context, systemPrompt string) error
	Stop() error

	// Interrupt cancels in-flight speech output and returns to listening.
	Interrupt()

	State() State
	States() <-chan State
	Transcripts() <-chan Transcript

	// Levels carries normalized 0..1 input levels. Samples may be dropped.
	Levels() <-chan float64
}
