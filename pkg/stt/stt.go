// Package stt streams microphone audio to a speech recognizer and reports
// user transcripts and input levels.
package stt

import (
	"context"
	"errors"

	"github.com/teslashibe/voicecore/pkg/session"
)

// ErrNotStarted is returned by Stop when no recognition is running.
var ErrNotStarted = errors.New("stt: not started")

// Recognizer turns captured speech into transcripts.
//
// Start begins one recognition run. Transcripts carry RoleUser; non-final
// transcripts hold the text recognized so far and a final transcript closes
// the utterance. Levels are normalized input levels in 0..1. Both channels
// are closed when the run ends, whether by Stop, ctx or a transport failure.
type Recognizer interface {
	Start(ctx context.Context) (<-chan session.Transcript, <-chan float64, error)
	Stop() error
}
