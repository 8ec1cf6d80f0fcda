// Package realtime speaks the OpenAI Realtime duplex protocol: typed
// client and server events and a WebSocket transport.
package realtime

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// Server event types.
const (
	EventSessionCreated          = "session.created"
	EventSessionUpdated          = "session.updated"
	EventSpeechStarted           = "input_audio_buffer.speech_started"
	EventSpeechStopped           = "input_audio_buffer.speech_stopped"
	EventTranscriptDelta         = "response.audio_transcript.delta"
	EventTranscriptDone          = "response.audio_transcript.done"
	EventAudioDelta              = "response.audio.delta"
	EventAudioDone               = "response.audio.done"
	EventUserTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	EventResponseDone            = "response.done"
	EventError                   = "error"
)

// Client event types.
const (
	EventSessionUpdate  = "session.update"
	EventAudioAppend    = "input_audio_buffer.append"
	EventResponseCancel = "response.cancel"
)

// AudioFormat is the only wire format the pipeline uses.
const AudioFormat = "pcm16"

// VAD configures server-side voice activity detection.
type VAD struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// Transcription selects the model used to transcribe user audio.
type Transcription struct {
	Model string `json:"model"`
}

// Session is the session configuration sent in session.update.
type Session struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           VAD            `json:"turn_detection"`
}

// SessionUpdate configures the remote session.
type SessionUpdate struct {
	EventID string  `json:"event_id,omitempty"`
	Type    string  `json:"type"`
	Session Session `json:"session"`
}

// AudioAppend carries one base64 PCM16 chunk upstream.
type AudioAppend struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

// ResponseCancel cancels the in-progress response.
type ResponseCancel struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func eventID() string {
	return "evt_" + uuid.NewString()
}

// NewSessionUpdate builds a session.update event.
func NewSessionUpdate(s Session) SessionUpdate {
	return SessionUpdate{EventID: eventID(), Type: EventSessionUpdate, Session: s}
}

// NewAudioAppend encodes pcm as an append event.
func NewAudioAppend(pcm []byte) AudioAppend {
	return AudioAppend{
		EventID: eventID(),
		Type:    EventAudioAppend,
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
}

// NewResponseCancel builds a response.cancel event.
func NewResponseCancel() ResponseCancel {
	return ResponseCancel{EventID: eventID(), Type: EventResponseCancel}
}

// ServerError is the payload of an error event.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerEvent is a decoded inbound event. Only the fields the pipeline
// consumes are mapped.
type ServerEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id"`
	ResponseID string       `json:"response_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *ServerError `json:"error,omitempty"`
}

// AudioBytes decodes the base64 delta of an audio event.
func (e ServerEvent) AudioBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Delta)
}

// ErrorMessage returns a human-readable message for error events.
func (e ServerEvent) ErrorMessage() string {
	if e.Error == nil {
		return "unknown realtime error"
	}
	if e.Error.Message != "" {
		return e.Error.Message
	}
	if e.Error.Code != "" {
		return e.Error.Code
	}
	return e.Error.Type
}
