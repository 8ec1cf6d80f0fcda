// Package audiosession owns the process-wide audio hardware session: its
// category, mode, routing and activation, plus the interruption and route
// change notifications it raises.
package audiosession

import (
	"strings"
	"time"
)

// Category is the coarse usage class of the session.
type Category string

const (
	CategoryPlayAndRecord Category = "play_and_record"
	CategoryPlayback      Category = "playback"
)

// Mode tunes signal processing for the category.
type Mode string

const (
	ModeVoiceChat   Mode = "voice_chat"
	ModeSpokenAudio Mode = "spoken_audio"
)

// Options are category option flags.
type Options uint8

const (
	OptionAllowBluetooth Options = 1 << iota
	OptionDefaultToSpeaker
)

// Has reports whether o contains flag.
func (o Options) Has(flag Options) bool { return o&flag != 0 }

func (o Options) String() string {
	var parts []string
	if o.Has(OptionAllowBluetooth) {
		parts = append(parts, "allow_bluetooth")
	}
	if o.Has(OptionDefaultToSpeaker) {
		parts = append(parts, "default_to_speaker")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Route is the current output endpoint class.
type Route string

const (
	RouteSpeaker   Route = "speaker"
	RouteReceiver  Route = "receiver"
	RouteBluetooth Route = "bluetooth"
	RouteWired     Route = "wired"
	RouteCar       Route = "car"
	RouteUnknown   Route = "unknown"
)

// InterruptionKind says whether an interruption began or ended.
type InterruptionKind string

const (
	InterruptionBegan InterruptionKind = "began"
	InterruptionEnded InterruptionKind = "ended"
)

// Interruption is raised when another party takes the audio hardware.
type Interruption struct {
	Kind         InterruptionKind `json:"kind"`
	ShouldResume bool             `json:"should_resume"`
	At           time.Time        `json:"at"`
}

// RouteChange is raised when the output endpoint changes.
type RouteChange struct {
	Previous Route     `json:"previous"`
	Current  Route     `json:"current"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Hardware is the platform audio session handle. A Manager is its only
// writer.
type Hardware interface {
	SetCategory(category Category, mode Mode, opts Options) error
	SetActive(active bool) error
	OverrideToSpeaker(on bool) error
	CurrentRoute() Route

	// Interruptions and RouteChanges deliver hardware notifications. They
	// are read by a single Manager and closed by Close.
	Interruptions() <-chan Interruption
	RouteChanges() <-chan RouteChange

	Close() error
}
