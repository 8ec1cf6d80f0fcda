// Package backend enumerates the language-model backends voicecore can talk
// to, their static capability flags, and the error taxonomy shared by every
// provider package.
package backend

import (
	"fmt"
	"slices"
	"strings"
)

// ID identifies a language-model backend.
type ID string

const (
	Managed        ID = "managed"
	OpenAI         ID = "openai"
	Anthropic      ID = "anthropic"
	Gemini         ID = "gemini"
	OnDevice       ID = "on_device"
	OpenAIRealtime ID = "openai_realtime"
	Groq           ID = "groq"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPlus Tier = "plus"
	TierPro  Tier = "pro"
)

// Surface is where a session runs.
type Surface string

const (
	SurfacePhone    Surface = "phone"
	SurfaceHeadUnit Surface = "head_unit"
)

// Capabilities are the static properties of a backend.
type Capabilities struct {
	// RequiresCredential means a user-supplied key (BYOK) must be present.
	RequiresCredential bool

	// Tiers lists the subscription tiers allowed to use the backend.
	Tiers []Tier

	// MinPlatformVersion is the lowest platform major version supported.
	// Zero means no gate.
	MinPlatformVersion int

	// ExcludedSurfaces lists surfaces the backend cannot run on.
	ExcludedSurfaces []Surface

	// Available is false for backends that are switched off.
	Available bool

	// OnDevice marks backends that run locally.
	OnDevice bool

	// Realtime marks backends that speak the duplex audio protocol.
	Realtime bool
}

// AllowsTier reports whether t is in the allow-list.
func (c Capabilities) AllowsTier(t Tier) bool {
	return slices.Contains(c.Tiers, t)
}

// PlatformGated reports whether the backend has any platform restriction.
func (c Capabilities) PlatformGated() bool {
	return c.MinPlatformVersion > 0 || len(c.ExcludedSurfaces) > 0
}

// SupportsPlatform reports whether the backend can run on the given surface
// and platform version.
func (c Capabilities) SupportsPlatform(s Surface, version int) bool {
	if version < c.MinPlatformVersion {
		return false
	}
	return !slices.Contains(c.ExcludedSurfaces, s)
}

var allTiers = []Tier{TierFree, TierPlus, TierPro}

// registry holds capabilities in static fallback priority order.
var registry = []struct {
	id   ID
	caps Capabilities
}{
	{Managed, Capabilities{Tiers: allTiers, Available: true}},
	{OpenAI, Capabilities{RequiresCredential: true, Tiers: allTiers, Available: true}},
	{Anthropic, Capabilities{RequiresCredential: true, Tiers: []Tier{TierPlus, TierPro}, Available: true}},
	{Gemini, Capabilities{RequiresCredential: true, Tiers: []Tier{TierPlus, TierPro}, Available: true}},
	{OnDevice, Capabilities{
		Tiers:              []Tier{TierPlus, TierPro},
		MinPlatformVersion: 26,
		ExcludedSurfaces:   []Surface{SurfaceHeadUnit},
		Available:          true,
		OnDevice:           true,
	}},
	{OpenAIRealtime, Capabilities{RequiresCredential: true, Tiers: []Tier{TierPro}, Available: true, Realtime: true}},
	{Groq, Capabilities{RequiresCredential: true, Tiers: []Tier{TierPro}}},
}

// All returns every backend in static fallback priority order.
func All() []ID {
	ids := make([]ID, len(registry))
	for i, r := range registry {
		ids[i] = r.id
	}
	return ids
}

// Caps returns the static capabilities of id. Unknown IDs report
// unavailable with an empty tier list.
func (id ID) Caps() Capabilities {
	for _, r := range registry {
		if r.id == id {
			return r.caps
		}
	}
	return Capabilities{}
}

// Known reports whether id is a registered backend.
func (id ID) Known() bool {
	for _, r := range registry {
		if r.id == id {
			return true
		}
	}
	return false
}

func (id ID) String() string { return string(id) }

// Parse converts a name to an ID, case-insensitively.
func Parse(name string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(name)))
	if !id.Known() {
		return "", fmt.Errorf("unknown backend %q", name)
	}
	return id, nil
}

// ParseTier converts a name to a Tier. Empty means free.
func ParseTier(name string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(name))); t {
	case "":
		return TierFree, nil
	case TierFree, TierPlus, TierPro:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", name)
	}
}

// ParseSurface converts a name to a Surface. Empty means phone.
func ParseSurface(name string) (Surface, error) {
	switch s := Surface(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return SurfacePhone, nil
	case SurfacePhone, SurfaceHeadUnit:
		return s, nil
	default:
		return "", fmt.Errorf("unknown surface %q", name)
	}
}
