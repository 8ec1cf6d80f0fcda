// Package access decides which language-model backend actually serves a
// request. Resolution is a pure function of the request and injected live
// probes: no global state is consulted.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/voicecore/pkg/backend"
	"github.com/teslashibe/voicecore/pkg/metrics"
)

// Reason explains why the requested backend was not used.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonTierRestricted       Reason = "tier_restricted"
	ReasonPlatformUnsupported  Reason = "platform_unsupported"
	ReasonBackendUnavailable   Reason = "backend_unavailable"
	ReasonMissingConfiguration Reason = "missing_configuration"
)

// Request is the input to Resolve.
type Request struct {
	Requested       backend.ID
	Tier            backend.Tier
	Surface         backend.Surface
	PlatformVersion int

	// LastWorking is the backend that last completed a reply. Empty if none.
	LastWorking backend.ID

	// LastChosen is the backend the user last picked explicitly. Empty if none.
	LastChosen backend.ID
}

// Probes are live checks supplied by the caller. A nil probe passes.
type Probes struct {
	// IsConfigured reports whether credentials/config exist for a backend.
	IsConfigured func(backend.ID) bool

	// IsRuntimeAvailable reports whether the backend can run right now.
	IsRuntimeAvailable func(backend.ID) bool
}

func (p Probes) configured(id backend.ID) bool {
	return p.IsConfigured == nil || p.IsConfigured(id)
}

func (p Probes) runtime(id backend.ID) bool {
	return p.IsRuntimeAvailable == nil || p.IsRuntimeAvailable(id)
}

// Result is the outcome of a resolution.
type Result struct {
	Requested backend.ID `json:"requested"`
	Effective backend.ID `json:"effective"`
	Reason    Reason     `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// FellBack reports whether a different backend was selected.
func (r Result) FellBack() bool {
	return r.Effective != r.Requested
}

// Resolve picks the backend that will serve req. It returns
// backend.ErrConfigurationMissing when no backend passes every check.
func Resolve(req Request, probes Probes) (Result, error) {
	res := Result{Requested: req.Requested}

	reason := check(req, probes, req.Requested)
	if reason == ReasonNone {
		res.Effective = req.Requested
		return res, nil
	}
	res.Reason = reason

	for _, id := range candidates(req) {
		if check(req, probes, id) == ReasonNone {
			res.Effective = id
			res.Message = describe(req, reason, id)
			return res, nil
		}
	}

	res.Message = describe(req, reason, "")
	return res, backend.ConfigurationMissing(
		fmt.Sprintf("no usable backend (requested %s: %s)", req.Requested, reason))
}

// check returns ReasonNone if id is usable, otherwise the highest-priority
// reason it is not.
func check(req Request, probes Probes, id backend.ID) Reason {
	caps := id.Caps()
	switch {
	case !caps.AllowsTier(req.Tier):
		return ReasonTierRestricted
	case !caps.SupportsPlatform(req.Surface, req.PlatformVersion):
		return ReasonPlatformUnsupported
	case !caps.Available || !probes.runtime(id):
		return ReasonBackendUnavailable
	case !probes.configured(id):
		return ReasonMissingConfiguration
	default:
		return ReasonNone
	}
}

// candidates returns the ordered, de-duplicated fallback list with the
// requested backend removed.
func candidates(req Request) []backend.ID {
	seen := map[backend.ID]bool{req.Requested: true, "": true}
	var out []backend.ID
	add := func(id backend.ID) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	add(req.LastWorking)
	if caps := req.LastChosen.Caps(); !(caps.OnDevice && caps.PlatformGated()) {
		add(req.LastChosen)
	}
	for _, id := range backend.All() {
		add(id)
	}
	return out
}

func describe(req Request, reason Reason, effective backend.ID) string {
	var why string
	switch reason {
	case ReasonTierRestricted:
		why = fmt.Sprintf("%s is not included in the %s tier", req.Requested, req.Tier)
	case ReasonPlatformUnsupported:
		why = fmt.Sprintf("%s is not supported on this %s", req.Requested, strings.ReplaceAll(string(req.Surface), "_", " "))
	case ReasonBackendUnavailable:
		why = fmt.Sprintf("%s is currently unavailable", req.Requested)
	case ReasonMissingConfiguration:
		why = fmt.Sprintf("%s is not configured", req.Requested)
	}
	if effective == "" {
		return why + "; no other backend is available"
	}
	return fmt.Sprintf("%s; using %s", why, effective)
}

// Resolver binds a set of probes and records every resolution.
type Resolver struct {
	probes Probes
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default().
func NewResolver(probes Probes, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{probes: probes, logger: logger.With("component", "access.resolver")}
}

// Resolve runs Resolve with the bound probes.
func (r *Resolver) Resolve(req Request) (Result, error) {
	res, err := Resolve(req, r.probes)
	effective := string(res.Effective)
	if err != nil {
		effective = "none"
	}
	metrics.Resolutions.WithLabelValues(string(req.Requested), effective, string(res.Reason)).Inc()

	switch {
	case err != nil:
		r.logger.Error("no usable backend", "requested", req.Requested, "reason", res.Reason, "tier", req.Tier)
	case res.FellBack():
		r.logger.Warn("backend fallback",
			"requested", req.Requested,
			"effective", res.Effective,
			"reason", res.Reason,
		)
	default:
		r.logger.Debug("backend resolved", "backend", res.Effective)
	}
	return res, err
}

// CredentialLookup returns the stored credential for a backend.
type CredentialLookup interface {
	Get(ctx context.Context, id backend.ID) (string, error)
}

// ConfiguredByCredentials returns an IsConfigured probe: backends that need
// no credential always pass, the rest need a non-empty stored credential.
func ConfiguredByCredentials(ctx context.Context, creds CredentialLookup) func(backend.ID) bool {
	return func(id backend.ID) bool {
		if !id.Caps().RequiresCredential {
			return true
		}
		key, err := creds.Get(ctx, id)
		return err == nil && strings.TrimSpace(key) != ""
	}
}
