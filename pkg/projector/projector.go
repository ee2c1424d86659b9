// Package projector derives the serialized context block handed to the model
// on every turn: the active service, its packages, the active user, and the
// fixed category vocabulary. Facts are encoded with TOON for token economy,
// falling back to JSON when TOON is disabled or fails.
package projector

import (
	"encoding/json"
	"sync"

	"github.com/alpkeskin/gotoon"

	"github.com/lemonshq/lemonaide/pkg/active"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// Facts is the typed projection of widget state. Absent records serialize as
// explicit nulls so the model can tell "nothing selected" apart from "field
// omitted".
type Facts struct {
	ActiveService     *record.Service  `json:"active_service"`
	ActivePackages    []record.Package `json:"active_packages"`
	ActiveUser        *record.User     `json:"active_user"`
	AllowedCategories []string         `json:"allowed_categories"`
}

// Projector converts active-record snapshots into model-facing context.
type Projector struct {
	useToon bool
	logger  *logging.Logger

	mu     sync.RWMutex
	latest string
}

// New creates a projector. useToon selects the compact encoding.
func New(useToon bool, logger *logging.Logger) *Projector {
	p := &Projector{useToon: useToon, logger: logger}
	// Seed with the empty projection so Latest is never blank.
	p.Update(active.Snapshot{})
	return p
}

// Derive builds Facts from a snapshot. Package list is always non-nil so an
// active service with zero packages projects as an empty list, not null.
func Derive(snap active.Snapshot) Facts {
	facts := Facts{
		ActiveService:     snap.Service,
		ActiveUser:        snap.User,
		AllowedCategories: record.AllowedCategories,
	}
	if snap.Service != nil {
		facts.ActivePackages = snap.Packages
		if facts.ActivePackages == nil {
			facts.ActivePackages = []record.Package{}
		}
	}
	return facts
}

// Update re-derives the projection from snap and caches it. Registered as an
// OnChange observer on the active-record store.
func (p *Projector) Update(snap active.Snapshot) {
	encoded := p.encode(Derive(snap))
	p.mu.Lock()
	p.latest = encoded
	p.mu.Unlock()
}

// Latest returns the most recently derived projection.
func (p *Projector) Latest() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

func (p *Projector) encode(facts Facts) string {
	if p.useToon {
		if encoded, err := gotoon.Encode(facts); err == nil {
			return encoded
		} else {
			p.logger.Warn(logging.CategoryRecord, "toon_encode_failed", err.Error(), nil)
		}
	}
	b, err := json.Marshal(facts)
	if err != nil {
		// Facts is a closed set of marshalable types; reaching this means a
		// programming error, so surface an empty object rather than panic.
		return "{}"
	}
	return string(b)
}
