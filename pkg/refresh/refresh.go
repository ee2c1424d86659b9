// Package refresh re-synchronizes the active service with the store of
// record on every user turn. Record mentions in the message select the
// target; otherwise the current active service is refetched so the model
// never reasons over a stale snapshot.
package refresh

import (
	"context"
	"regexp"
	"sync"

	"github.com/lemonshq/lemonaide/pkg/active"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
	"github.com/lemonshq/lemonaide/pkg/transcript"
)

// Store-of-record ids are long opaque tokens; anything shorter is ordinary
// prose. Requiring a digit keeps long English words out.
var idToken = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_-]{23,}`)
var hasDigit = regexp.MustCompile(`[0-9]`)

// ExtractRecordID returns the first id-shaped token in text, or empty.
func ExtractRecordID(text string) string {
	for _, candidate := range idToken.FindAllString(text, -1) {
		if hasDigit.MatchString(candidate) {
			return candidate
		}
	}
	return ""
}

// Controller drives one refresh per user entry. It is safe to call from
// concurrent render paths; the last-handled guard makes redelivery a no-op.
type Controller struct {
	transcript *transcript.Transcript
	records    *active.Store
	logger     *logging.Logger

	mu          sync.Mutex
	lastHandled string
}

// New creates a refresh controller bound to one widget's transcript and
// active-record store.
func New(tr *transcript.Transcript, records *active.Store, logger *logging.Logger) *Controller {
	return &Controller{transcript: tr, records: records, logger: logger}
}

// HandleUserEntry processes one user text entry. Returns true when a refresh
// was performed, false when the entry was already handled or nothing was
// refreshable. The synthetic invocation/result pair is appended exactly once
// per entry id no matter how many times the entry is redelivered.
func (c *Controller) HandleUserEntry(ctx context.Context, entry transcript.Entry) bool {
	if entry.Kind != transcript.KindText || entry.Role != transcript.RoleUser {
		return false
	}

	c.mu.Lock()
	if c.lastHandled == entry.ID {
		c.mu.Unlock()
		return false
	}
	c.lastHandled = entry.ID
	c.mu.Unlock()

	target := ExtractRecordID(entry.Content)
	if target == "" {
		target = c.records.ActiveServiceID()
	}
	if target == "" {
		return false
	}

	inv := c.transcript.AppendInvocation("getServiceById", map[string]any{
		"serviceId": target,
	}, true)

	svc, err := c.records.SetServiceByID(ctx, target)
	if err != nil {
		c.logger.Warn(logging.CategoryRefresh, "refresh_failed", err.Error(), map[string]any{
			"service_id": target,
		})
		c.transcript.AppendResult(inv.ID, map[string]any{"error": err.Error()}, false, true)
		return true
	}

	c.transcript.AppendResult(inv.ID, c.refreshPayload(svc), true, true)
	c.logger.Debug(logging.CategoryRefresh, "refreshed", "", map[string]any{
		"service_id": svc.ID,
	})
	return true
}

// refreshPayload carries the fetched service and its package tiers, the same
// shape a real retrieval call would have produced.
func (c *Controller) refreshPayload(svc record.Service) map[string]any {
	payload := map[string]any{
		"id":          svc.ID,
		"title":       svc.Title,
		"category":    svc.Category,
		"description": svc.Description,
	}
	if snap := c.records.Snapshot(); snap.Service != nil && snap.Service.ID == svc.ID {
		pkgs := make([]map[string]any, 0, len(snap.Packages))
		for _, p := range snap.Packages {
			pkgs = append(pkgs, map[string]any{
				"id":       p.ID,
				"name":     p.Name,
				"price":    p.Price,
				"delivery": p.Delivery,
			})
		}
		payload["packages"] = pkgs
	}
	return payload
}
