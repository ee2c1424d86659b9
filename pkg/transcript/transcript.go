// Package transcript maintains the ordered conversation history for a widget
// instance: user and assistant text plus operation invocations and their
// results. Every change is written through to durable storage so the
// conversation survives iframe reloads.
package transcript

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/storage"
)

// Kind discriminates transcript entries.
type Kind string

const (
	KindText       Kind = "text"
	KindInvocation Kind = "invocation"
	KindResult     Kind = "result"
)

// Roles for text entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one transcript element. Invocation entries carry Operation and
// Arguments; result entries carry InvocationID, Payload and Success.
type Entry struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Role         string         `json:"role,omitempty"`
	Content      string         `json:"content,omitempty"`
	Operation    string         `json:"operation,omitempty"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Payload      any            `json:"payload,omitempty"`
	Success      bool           `json:"success,omitempty"`
	// Synthetic marks entries injected by the runtime itself rather than
	// authored by the model or the user.
	Synthetic bool      `json:"synthetic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the in-memory history plus its write-through persistence.
type Transcript struct {
	widgetID string
	store    *storage.Store
	logger   *logging.Logger

	mu      sync.RWMutex
	entries []Entry
	entropy *rand.Rand
}

// New creates an empty transcript. store may be nil (no persistence).
func New(widgetID string, store *storage.Store, logger *logging.Logger) *Transcript {
	return &Transcript{
		widgetID: widgetID,
		store:    store,
		logger:   logger,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *Transcript) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), t.entropy).String()
}

// Restore loads the persisted transcript. A malformed persisted entry aborts
// the whole restore and leaves the transcript empty; the widget starts a
// fresh conversation rather than operating on a partially decoded history.
func (t *Transcript) Restore() error {
	if t.store == nil {
		return nil
	}
	rows, err := t.store.GetEntries(t.widgetID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageRead, "loading transcript")
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := entryFromRow(row)
		if err != nil {
			t.logger.Warn(logging.CategoryTranscript, "restore_aborted", err.Error(), map[string]any{
				"entry_id": row.ID,
			})
			t.mu.Lock()
			t.entries = nil
			t.mu.Unlock()
			return errors.Wrap(err, errors.ErrCodeRestoreCorrupt, "persisted transcript is corrupt")
		}
		entries = append(entries, e)
	}

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

func entryFromRow(row storage.Entry) (Entry, error) {
	kind := Kind(row.Kind)
	switch kind {
	case KindText, KindInvocation, KindResult:
	default:
		return Entry{}, errors.New(errors.ErrCodeRestoreCorrupt, "unknown entry kind "+row.Kind)
	}

	e := Entry{
		ID:           row.ID,
		Kind:         kind,
		Role:         row.Role,
		Content:      row.Content,
		Operation:    row.Operation,
		InvocationID: row.InvocationID,
		Success:      row.Success,
		Synthetic:    row.Synthetic,
		CreatedAt:    row.CreatedAt,
	}
	if row.Arguments != "" {
		if err := json.Unmarshal([]byte(row.Arguments), &e.Arguments); err != nil {
			return Entry{}, errors.Wrap(err, errors.ErrCodeRestoreCorrupt, "decoding entry arguments")
		}
	}
	if row.Payload != "" {
		if err := json.Unmarshal([]byte(row.Payload), &e.Payload); err != nil {
			return Entry{}, errors.Wrap(err, errors.ErrCodeRestoreCorrupt, "decoding entry payload")
		}
	}
	return e, nil
}

// AppendUserText appends a user-authored message and returns the entry.
func (t *Transcript) AppendUserText(content string) Entry {
	return t.append(Entry{Kind: KindText, Role: RoleUser, Content: content})
}

// AppendAssistantText appends an assistant message and returns the entry.
func (t *Transcript) AppendAssistantText(content string) Entry {
	return t.append(Entry{Kind: KindText, Role: RoleAssistant, Content: content})
}

// AppendInvocation records an operation call and returns the entry; its ID
// links the eventual result.
func (t *Transcript) AppendInvocation(operation string, args map[string]any, synthetic bool) Entry {
	return t.append(Entry{
		Kind:      KindInvocation,
		Operation: operation,
		Arguments: args,
		Synthetic: synthetic,
	})
}

// AppendResult records the outcome of a prior invocation. The invocation
// must already be present: results never precede their calls.
func (t *Transcript) AppendResult(invocationID string, payload any, success bool, synthetic bool) (Entry, error) {
	t.mu.RLock()
	found := false
	for _, e := range t.entries {
		if e.Kind == KindInvocation && e.ID == invocationID {
			found = true
			break
		}
	}
	t.mu.RUnlock()
	if !found {
		return Entry{}, errors.New(errors.ErrCodeValidation, "result references unknown invocation "+invocationID)
	}
	return t.append(Entry{
		Kind:         KindResult,
		InvocationID: invocationID,
		Payload:      payload,
		Success:      success,
		Synthetic:    synthetic,
	}), nil
}

func (t *Transcript) append(e Entry) Entry {
	t.mu.Lock()
	e.ID = t.newID()
	e.CreatedAt = time.Now().UTC()
	position := len(t.entries)
	t.entries = append(t.entries, e)
	t.mu.Unlock()

	t.persist(e, position)
	return e
}

func (t *Transcript) persist(e Entry, position int) {
	if t.store == nil {
		return
	}
	row := storage.Entry{
		ID:           e.ID,
		WidgetID:     t.widgetID,
		Position:     position,
		Kind:         string(e.Kind),
		Role:         e.Role,
		Content:      e.Content,
		Operation:    e.Operation,
		InvocationID: e.InvocationID,
		Success:      e.Success,
		Synthetic:    e.Synthetic,
		CreatedAt:    e.CreatedAt,
	}
	if e.Arguments != nil {
		if b, err := json.Marshal(e.Arguments); err == nil {
			row.Arguments = string(b)
		}
	}
	if e.Payload != nil {
		if b, err := json.Marshal(e.Payload); err == nil {
			row.Payload = string(b)
		}
	}
	if err := t.store.AppendEntry(&row); err != nil {
		t.logger.Error(logging.CategoryTranscript, "persist_failed", err.Error(), map[string]any{
			"entry_id": e.ID,
		})
	}
}

// Entries returns a copy of the history in order.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Len reports the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// LastUserEntry returns the most recent user text entry, if any.
func (t *Transcript) LastUserEntry() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Kind == KindText && t.entries[i].Role == RoleUser {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}
