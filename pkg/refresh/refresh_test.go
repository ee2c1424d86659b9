package refresh

import (
	"context"
	"testing"

	"github.com/lemonshq/lemonaide/pkg/active"
	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/record"
	"github.com/lemonshq/lemonaide/pkg/transcript"
)

type fetcherStub struct {
	records       map[string]record.Raw
	searchResults []record.Raw
	fetched       []string
}

func (f *fetcherStub) FetchByID(ctx context.Context, slug, id string) (record.Raw, error) {
	f.fetched = append(f.fetched, id)
	raw, ok := f.records[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "no record "+id)
	}
	return raw, nil
}

func (f *fetcherStub) Search(ctx context.Context, slug string, q bubble.Query) ([]record.Raw, error) {
	return f.searchResults, nil
}

type fixedSlugs struct{}

func (fixedSlugs) Resolve(ctx context.Context, category record.Category, force bool) (string, error) {
	return string(category), nil
}

func newHarness(records map[string]record.Raw) (*Controller, *transcript.Transcript, *fetcherStub) {
	f := &fetcherStub{records: records}
	store := active.NewStore(f, fixedSlugs{}, nil)
	tr := transcript.New("w1", nil, nil)
	return New(tr, store, nil), tr, f
}

func TestExtractRecordID(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"look at 1699999999999x123456789012345678 please", "1699999999999x123456789012345678"},
		{"update svc-2024-0001-aaaa-bbbb-cccc-dd now", "svc-2024-0001-aaaa-bbbb-cccc-dd"},
		{"antidisestablishmentarianism is a long word", ""},
		{"short id abc123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractRecordID(tt.text); got != tt.want {
			t.Errorf("ExtractRecordID(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestMentionedIDTriggersSyntheticPair(t *testing.T) {
	id := "1699999999999x123456789012345678"
	ctl, tr, _ := newHarness(map[string]record.Raw{
		id: {"_id": id, "title": "Landing pages"},
	})

	entry := tr.AppendUserText("what do you think of " + id + "?")
	if !ctl.HandleUserEntry(context.Background(), entry) {
		t.Fatal("expected a refresh")
	}

	entries := tr.Entries()
	// user text, synthetic invocation, synthetic result
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	inv, res := entries[1], entries[2]
	if inv.Kind != transcript.KindInvocation || !inv.Synthetic {
		t.Errorf("invocation = %+v", inv)
	}
	if inv.Arguments["serviceId"] != id {
		t.Errorf("target = %v", inv.Arguments)
	}
	if res.Kind != transcript.KindResult || res.InvocationID != inv.ID || !res.Success || !res.Synthetic {
		t.Errorf("result = %+v", res)
	}
}

func TestRefreshResultCarriesPackages(t *testing.T) {
	id := "1699999999999x123456789012345678"
	ctl, tr, f := newHarness(map[string]record.Raw{
		id: {"_id": id, "title": "Landing pages"},
	})
	f.searchResults = []record.Raw{
		{"_id": "p1", "name": "Basic", "price": 100.0, "service": id},
		{"_id": "p2", "name": "Pro", "price": 250.0, "service": id},
	}

	entry := tr.AppendUserText("look at " + id)
	if !ctl.HandleUserEntry(context.Background(), entry) {
		t.Fatal("expected a refresh")
	}

	res := tr.Entries()[2]
	payload, ok := res.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %v", res.Payload)
	}
	pkgs, ok := payload["packages"].([]map[string]any)
	if !ok || len(pkgs) != 2 {
		t.Fatalf("packages = %v", payload["packages"])
	}
	if pkgs[0]["id"] != "p1" || pkgs[1]["name"] != "Pro" {
		t.Errorf("packages = %v", pkgs)
	}
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	id := "1699999999999x123456789012345678"
	ctl, tr, f := newHarness(map[string]record.Raw{
		id: {"_id": id},
	})

	entry := tr.AppendUserText(id)
	ctl.HandleUserEntry(context.Background(), entry)
	if ctl.HandleUserEntry(context.Background(), entry) {
		t.Error("redelivered entry refreshed again")
	}
	if len(f.fetched) != 1 {
		t.Errorf("fetches = %v", f.fetched)
	}
	if got := len(tr.Entries()); got != 3 {
		t.Errorf("entries = %d, want exactly one synthetic pair", got)
	}
}

func TestFallsBackToActiveService(t *testing.T) {
	ctl, tr, f := newHarness(map[string]record.Raw{
		"1699999999999x000000000000000001": {"_id": "1699999999999x000000000000000001"},
	})
	ctl.records.SetService(context.Background(), record.Service{ID: "1699999999999x000000000000000001"})

	entry := tr.AppendUserText("make the title snappier")
	if !ctl.HandleUserEntry(context.Background(), entry) {
		t.Fatal("expected refetch of active service")
	}
	if len(f.fetched) == 0 || f.fetched[len(f.fetched)-1] != "1699999999999x000000000000000001" {
		t.Errorf("fetched = %v", f.fetched)
	}
}

func TestNoTargetNoSyntheticEntries(t *testing.T) {
	ctl, tr, f := newHarness(nil)
	entry := tr.AppendUserText("hello there")
	if ctl.HandleUserEntry(context.Background(), entry) {
		t.Error("nothing to refresh")
	}
	if len(f.fetched) != 0 {
		t.Errorf("fetches = %v", f.fetched)
	}
	if tr.Len() != 1 {
		t.Errorf("entries = %d", tr.Len())
	}
}

func TestFailedFetchStillCompletesPair(t *testing.T) {
	id := "1699999999999x999999999999999999"
	ctl, tr, _ := newHarness(nil) // fetch will fail

	entry := tr.AppendUserText("check " + id)
	if !ctl.HandleUserEntry(context.Background(), entry) {
		t.Fatal("expected an attempted refresh")
	}
	entries := tr.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	res := entries[2]
	if res.Success {
		t.Error("failed fetch must record an unsuccessful result")
	}
	if res.InvocationID != entries[1].ID {
		t.Error("result not linked to its invocation")
	}
}

func TestNonUserEntriesIgnored(t *testing.T) {
	ctl, tr, _ := newHarness(nil)
	entry := tr.AppendAssistantText("1699999999999x123456789012345678")
	if ctl.HandleUserEntry(context.Background(), entry) {
		t.Error("assistant entries never trigger refresh")
	}
}
