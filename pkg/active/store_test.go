package active

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// fakeFetcher serves canned records and can hold individual fetches until
// released, which lets tests control completion order.
type fakeFetcher struct {
	mu      sync.Mutex
	records map[string]record.Raw
	results map[string][]record.Raw
	gates   map[string]chan struct{}
	fetches []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		records: make(map[string]record.Raw),
		results: make(map[string][]record.Raw),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) gate(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakeFetcher) FetchByID(ctx context.Context, slug, id string) (record.Raw, error) {
	f.mu.Lock()
	gate := f.gates[id]
	f.fetches = append(f.fetches, id)
	raw, ok := f.records[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found")
	}
	return raw, nil
}

func (f *fakeFetcher) Search(ctx context.Context, slug string, q bubble.Query) ([]record.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[slug], nil
}

type staticSlugs struct{}

func (staticSlugs) Resolve(ctx context.Context, category record.Category, force bool) (string, error) {
	return string(category), nil
}

func newTestStore(f *fakeFetcher) *Store {
	return NewStore(f, staticSlugs{}, nil)
}

func TestSetServiceByIDFetchesAndReplaces(t *testing.T) {
	f := newFakeFetcher()
	f.records["svc_1"] = record.Raw{"_id": "svc_1", "title": "Web Development"}
	store := newTestStore(f)

	svc, err := store.SetServiceByID(context.Background(), "svc_1")
	if err != nil {
		t.Fatalf("SetServiceByID: %v", err)
	}
	if svc.Title != "Web Development" {
		t.Errorf("svc = %+v", svc)
	}

	snap := store.Snapshot()
	if snap.Service == nil || snap.Service.ID != "svc_1" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLastRequestedWinsRegardlessOfCompletionOrder(t *testing.T) {
	f := newFakeFetcher()
	f.records["svc_a"] = record.Raw{"_id": "svc_a", "title": "A"}
	f.records["svc_b"] = record.Raw{"_id": "svc_b", "title": "B"}
	gateA := f.gate("svc_a")
	store := newTestStore(f)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.SetServiceByID(context.Background(), "svc_a")
	}()

	// Give the A fetch time to pass its generation bump and park on the gate.
	time.Sleep(20 * time.Millisecond)

	// B is requested later but resolves first.
	if _, err := store.SetServiceByID(context.Background(), "svc_b"); err != nil {
		t.Fatal(err)
	}

	// Now let A's stale fetch resolve.
	close(gateA)
	wg.Wait()

	snap := store.Snapshot()
	if snap.Service == nil || snap.Service.ID != "svc_b" {
		t.Errorf("stale fetch overwrote newer record: %+v", snap.Service)
	}
}

func TestSameIDStillRefetches(t *testing.T) {
	f := newFakeFetcher()
	f.records["svc_1"] = record.Raw{"_id": "svc_1", "title": "v1"}
	store := newTestStore(f)

	store.SetServiceByID(context.Background(), "svc_1")
	f.mu.Lock()
	f.records["svc_1"] = record.Raw{"_id": "svc_1", "title": "v2"}
	f.mu.Unlock()
	store.SetServiceByID(context.Background(), "svc_1")

	if got := store.Snapshot().Service.Title; got != "v2" {
		t.Errorf("title = %q, want refetched v2", got)
	}

	f.mu.Lock()
	count := 0
	for _, id := range f.fetches {
		if id == "svc_1" {
			count++
		}
	}
	f.mu.Unlock()
	if count != 2 {
		t.Errorf("expected 2 fetches of svc_1, got %d", count)
	}
}

func TestPackageScatterGatherToleratesFailures(t *testing.T) {
	f := newFakeFetcher()
	f.records["svc_1"] = record.Raw{"_id": "svc_1", "Packages": []any{"p1", "p2", "p3"}}
	f.records["p1"] = record.Raw{"_id": "p1", "name": "Basic", "price": 50.0}
	// p2 intentionally missing
	f.records["p3"] = record.Raw{"_id": "p3", "name": "Pro", "price": 150.0}
	store := newTestStore(f)

	if _, err := store.SetServiceByID(context.Background(), "svc_1"); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	if len(snap.Packages) != 2 {
		t.Fatalf("packages = %+v, want the 2 that fetched", snap.Packages)
	}
	if snap.Packages[0].ID != "p1" || snap.Packages[1].ID != "p3" {
		t.Errorf("package order not preserved: %+v", snap.Packages)
	}
}

func TestPackagesViaReverseForeignKey(t *testing.T) {
	f := newFakeFetcher()
	f.records["svc_1"] = record.Raw{"_id": "svc_1"} // no package id list
	f.results["package"] = []record.Raw{
		{"_id": "p1", "service": "svc_1", "name": "Basic"},
	}
	store := newTestStore(f)

	store.SetServiceByID(context.Background(), "svc_1")
	snap := store.Snapshot()
	if len(snap.Packages) != 1 || snap.Packages[0].ServiceID != "svc_1" {
		t.Errorf("packages = %+v", snap.Packages)
	}
}

func TestMergeServiceFieldsOnlyForMatchingID(t *testing.T) {
	f := newFakeFetcher()
	f.records["svc_1"] = record.Raw{"_id": "svc_1", "title": "Old"}
	store := newTestStore(f)
	store.SetServiceByID(context.Background(), "svc_1")

	store.MergeServiceFields("svc_other", map[string]any{"title": "Hijacked"})
	if got := store.Snapshot().Service.Title; got != "Old" {
		t.Errorf("merge for wrong id applied: %q", got)
	}

	store.MergeServiceFields("svc_1", map[string]any{"title": "New"})
	if got := store.Snapshot().Service.Title; got != "New" {
		t.Errorf("title = %q", got)
	}
}

func TestMergeUserFieldsRespectsAllowList(t *testing.T) {
	store := newTestStore(newFakeFetcher())
	store.SetUser(record.User{ID: "u1", FirstName: "Ada"})

	store.MergeUserFields("u1", map[string]any{
		"bio":    "Systems engineer",
		"email":  "should-be-ignored@example.com",
		"skills": []string{"go"},
	})

	snap := store.Snapshot()
	if snap.User.Bio != "Systems engineer" {
		t.Errorf("bio = %q", snap.User.Bio)
	}
	if len(snap.User.Skills) != 1 || snap.User.Skills[0] != "go" {
		t.Errorf("skills = %v", snap.User.Skills)
	}
}

func TestRefreshServiceNoActiveIsNoop(t *testing.T) {
	f := newFakeFetcher()
	store := newTestStore(f)
	if err := store.RefreshService(context.Background()); err != nil {
		t.Errorf("RefreshService with no active service: %v", err)
	}
	if len(f.fetches) != 0 {
		t.Errorf("no fetch expected, got %v", f.fetches)
	}
}

func TestObserversSeeChanges(t *testing.T) {
	f := newFakeFetcher()
	f.records["svc_1"] = record.Raw{"_id": "svc_1"}
	store := newTestStore(f)

	var mu sync.Mutex
	var seen []string
	store.OnChange(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Service != nil {
			seen = append(seen, snap.Service.ID)
		}
	})

	store.SetServiceByID(context.Background(), "svc_1")
	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[0] != "svc_1" {
		t.Errorf("observer not notified: %v", seen)
	}
}

func TestMergePackageUpsert(t *testing.T) {
	store := newTestStore(newFakeFetcher())
	store.MergePackage(record.Package{ID: "p1", Name: "Basic"})
	store.MergePackage(record.Package{ID: "p1", Name: "Basic v2"})
	store.MergePackage(record.Package{ID: "p2", Name: "Pro"})

	snap := store.Snapshot()
	if len(snap.Packages) != 2 {
		t.Fatalf("packages = %+v", snap.Packages)
	}
	if snap.Packages[0].Name != "Basic v2" {
		t.Errorf("upsert did not replace: %+v", snap.Packages[0])
	}
}
