// Package active owns the widget's in-memory view of "what the user is
// looking at right now": at most one active service, its package list, and at
// most one active user. It is the single source of truth consumed by the
// context projector and the mutation operations.
package active

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// Fetcher is the slice of the object-store client the store depends on.
type Fetcher interface {
	FetchByID(ctx context.Context, slug, id string) (record.Raw, error)
	Search(ctx context.Context, slug string, q bubble.Query) ([]record.Raw, error)
}

// SlugResolver resolves a record category to its collection slug.
type SlugResolver interface {
	Resolve(ctx context.Context, category record.Category, force bool) (string, error)
}

// Snapshot is an immutable copy of the current active records.
type Snapshot struct {
	Service  *record.Service
	Packages []record.Package
	User     *record.User
}

// Store holds the active records for one widget instance.
type Store struct {
	fetcher Fetcher
	slugs   SlugResolver
	logger  *logging.Logger

	mu       sync.RWMutex
	service  *record.Service
	packages []record.Package
	user     *record.User

	// Generation counters guard against an in-flight stale fetch
	// overwriting a newer active record: each set-by-id bumps the counter
	// and only the holder of the latest generation may write its result.
	serviceGen atomic.Uint64
	userGen    atomic.Uint64

	obsMu     sync.RWMutex
	observers []func(Snapshot)
}

// NewStore creates an empty active-record store.
func NewStore(fetcher Fetcher, slugs SlugResolver, logger *logging.Logger) *Store {
	return &Store{
		fetcher: fetcher,
		slugs:   slugs,
		logger:  logger,
	}
}

// OnChange registers an observer invoked with a fresh snapshot after every
// state change.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{}
	if s.service != nil {
		svc := *s.service
		snap.Service = &svc
	}
	if len(s.packages) > 0 {
		snap.Packages = append([]record.Package(nil), s.packages...)
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// ActiveServiceID returns the current service id, or empty.
func (s *Store) ActiveServiceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.service == nil {
		return ""
	}
	return s.service.ID
}

// ActiveUserID returns the current user id, or empty.
func (s *Store) ActiveUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// SetService replaces the active service with a full record immediately and
// reloads its package list in the caller's goroutine.
func (s *Store) SetService(ctx context.Context, svc record.Service) {
	gen := s.serviceGen.Add(1)
	s.mu.Lock()
	s.service = &svc
	s.packages = nil
	s.mu.Unlock()
	s.notify()

	s.loadPackages(ctx, svc, gen)
}

// SetServiceByID fetches the service and replaces state when the fetch
// resolves, unless a newer set has superseded it in the meantime. Re-setting
// the id that is already active still refetches: a repeated mention is a
// re-sync signal, not a deduplication key.
func (s *Store) SetServiceByID(ctx context.Context, id string) (record.Service, error) {
	gen := s.serviceGen.Add(1)

	slug, err := s.slugs.Resolve(ctx, record.CategoryService, false)
	if err != nil {
		return record.Service{}, err
	}
	raw, err := s.fetcher.FetchByID(ctx, slug, id)
	if err != nil {
		return record.Service{}, err
	}
	svc := record.ServiceFromRaw(raw)
	if svc.ID == "" {
		svc.ID = id
	}

	if !s.commitService(svc, gen) {
		// A newer request won the race; report the fetched record anyway so
		// the caller can still render it as an operation result.
		return svc, nil
	}
	s.loadPackages(ctx, svc, gen)
	return svc, nil
}

// commitService writes the service if gen is still the latest generation.
func (s *Store) commitService(svc record.Service, gen uint64) bool {
	if s.serviceGen.Load() != gen {
		s.logger.Debug(logging.CategoryRecord, "stale_fetch_discarded", "", map[string]any{
			"service_id": svc.ID,
		})
		return false
	}
	s.mu.Lock()
	s.service = &svc
	s.packages = nil
	s.mu.Unlock()
	s.notify()
	return true
}

// loadPackages populates the package list for svc. Individual package fetch
// failures are tolerated; a failed id is simply excluded from the list.
func (s *Store) loadPackages(ctx context.Context, svc record.Service, gen uint64) {
	pkgs := s.fetchPackages(ctx, svc)
	if s.serviceGen.Load() != gen {
		return
	}
	s.mu.Lock()
	if s.service == nil || s.service.ID != svc.ID {
		s.mu.Unlock()
		return
	}
	s.packages = pkgs
	s.mu.Unlock()
	s.notify()
}

func (s *Store) fetchPackages(ctx context.Context, svc record.Service) []record.Package {
	slug, err := s.slugs.Resolve(ctx, record.CategoryPackage, false)
	if err != nil {
		s.logger.Warn(logging.CategoryRecord, "packages_unresolved", err.Error(), map[string]any{
			"service_id": svc.ID,
		})
		return nil
	}

	if len(svc.PackageIDs) > 0 {
		return s.fetchPackagesByID(ctx, slug, svc.PackageIDs)
	}

	// No id list on the service: the store models the relation as a reverse
	// foreign key on the package.
	raws, err := s.fetcher.Search(ctx, slug, bubble.Query{
		Constraints: []bubble.Constraint{
			{Key: "service", ConstraintType: bubble.ConstraintEquals, Value: svc.ID},
		},
		Limit: 50,
	})
	if err != nil {
		s.logger.Warn(logging.CategoryRecord, "package_search_failed", err.Error(), map[string]any{
			"service_id": svc.ID,
		})
		return nil
	}
	pkgs := make([]record.Package, 0, len(raws))
	for _, raw := range raws {
		pkgs = append(pkgs, record.PackageFromRaw(raw))
	}
	return pkgs
}

// fetchPackagesByID fetches many packages in parallel, joining the results
// and dropping individual failures.
func (s *Store) fetchPackagesByID(ctx context.Context, slug string, ids []string) []record.Package {
	results := make([]*record.Package, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			raw, err := s.fetcher.FetchByID(gctx, slug, id)
			if err != nil {
				s.logger.Debug(logging.CategoryRecord, "package_fetch_failed", err.Error(), map[string]any{
					"package_id": id,
				})
				return nil // independent failure domains: never abort the batch
			}
			pkg := record.PackageFromRaw(raw)
			if pkg.ID == "" {
				pkg.ID = id
			}
			results[i] = &pkg
			return nil
		})
	}
	_ = g.Wait()

	pkgs := make([]record.Package, 0, len(ids))
	for _, p := range results {
		if p != nil {
			pkgs = append(pkgs, *p)
		}
	}
	return pkgs
}

// SetUser replaces the active user with a full record immediately.
func (s *Store) SetUser(user record.User) {
	s.userGen.Add(1)
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	s.notify()
}

// SetUserByID fetches the user and replaces state with the same stale-fetch
// guard as SetServiceByID.
func (s *Store) SetUserByID(ctx context.Context, id string) (record.User, error) {
	gen := s.userGen.Add(1)

	slug, err := s.slugs.Resolve(ctx, record.CategoryUser, false)
	if err != nil {
		return record.User{}, err
	}
	raw, err := s.fetcher.FetchByID(ctx, slug, id)
	if err != nil {
		return record.User{}, err
	}
	user := record.UserFromRaw(raw)
	if user.ID == "" {
		user.ID = id
	}

	if s.userGen.Load() == gen {
		s.mu.Lock()
		s.user = &user
		s.mu.Unlock()
		s.notify()
	}
	return user, nil
}

// RefreshService re-fetches the current active service from the store of
// record. This is the reconciliation fetch issued after every successful
// mutation. No-op when nothing is active.
func (s *Store) RefreshService(ctx context.Context) error {
	id := s.ActiveServiceID()
	if id == "" {
		return nil
	}
	_, err := s.SetServiceByID(ctx, id)
	return err
}

// MergeServiceFields optimistically applies changed fields onto the active
// service so the UI and context reflect a successful write before the
// reconciliation fetch lands. Only called after the remote PATCH succeeded.
func (s *Store) MergeServiceFields(id string, fields map[string]any) {
	s.mu.Lock()
	if s.service == nil || s.service.ID != id {
		s.mu.Unlock()
		return
	}
	for key, value := range fields {
		switch key {
		case "title":
			if v, ok := value.(string); ok {
				s.service.Title = v
			}
		case "category":
			if v, ok := value.(string); ok {
				s.service.Category = v
			}
		case "description":
			if v, ok := value.(string); ok {
				s.service.Description = v
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// MergePackageFields optimistically applies changed fields onto one package
// in the active list.
func (s *Store) MergePackageFields(packageID string, fields map[string]any) {
	s.mu.Lock()
	merged := false
	for i := range s.packages {
		if s.packages[i].ID != packageID {
			continue
		}
		p := &s.packages[i]
		for key, value := range fields {
			switch key {
			case "name":
				if v, ok := value.(string); ok {
					p.Name = v
				}
			case "package_description":
				if v, ok := value.(string); ok {
					p.Description = v
				}
			case "price":
				if v, ok := value.(float64); ok {
					p.Price = v
				}
			case "delivery":
				if v, ok := value.(string); ok {
					p.Delivery = v
				}
			case "revisions":
				if v, ok := value.(string); ok {
					p.Revisions = v
				}
			case "included":
				if v, ok := value.([]string); ok {
					p.Included = v
				}
			}
		}
		merged = true
		break
	}
	s.mu.Unlock()
	if merged {
		s.notify()
	}
}

// MergeUserFields optimistically applies allow-listed fields onto the active
// user.
func (s *Store) MergeUserFields(id string, fields map[string]any) {
	s.mu.Lock()
	if s.user == nil || s.user.ID != id {
		s.mu.Unlock()
		return
	}
	for key, value := range fields {
		switch key {
		case "first_name":
			if v, ok := value.(string); ok {
				s.user.FirstName = v
			}
		case "last_name":
			if v, ok := value.(string); ok {
				s.user.LastName = v
			}
		case "bio":
			if v, ok := value.(string); ok {
				s.user.Bio = v
			}
		case "experience":
			if v, ok := value.(string); ok {
				s.user.Experience = v
			}
		case "tagline":
			if v, ok := value.(string); ok {
				s.user.Tagline = v
			}
		case "skills":
			if v, ok := value.([]string); ok {
				s.user.Skills = v
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// MergePackage inserts or replaces one package fetched out of band.
func (s *Store) MergePackage(pkg record.Package) {
	s.mu.Lock()
	replaced := false
	for i := range s.packages {
		if s.packages[i].ID == pkg.ID {
			s.packages[i] = pkg
			replaced = true
			break
		}
	}
	if !replaced {
		s.packages = append(s.packages, pkg)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	snap := s.Snapshot()
	s.obsMu.RLock()
	observers := append(make([]func(Snapshot), 0, len(s.observers)), s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(snap)
	}
}
