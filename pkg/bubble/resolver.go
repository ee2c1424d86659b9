package bubble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// SettingsStore persists resolved slugs across widget reloads.
type SettingsStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Prober is the slice of Client the resolver needs; it lets tests substitute
// a scripted store.
type Prober interface {
	Search(ctx context.Context, slug string, q Query) ([]record.Raw, error)
}

// Resolver discovers which collection slug the backend exposes for a record
// category. The platform has renamed collections before, so slugs are probed
// once, cached durably, and only re-probed on explicit force.
type Resolver struct {
	prober     Prober
	store      SettingsStore
	overrides  map[string]string
	candidates map[string][]string
	logger     *logging.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver. overrides pin categories unconditionally;
// candidates is the ordered probe list per category.
func NewResolver(prober Prober, store SettingsStore, overrides map[string]string, candidates map[string][]string, logger *logging.Logger) *Resolver {
	return &Resolver{
		prober:     prober,
		store:      store,
		overrides:  overrides,
		candidates: candidates,
		logger:     logger,
		cache:      make(map[string]string),
	}
}

func slugKey(category record.Category) string {
	return "slug." + string(category)
}

// Resolve returns the collection slug for a category. With force set, cached
// values are ignored and probing re-runs.
func (r *Resolver) Resolve(ctx context.Context, category record.Category, force bool) (string, error) {
	// An explicit override is trusted unconditionally.
	if slug, ok := r.overrides[string(category)]; ok && strings.TrimSpace(slug) != "" {
		r.remember(category, slug)
		return slug, nil
	}

	if !force {
		r.mu.Lock()
		cached := r.cache[string(category)]
		r.mu.Unlock()
		if cached != "" {
			return cached, nil
		}
		if r.store != nil {
			if persisted, err := r.store.GetSetting(slugKey(category)); err == nil && persisted != "" {
				r.remember(category, persisted)
				return persisted, nil
			}
		}
	}

	candidates := r.candidates[string(category)]
	if len(candidates) == 0 {
		candidates = []string{string(category)}
	}

	for _, candidate := range candidates {
		// Cheap existence check: a capped list query answers 200 for a real
		// collection and 404 otherwise, regardless of how many rows exist.
		_, err := r.prober.Search(ctx, candidate, Query{Limit: 1})
		if err == nil {
			r.logger.Info(logging.CategoryResolver, "slug_resolved", "", map[string]any{
				"category": category, "slug": candidate,
			})
			r.remember(category, candidate)
			return candidate, nil
		}
		r.logger.Debug(logging.CategoryResolver, "probe_missed", err.Error(), map[string]any{
			"category": category, "slug": candidate,
		})
	}

	return "", errors.New(errors.ErrCodeSlugUnresolved,
		fmt.Sprintf("no collection found for category %q (tried %s)", category, strings.Join(candidates, ", "))).
		WithUserMessage(fmt.Sprintf("The %s integration is not configured for this workspace.", category)).
		WithRemediation(fmt.Sprintf("set slugs.overrides.%s in config.yaml to the backend's collection name", category))
}

func (r *Resolver) remember(category record.Category, slug string) {
	r.mu.Lock()
	r.cache[string(category)] = slug
	r.mu.Unlock()
	if r.store != nil {
		if err := r.store.SetSetting(slugKey(category), slug); err != nil {
			r.logger.Warn(logging.CategoryResolver, "cache_write_failed", err.Error(), map[string]any{
				"category": category,
			})
		}
	}
}
