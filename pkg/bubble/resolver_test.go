package bubble

import (
	"context"
	"testing"

	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/record"
)

type scriptedProber struct {
	exists map[string]bool
	probes []string
}

func (p *scriptedProber) Search(ctx context.Context, slug string, q Query) ([]record.Raw, error) {
	p.probes = append(p.probes, slug)
	if p.exists[slug] {
		return nil, nil
	}
	return nil, errors.New(errors.ErrCodeTransport, "store returned 404")
}

type memSettings struct {
	values map[string]string
}

func (m *memSettings) GetSetting(key string) (string, error) {
	return m.values[key], nil
}

func (m *memSettings) SetSetting(key, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func TestResolveProbesInOrder(t *testing.T) {
	prober := &scriptedProber{exists: map[string]bool{"service_package": true}}
	settings := &memSettings{}
	r := NewResolver(prober, settings, nil, map[string][]string{
		"package": {"package", "packages", "service_package"},
	}, nil)

	slug, err := r.Resolve(context.Background(), record.CategoryPackage, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if slug != "service_package" {
		t.Errorf("slug = %q", slug)
	}
	if len(prober.probes) != 3 {
		t.Errorf("probes = %v", prober.probes)
	}
	if settings.values["slug.package"] != "service_package" {
		t.Errorf("resolution not persisted: %v", settings.values)
	}
}

func TestResolveUsesDurableCache(t *testing.T) {
	prober := &scriptedProber{}
	settings := &memSettings{values: map[string]string{"slug.package": "packages"}}
	r := NewResolver(prober, settings, nil, map[string][]string{"package": {"package"}}, nil)

	slug, err := r.Resolve(context.Background(), record.CategoryPackage, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if slug != "packages" {
		t.Errorf("slug = %q", slug)
	}
	if len(prober.probes) != 0 {
		t.Errorf("cached resolution should not probe, probes = %v", prober.probes)
	}
}

func TestResolveForceReprobes(t *testing.T) {
	prober := &scriptedProber{exists: map[string]bool{"package": true}}
	settings := &memSettings{values: map[string]string{"slug.package": "stale_slug"}}
	r := NewResolver(prober, settings, nil, map[string][]string{"package": {"package"}}, nil)

	slug, err := r.Resolve(context.Background(), record.CategoryPackage, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if slug != "package" {
		t.Errorf("slug = %q", slug)
	}
	if settings.values["slug.package"] != "package" {
		t.Errorf("forced resolution should replace cache: %v", settings.values)
	}
}

func TestResolveOverrideWins(t *testing.T) {
	prober := &scriptedProber{}
	r := NewResolver(prober, &memSettings{}, map[string]string{"package": "custom_pkg"}, nil, nil)

	slug, err := r.Resolve(context.Background(), record.CategoryPackage, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if slug != "custom_pkg" {
		t.Errorf("slug = %q", slug)
	}
	if len(prober.probes) != 0 {
		t.Error("override should skip probing")
	}
}

func TestResolveExhaustedCandidates(t *testing.T) {
	prober := &scriptedProber{}
	r := NewResolver(prober, &memSettings{}, nil, map[string][]string{
		"package": {"package", "packages"},
	}, nil)

	_, err := r.Resolve(context.Background(), record.CategoryPackage, false)
	if !errors.IsCode(err, errors.ErrCodeSlugUnresolved) {
		t.Fatalf("expected SLUG_UNRESOLVED, got %v", err)
	}
	re := err.(*errors.Error)
	if re.UserMessage == "" {
		t.Error("unresolved slug should carry an operator-facing message")
	}
}

func TestResolveProcessCacheAvoidsSecondProbe(t *testing.T) {
	prober := &scriptedProber{exists: map[string]bool{"user": true}}
	r := NewResolver(prober, &memSettings{}, nil, map[string][]string{"user": {"user"}}, nil)

	if _, err := r.Resolve(context.Background(), record.CategoryUser, false); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(context.Background(), record.CategoryUser, false); err != nil {
		t.Fatal(err)
	}
	if len(prober.probes) != 1 {
		t.Errorf("expected single probe, got %v", prober.probes)
	}
}
