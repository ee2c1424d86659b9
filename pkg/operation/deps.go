package operation

import (
	"context"

	"github.com/lemonshq/lemonaide/pkg/active"
	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
	"github.com/lemonshq/lemonaide/pkg/search"
)

// ObjectStore is the slice of the store client operations depend on.
type ObjectStore interface {
	FetchByID(ctx context.Context, slug, id string) (record.Raw, error)
	Search(ctx context.Context, slug string, q bubble.Query) ([]record.Raw, error)
	Patch(ctx context.Context, slug, id string, fields map[string]any) error
}

// SlugResolver resolves record categories to collection slugs.
type SlugResolver interface {
	Resolve(ctx context.Context, category record.Category, force bool) (string, error)
}

// Searcher queries the hosted search index.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]record.Service, error)
}

// Notifier delivers outbound host-bridge events. Delivery is fire-and-forget;
// a lost notification never fails the operation that produced it.
type Notifier interface {
	Notify(eventType string, payload map[string]any)
}

// Deps bundles the collaborators shared by all builtin operations.
type Deps struct {
	Records *active.Store
	Store   ObjectStore
	Slugs   SlugResolver
	Search  Searcher
	Notify  Notifier
	Logger  *logging.Logger
}

func (d Deps) notify(eventType string, payload map[string]any) {
	if d.Notify == nil {
		return
	}
	d.Notify.Notify(eventType, payload)
}

// serviceTarget resolves the service an operation acts on: an explicit
// serviceId argument wins, otherwise the active service. Empty means the
// precondition failed and no network call may be made.
func (d Deps) serviceTarget(params map[string]any) string {
	if id := stringParam(params, "serviceId"); id != "" {
		return id
	}
	return d.Records.ActiveServiceID()
}

func (d Deps) userTarget(params map[string]any) string {
	if id := stringParam(params, "userId"); id != "" {
		return id
	}
	return d.Records.ActiveUserID()
}

func servicePayload(svc record.Service) map[string]any {
	return map[string]any{
		"id":            svc.ID,
		"title":         svc.Title,
		"description":   svc.Description,
		"category":      svc.Category,
		"price":         svc.Price,
		"delivery_days": svc.DeliveryDays,
	}
}

func packagePayload(pkg record.Package) map[string]any {
	return map[string]any{
		"id":          pkg.ID,
		"service_id":  pkg.ServiceID,
		"name":        pkg.Name,
		"description": pkg.Description,
		"price":       pkg.Price,
		"delivery":    pkg.Delivery,
		"revisions":   pkg.Revisions,
		"included":    pkg.Included,
	}
}

func userPayload(u record.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"bio":        u.Bio,
		"experience": u.Experience,
		"tagline":    u.Tagline,
		"skills":     u.Skills,
	}
}
