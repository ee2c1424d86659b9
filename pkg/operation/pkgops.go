package operation

import (
	"context"

	"github.com/lemonshq/lemonaide/pkg/bridge"
	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// listPackagesForServiceOp returns the package tiers of a service.
type listPackagesForServiceOp struct {
	deps Deps
}

func (op *listPackagesForServiceOp) Name() string { return "listPackagesForService" }

func (op *listPackagesForServiceOp) Description() string {
	return "List the package tiers of the selected service (or an explicit serviceId)."
}

func (op *listPackagesForServiceOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"serviceId": {Type: "string", Description: "Target service id; defaults to the selected service"},
			"limit":     {Type: "integer", Description: "Maximum number of packages to return"},
		},
		Required: []string{},
	}
}

func (op *listPackagesForServiceOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := op.deps.serviceTarget(params)
	if id == "" {
		return failure(errors.ErrCodePrecondition, noActiveService), nil
	}
	limit := 0
	if v, ok := numberParam(params, "limit"); ok && v > 0 {
		limit = int(v)
	}

	// The active snapshot already carries the selected service's packages.
	if snap := op.deps.Records.Snapshot(); snap.Service != nil && snap.Service.ID == id && len(snap.Packages) > 0 {
		return packageListResult(id, capPackages(snap.Packages, limit)), nil
	}

	pkgs, err := op.fetchPackages(ctx, id)
	if err != nil {
		return failureFromErr(err), nil
	}
	return packageListResult(id, capPackages(pkgs, limit)), nil
}

func capPackages(pkgs []record.Package, limit int) []record.Package {
	if limit > 0 && len(pkgs) > limit {
		return pkgs[:limit]
	}
	return pkgs
}

func packageListResult(serviceID string, pkgs []record.Package) *Result {
	payloads := make([]map[string]any, 0, len(pkgs))
	for _, pkg := range pkgs {
		payloads = append(payloads, packagePayload(pkg))
	}
	return success(map[string]any{
		"service_id": serviceID,
		"packages":   payloads,
		"count":      len(payloads),
	})
}

func (op *listPackagesForServiceOp) fetchPackages(ctx context.Context, serviceID string) ([]record.Package, error) {
	pkgSlug, err := op.deps.Slugs.Resolve(ctx, record.CategoryPackage, false)
	if err != nil {
		return nil, err
	}
	svcSlug, err := op.deps.Slugs.Resolve(ctx, record.CategoryService, false)
	if err != nil {
		return nil, err
	}

	raw, err := op.deps.Store.FetchByID(ctx, svcSlug, serviceID)
	if err != nil {
		return nil, err
	}
	svc := record.ServiceFromRaw(raw)

	if len(svc.PackageIDs) > 0 {
		pkgs := make([]record.Package, 0, len(svc.PackageIDs))
		for _, pkgID := range svc.PackageIDs {
			pkgRaw, err := op.deps.Store.FetchByID(ctx, pkgSlug, pkgID)
			if err != nil {
				continue
			}
			pkgs = append(pkgs, record.PackageFromRaw(pkgRaw))
		}
		return pkgs, nil
	}

	raws, err := op.deps.Store.Search(ctx, pkgSlug, bubble.Query{
		Constraints: []bubble.Constraint{
			{Key: "service", ConstraintType: bubble.ConstraintEquals, Value: serviceID},
		},
		Limit: 50,
	})
	if err != nil {
		return nil, err
	}
	pkgs := make([]record.Package, 0, len(raws))
	for _, r := range raws {
		pkgs = append(pkgs, record.PackageFromRaw(r))
	}
	return pkgs, nil
}

// getPackageByIDOp fetches one package tier.
type getPackageByIDOp struct {
	deps Deps
}

func (op *getPackageByIDOp) Name() string { return "getPackageById" }

func (op *getPackageByIDOp) Description() string {
	return "Fetch a single package tier by id."
}

func (op *getPackageByIDOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"packageId": {Type: "string", Description: "The package id to fetch"},
		},
		Required: []string{"packageId"},
	}
}

func (op *getPackageByIDOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := stringParam(params, "packageId")
	if id == "" {
		return failure(errors.ErrCodePrecondition, "packageId is required"), nil
	}
	slug, err := op.deps.Slugs.Resolve(ctx, record.CategoryPackage, false)
	if err != nil {
		return failureFromErr(err), nil
	}
	raw, err := op.deps.Store.FetchByID(ctx, slug, id)
	if err != nil {
		return failureFromErr(err), nil
	}
	pkg := record.PackageFromRaw(raw)
	if pkg.ID == "" {
		pkg.ID = id
	}

	// Keep the active package list current when this tier belongs to the
	// selected service.
	if active := op.deps.Records.ActiveServiceID(); active != "" && pkg.ServiceID == active {
		op.deps.Records.MergePackage(pkg)
	}
	return success(map[string]any{"package": packagePayload(pkg)}), nil
}

// updatePackageOp edits fields of one package tier.
type updatePackageOp struct {
	deps Deps
}

func (op *updatePackageOp) Name() string { return "updatePackage" }

func (op *updatePackageOp) Description() string {
	return "Update fields of a package tier: name, description, price, delivery, revisions, or included items."
}

func (op *updatePackageOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"packageId":           {Type: "string", Description: "The package id to update"},
			"name":                {Type: "string", Description: "New tier name"},
			"package_description": {Type: "string", Description: "New tier description"},
			"price":               {Type: "number", Description: "New price"},
			"delivery":            {Type: "string", Description: "New delivery window, e.g. \"3 days\""},
			"revisions":           {Type: "string", Description: "New revision allowance"},
			"included": {
				Type:        "array",
				Description: "New list of included items; a comma or newline separated string is also accepted",
				Items:       &PropertySchema{Type: "string"},
			},
		},
		Required: []string{"packageId"},
	}
}

func (op *updatePackageOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := stringParam(params, "packageId")
	if id == "" {
		return failure(errors.ErrCodePrecondition, "packageId is required"), nil
	}

	fields := map[string]any{}
	for _, key := range []string{"name", "package_description", "delivery", "revisions"} {
		if v := stringParam(params, key); v != "" {
			fields[key] = v
		}
	}
	if v, ok := numberParam(params, "price"); ok {
		if v < 0 {
			return failure(errors.ErrCodeValidation, "price must not be negative"), nil
		}
		fields["price"] = v
	}
	if v := stringListParam(params, "included"); v != nil {
		fields["included"] = v
	}
	if len(fields) == 0 {
		return failure(errors.ErrCodeValidation, "no package fields to update"), nil
	}

	slug, err := op.deps.Slugs.Resolve(ctx, record.CategoryPackage, false)
	if err != nil {
		return failureFromErr(err), nil
	}
	if err := op.deps.Store.Patch(ctx, slug, id, fields); err != nil {
		return failureFromErr(err), nil
	}

	op.deps.Records.MergePackageFields(id, fields)
	serviceID := ""
	if raw, err := op.deps.Store.FetchByID(ctx, slug, id); err == nil {
		pkg := record.PackageFromRaw(raw)
		if pkg.ID == "" {
			pkg.ID = id
		}
		serviceID = pkg.ServiceID
		op.deps.Records.MergePackage(pkg)
	}

	// A package edit can change the service's derived fields server side, so
	// the owning service gets a full refresh, package list included.
	if active := op.deps.Records.ActiveServiceID(); active != "" && op.belongsToActive(id, serviceID, active) {
		if err := op.deps.Records.RefreshService(ctx); err != nil {
			op.deps.Logger.Warn(logging.CategoryOperation, "reconcile_failed", err.Error(), map[string]any{
				"package_id": id,
			})
		}
	}

	payload := map[string]any{"packageId": id}
	for k, v := range fields {
		payload[k] = v
	}
	op.deps.notify(bridge.EventPackageUpdated, payload)
	return success(payload), nil
}

// belongsToActive reports whether the edited package is a tier of the active
// service. When the refetch failed, the active package list decides.
func (op *updatePackageOp) belongsToActive(pkgID, serviceID, active string) bool {
	if serviceID != "" {
		return serviceID == active
	}
	for _, p := range op.deps.Records.Snapshot().Packages {
		if p.ID == pkgID {
			return true
		}
	}
	return false
}
