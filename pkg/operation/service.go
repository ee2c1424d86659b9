package operation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lemonshq/lemonaide/pkg/bridge"
	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
	"github.com/lemonshq/lemonaide/pkg/search"
)

const noActiveService = "no service is selected; provide a serviceId or select a service first"

// searchServicesOp queries listings by free text with optional category,
// price and delivery constraints. Prefers the hosted search index and falls
// back to constrained object-store queries when no index is configured.
type searchServicesOp struct {
	deps Deps
}

func (op *searchServicesOp) Name() string { return "searchServices" }

func (op *searchServicesOp) Description() string {
	return "Search marketplace services by keyword, optionally filtered by category, maximum price, and maximum delivery days."
}

func (op *searchServicesOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"query": {Type: "string", Description: "Free-text search terms"},
			"category": {
				Type:        "string",
				Description: "Restrict results to one category",
				Enum:        record.AllowedCategories,
			},
			"maxPrice":        {Type: "number", Description: "Only include services at or below this price"},
			"maxDeliveryDays": {Type: "number", Description: "Only include services deliverable within this many days"},
			"limit":           {Type: "integer", Description: "Maximum number of results", Default: 10},
			"page":            {Type: "integer", Description: "Result page, starting at 1"},
		},
		Required: []string{},
	}
}

func (op *searchServicesOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	query := strings.TrimSpace(stringParam(params, "query"))

	category := ""
	if raw := stringParam(params, "category"); raw != "" {
		canonical, ok := record.NormalizeCategory(raw)
		if !ok {
			return failure(errors.ErrCodeValidation,
				fmt.Sprintf("unknown category %q; allowed categories: %s", raw, record.AllowedCategoryList())), nil
		}
		category = canonical
	}

	limit := 10
	if v, ok := numberParam(params, "limit"); ok && v > 0 {
		limit = int(v)
	}
	page := 1
	if v, ok := numberParam(params, "page"); ok && v > 1 {
		page = int(v)
	}
	maxPrice, hasMaxPrice := numberParam(params, "maxPrice")
	maxDelivery, hasMaxDelivery := numberParam(params, "maxDeliveryDays")

	services, err := op.search(ctx, query, category, limit, page, maxPrice, hasMaxPrice)
	if err != nil {
		return failureFromErr(err), nil
	}

	filtered := services[:0]
	for _, svc := range services {
		if hasMaxPrice && svc.Price > maxPrice {
			continue
		}
		if hasMaxDelivery && float64(svc.DeliveryDays) > maxDelivery {
			continue
		}
		filtered = append(filtered, svc)
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Price < filtered[j].Price })
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	results := make([]map[string]any, 0, len(filtered))
	for _, svc := range filtered {
		results = append(results, servicePayload(svc))
	}

	criteria := map[string]any{"query": query}
	if category != "" {
		criteria["category"] = category
	}
	if page > 1 {
		criteria["page"] = page
	}
	if hasMaxPrice {
		criteria["max_price"] = maxPrice
	}
	if hasMaxDelivery {
		criteria["max_delivery_days"] = maxDelivery
	}
	return success(map[string]any{
		"services": results,
		"count":    len(results),
		"criteria": criteria,
	}), nil
}

func (op *searchServicesOp) search(ctx context.Context, query, category string, limit, page int, maxPrice float64, hasMaxPrice bool) ([]record.Service, error) {
	if op.deps.Search != nil {
		services, err := op.deps.Search.Search(ctx, search.Request{
			Query:    query,
			Category: category,
			Limit:    limit,
			Page:     page,
		})
		if err == nil {
			return services, nil
		}
		if !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
			return nil, err
		}
		op.deps.Logger.Debug(logging.CategorySearch, "index_unconfigured_fallback", "", nil)
	}

	slug, err := op.deps.Slugs.Resolve(ctx, record.CategoryService, false)
	if err != nil {
		return nil, err
	}
	q := bubble.Query{
		Limit:     limit,
		SortField: "price",
	}
	if query != "" {
		q.Constraints = append(q.Constraints, bubble.Constraint{
			Key: "title", ConstraintType: bubble.ConstraintTextContains, Value: query,
		})
	}
	if page > 1 {
		q.Cursor = (page - 1) * limit
	}
	if category != "" {
		q.Constraints = append(q.Constraints, bubble.Constraint{
			Key: "category", ConstraintType: bubble.ConstraintEquals, Value: category,
		})
	}
	if hasMaxPrice {
		q.Constraints = append(q.Constraints, bubble.Constraint{
			Key: "price", ConstraintType: bubble.ConstraintLessThan, Value: maxPrice,
		})
	}
	raws, err := op.deps.Store.Search(ctx, slug, q)
	if err != nil {
		return nil, err
	}
	services := make([]record.Service, 0, len(raws))
	for _, raw := range raws {
		svc := record.ServiceFromRaw(raw)
		if svc.ID == "" {
			continue
		}
		services = append(services, svc)
	}
	return services, nil
}

// getServiceByIDOp fetches one service and makes it the active record.
type getServiceByIDOp struct {
	deps Deps
}

func (op *getServiceByIDOp) Name() string { return "getServiceById" }

func (op *getServiceByIDOp) Description() string {
	return "Fetch a service by id and load it as the currently selected service. Uses the selected service when serviceId is omitted."
}

func (op *getServiceByIDOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"serviceId": {Type: "string", Description: "The service id to fetch"},
		},
		Required: []string{},
	}
}

func (op *getServiceByIDOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := op.deps.serviceTarget(params)
	if id == "" {
		return failure(errors.ErrCodePrecondition, noActiveService), nil
	}
	svc, err := op.deps.Records.SetServiceByID(ctx, id)
	if err != nil {
		return failureFromErr(err), nil
	}
	return success(map[string]any{"service": servicePayload(svc)}), nil
}

// serviceMutation is the shared write path for the service field updates:
// validate, PATCH, optimistic merge, reconciliation fetch, host notify.
func (d Deps) serviceMutation(ctx context.Context, id string, fields map[string]any, event string) (*Result, error) {
	slug, err := d.Slugs.Resolve(ctx, record.CategoryService, false)
	if err != nil {
		return failureFromErr(err), nil
	}
	if err := d.Store.Patch(ctx, slug, id, fields); err != nil {
		// Failed write: local state stays untouched.
		return failureFromErr(err), nil
	}

	d.Records.MergeServiceFields(id, fields)
	if err := d.Records.RefreshService(ctx); err != nil {
		d.Logger.Warn(logging.CategoryOperation, "reconcile_failed", err.Error(), map[string]any{
			"service_id": id,
		})
	}

	payload := map[string]any{"serviceId": id}
	for k, v := range fields {
		payload[k] = v
	}
	d.notify(event, payload)
	return success(payload), nil
}

// updateServiceTitleOp renames the target service.
type updateServiceTitleOp struct {
	deps Deps
}

func (op *updateServiceTitleOp) Name() string { return "updateServiceTitle" }

func (op *updateServiceTitleOp) Description() string {
	return "Update the title of the selected service (or an explicit serviceId). Titles are limited to 80 characters."
}

func (op *updateServiceTitleOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"newTitle":  {Type: "string", Description: "The new service title"},
			"serviceId": {Type: "string", Description: "Target service id; defaults to the selected service"},
		},
		Required: []string{"newTitle"},
	}
}

func (op *updateServiceTitleOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := op.deps.serviceTarget(params)
	if id == "" {
		return failure(errors.ErrCodePrecondition, noActiveService), nil
	}
	title := strings.TrimSpace(firstStringParam(params, "newTitle", "title"))
	if title == "" {
		return failure(errors.ErrCodeValidation, "title must not be empty"), nil
	}
	if len([]rune(title)) > record.MaxTitleLength {
		return failure(errors.ErrCodeValidation,
			fmt.Sprintf("title exceeds %d characters", record.MaxTitleLength)), nil
	}
	return op.deps.serviceMutation(ctx, id, map[string]any{"title": title}, bridge.EventServiceUpdated)
}

// updateServiceCategoryOp recategorizes the target service. Input is matched
// case-insensitively against the allowed set and the canonical label is what
// gets written.
type updateServiceCategoryOp struct {
	deps Deps
}

func (op *updateServiceCategoryOp) Name() string { return "updateServiceCategory" }

func (op *updateServiceCategoryOp) Description() string {
	return "Change the category of the selected service. The category must be one of the marketplace's allowed categories."
}

func (op *updateServiceCategoryOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"newCategory": {
				Type:        "string",
				Description: "The new category",
				Enum:        record.AllowedCategories,
			},
			"serviceId": {Type: "string", Description: "Target service id; defaults to the selected service"},
		},
		Required: []string{"newCategory"},
	}
}

func (op *updateServiceCategoryOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := op.deps.serviceTarget(params)
	if id == "" {
		return failure(errors.ErrCodePrecondition, noActiveService), nil
	}
	requested := firstStringParam(params, "newCategory", "category")
	canonical, ok := record.NormalizeCategory(requested)
	if !ok {
		return failure(errors.ErrCodeValidation,
			fmt.Sprintf("unknown category %q; allowed categories: %s",
				requested, record.AllowedCategoryList())), nil
	}
	return op.deps.serviceMutation(ctx, id, map[string]any{"category": canonical}, bridge.EventServiceCategoryUpdated)
}

// updateServiceDescriptionOp rewrites the service description.
type updateServiceDescriptionOp struct {
	deps Deps
}

func (op *updateServiceDescriptionOp) Name() string { return "updateServiceDescription" }

func (op *updateServiceDescriptionOp) Description() string {
	return "Update the long description of the selected service (or an explicit serviceId)."
}

func (op *updateServiceDescriptionOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"newDescription": {Type: "string", Description: "The new description"},
			"serviceId":      {Type: "string", Description: "Target service id; defaults to the selected service"},
		},
		Required: []string{"newDescription"},
	}
}

func (op *updateServiceDescriptionOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := op.deps.serviceTarget(params)
	if id == "" {
		return failure(errors.ErrCodePrecondition, noActiveService), nil
	}
	description := strings.TrimSpace(firstStringParam(params, "newDescription", "description"))
	if description == "" {
		return failure(errors.ErrCodeValidation, "description must not be empty"), nil
	}
	return op.deps.serviceMutation(ctx, id, map[string]any{"description": description}, bridge.EventServiceDescriptionUpdated)
}
