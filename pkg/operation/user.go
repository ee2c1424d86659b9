package operation

import (
	"context"
	"fmt"
	"strings"

	"github.com/lemonshq/lemonaide/pkg/bridge"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
)

const noActiveUser = "no user is selected; provide a userId or sign in first"

// getUserByIDOp fetches a user profile and makes it the active user. Only
// allow-listed profile fields ever leave this operation.
type getUserByIDOp struct {
	deps Deps
}

func (op *getUserByIDOp) Name() string { return "getUserById" }

func (op *getUserByIDOp) Description() string {
	return "Fetch the profile of the selected user (or an explicit userId)."
}

func (op *getUserByIDOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"userId": {Type: "string", Description: "The user id to fetch"},
		},
		Required: []string{},
	}
}

func (op *getUserByIDOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := op.deps.userTarget(params)
	if id == "" {
		return failure(errors.ErrCodePrecondition, noActiveUser), nil
	}
	user, err := op.deps.Records.SetUserByID(ctx, id)
	if err != nil {
		return failureFromErr(err), nil
	}
	return success(map[string]any{"user": userPayload(user)}), nil
}

// updateUserOp edits the active user's profile. The writable field set is a
// hard allow list; anything outside it is rejected before any network call so
// a confused model can never touch credentials or billing fields.
type updateUserOp struct {
	deps Deps
}

func (op *updateUserOp) Name() string { return "updateUser" }

func (op *updateUserOp) Description() string {
	return "Update the selected user's profile. Writable fields: firstName, lastName, bio, experience, tagline, skills."
}

func (op *updateUserOp) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			"userId":     {Type: "string", Description: "Target user id; defaults to the selected user"},
			"firstName":  {Type: "string", Description: "New first name"},
			"lastName":   {Type: "string", Description: "New last name"},
			"bio":        {Type: "string", Description: "New profile bio"},
			"experience": {Type: "string", Description: "New experience summary"},
			"tagline":    {Type: "string", Description: "New profile tagline"},
			"skills": {
				Type:        "array",
				Description: "New skill list; a comma or newline separated string is also accepted",
				Items:       &PropertySchema{Type: "string"},
			},
		},
		Required: []string{},
	}
}

// userFieldNames maps accepted argument names to store field names. The
// declared interface uses camelCase; the store's snake_case names remain
// accepted as aliases.
var userFieldNames = map[string]string{
	"firstName":  "first_name",
	"lastName":   "last_name",
	"first_name": "first_name",
	"last_name":  "last_name",
	"bio":        "bio",
	"experience": "experience",
	"tagline":    "tagline",
	"skills":     "skills",
}

func (op *updateUserOp) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id := op.deps.userTarget(params)
	if id == "" {
		return failure(errors.ErrCodePrecondition, noActiveUser), nil
	}

	fields := map[string]any{}
	for key, value := range params {
		if key == "userId" {
			continue
		}
		field, ok := userFieldNames[key]
		if !ok || !record.UserFieldAllowed(field) {
			return failure(errors.ErrCodeValidation,
				fmt.Sprintf("field %q is not writable; writable fields: %s",
					key, strings.Join(record.UserFieldAllowList, ", "))), nil
		}
		if field == "skills" {
			if v := stringListParam(params, key); v != nil {
				fields[field] = v
			}
			continue
		}
		if v, ok := value.(string); ok && strings.TrimSpace(v) != "" {
			fields[field] = strings.TrimSpace(v)
		}
	}
	if len(fields) == 0 {
		return failure(errors.ErrCodeValidation, "no profile fields to update"), nil
	}

	slug, err := op.deps.Slugs.Resolve(ctx, record.CategoryUser, false)
	if err != nil {
		return failureFromErr(err), nil
	}
	if err := op.deps.Store.Patch(ctx, slug, id, fields); err != nil {
		return failureFromErr(err), nil
	}

	op.deps.Records.MergeUserFields(id, fields)
	if _, err := op.deps.Records.SetUserByID(ctx, id); err != nil {
		op.deps.Logger.Warn(logging.CategoryOperation, "reconcile_failed", err.Error(), map[string]any{
			"user_id": id,
		})
	}

	payload := map[string]any{"userId": id}
	for k, v := range fields {
		payload[k] = v
	}
	op.deps.notify(bridge.EventUserUpdated, payload)
	return success(payload), nil
}
