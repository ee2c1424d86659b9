// Package operation declares the model-invocable operations: retrieval and
// mutation of marketplace records. Operations are registered in a Registry
// and executed through a middleware chain; failures are always structured
// results, never panics.
package operation

import (
	"context"

	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/record"
)

// ParameterSchema declares the parameters an operation accepts, in JSON
// schema shape so it can be handed to a model verbatim.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single parameter.
type PropertySchema struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Default     any             `json:"default,omitempty"`
	Items       *PropertySchema `json:"items,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
}

// Result is the outcome of one operation execution.
type Result struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
}

// Operation is one model-invocable capability.
type Operation interface {
	Name() string
	Description() string
	Parameters() ParameterSchema
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// ToFunctionDeclaration converts an operation to the function-calling wire
// shape expected by model providers.
func ToFunctionDeclaration(op Operation) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        op.Name(),
			"description": op.Description(),
			"parameters":  op.Parameters(),
		},
	}
}

func success(data map[string]any) *Result {
	return &Result{Success: true, Data: data}
}

func failure(code errors.ErrorCode, msg string) *Result {
	return &Result{Success: false, Error: msg, ErrorCode: string(code)}
}

// failureFromErr folds a structured error into a result, preferring the
// user-facing message when one is attached.
func failureFromErr(err error) *Result {
	if re, ok := err.(*errors.Error); ok {
		msg := re.Message
		if re.UserMessage != "" {
			msg = re.UserMessage
		}
		return &Result{Success: false, Error: msg, ErrorCode: string(re.Code)}
	}
	return &Result{Success: false, Error: err.Error(), ErrorCode: string(errors.ErrCodeInternal)}
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func numberParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// stringListParam reads a list-valued argument. Models hand these over either
// as a native list or as one comma/newline separated string; both are
// normalized to trimmed entries.
func stringListParam(params map[string]any, key string) []string {
	return record.SplitList(params[key])
}

// firstStringParam returns the first non-empty string among the given keys.
// Used where an argument kept an older wire name alive as an alias.
func firstStringParam(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringParam(params, key); v != "" {
			return v
		}
	}
	return ""
}
