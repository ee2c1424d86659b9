package operation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry manages the available operations and the middleware chain they
// execute through.
type Registry struct {
	mu          sync.RWMutex
	operations  map[string]Operation
	middlewares []Middleware
	executor    Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{operations: make(map[string]Operation)}
	r.rebuildExecutor()
	return r
}

// NewBuiltinRegistry creates a registry with the full builtin operation set
// wired to deps.
func NewBuiltinRegistry(deps Deps) *Registry {
	r := NewRegistry()
	for _, op := range Builtins(deps) {
		r.Register(op)
	}
	return r
}

// Builtins returns every builtin operation bound to deps.
func Builtins(deps Deps) []Operation {
	return []Operation{
		&searchServicesOp{deps: deps},
		&getServiceByIDOp{deps: deps},
		&updateServiceTitleOp{deps: deps},
		&updateServiceCategoryOp{deps: deps},
		&updateServiceDescriptionOp{deps: deps},
		&listPackagesForServiceOp{deps: deps},
		&getPackageByIDOp{deps: deps},
		&updatePackageOp{deps: deps},
		&getUserByIDOp{deps: deps},
		&updateUserOp{deps: deps},
	}
}

// Register adds or replaces an operation.
func (r *Registry) Register(op Operation) {
	r.mu.Lock()
	r.operations[op.Name()] = op
	r.mu.Unlock()
}

// Use appends middleware and rebuilds the executor.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	r.middlewares = append(r.middlewares, middlewares...)
	r.mu.Unlock()
	r.rebuildExecutor()
}

func (r *Registry) rebuildExecutor() {
	r.mu.Lock()
	defer r.mu.Unlock()
	base := func(ctx *ExecutionContext) (*Result, error) {
		return ctx.Operation.Execute(ctx.Context, ctx.Params)
	}
	r.executor = Chain(r.middlewares...)(base)
}

// Get returns the named operation.
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operations[name]
	return op, ok
}

// List returns all operations sorted by name.
func (r *Registry) List() []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	ops := make([]Operation, 0, len(names))
	for _, name := range names {
		ops = append(ops, r.operations[name])
	}
	return ops
}

// Declarations returns the function-calling declarations for every
// registered operation, sorted by name.
func (r *Registry) Declarations() []map[string]any {
	ops := r.List()
	decls := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		decls = append(decls, ToFunctionDeclaration(op))
	}
	return decls
}

// Execute runs the named operation through the middleware chain. An unknown
// name is a structured failure, not an error: the model sees it as a normal
// unsuccessful result.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) *Result {
	r.mu.RLock()
	op, ok := r.operations[name]
	executor := r.executor
	r.mu.RUnlock()
	if !ok {
		return &Result{Success: false, Error: fmt.Sprintf("unknown operation %q", name)}
	}
	if params == nil {
		params = map[string]any{}
	}

	execCtx := &ExecutionContext{
		Context:       ctx,
		OperationName: name,
		Operation:     op,
		CallID:        uuid.NewString(),
		Params:        params,
		StartTime:     time.Now(),
	}
	res, err := executor(execCtx)
	if err != nil {
		return failureFromErr(err)
	}
	if res == nil {
		res = &Result{Success: false, Error: "operation returned no result"}
	}
	return res
}
