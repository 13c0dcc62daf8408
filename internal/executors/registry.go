package executors

import (
	"sort"
	"sync"

	"github.com/rendis/conduit/pkg/schema"
)

// Registry is the thread-safe mapping from node type to executor.
type Registry struct {
	mu    sync.RWMutex
	execs map[schema.NodeType]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		execs: make(map[schema.NodeType]Executor),
	}
}

// Register adds an executor. Returns an error on duplicate node type.
func (r *Registry) Register(exec Executor) error {
	if exec == nil {
		return schema.NewError(schema.ErrCodeValidation, "executor is nil")
	}
	t := exec.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "executor node type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.execs[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "executor for node type %q already registered", t)
	}

	r.execs[t] = exec
	return nil
}

// Get retrieves the executor for a node type.
func (r *Registry) Get(t schema.NodeType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.execs[t]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownType, "no executor registered for node type %q", t)
	}
	return exec, nil
}

// Has checks if an executor is registered for a node type.
func (r *Registry) Has(t schema.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.execs[t]
	return ok
}

// Types returns the registered node types, sorted.
func (r *Registry) Types() []schema.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.NodeType, 0, len(r.execs))
	for t := range r.execs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
