package runtime

import "sync"

// ResourceMap is a per-agent container of shared singletons — the runtime
// handle, the subagent manager, an optional debug sink, an optional todo
// manager, and anything a caller wants to stash. Keyed by a stable string
// rather than reflect.Type: it is just as unambiguous for the small, fixed
// set of resource kinds this runtime defines, and it avoids every resource
// package needing to import a shared "kind" type to register itself.
type ResourceMap struct {
	mu        sync.RWMutex
	resources map[string]any
}

// NewResourceMap creates an empty resource map.
func NewResourceMap() *ResourceMap {
	return &ResourceMap{resources: make(map[string]any)}
}

// Well-known resource keys. Callers may use any string key of their own
// for custom resources; these are simply the keys the runtime itself
// populates.
const (
	ResourceRuntimeHandle   = "runtime_handle"
	ResourceSubAgentManager = "subagent_manager"
	ResourceDebugger        = "debugger"
	ResourceTodoManager     = "todo_manager"
)

// Set stores a resource under key, overwriting any previous value.
func (r *ResourceMap) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[key] = value
}

// Get retrieves a resource by key.
func (r *ResourceMap) Get(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.resources[key]
	return v, ok
}

// GetTyped retrieves and type-asserts a resource, returning ok=false if
// the key is absent or holds a value of a different type.
func GetTyped[T any](r *ResourceMap, key string) (T, bool) {
	var zero T
	v, ok := r.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
