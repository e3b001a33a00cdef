package runtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ActivityContext carries request-scoped data into an activity handler.
// Handlers may block and make network calls; the embedded Context is
// cancelled when the runtime shuts down.
type ActivityContext struct {
	context.Context

	InstanceID string
	Seq        uint64
	Attempt    int
	Logger     zerolog.Logger
}

// ActivityFunc executes one scheduled activity. The returned error string
// travels through history verbatim, so handlers use workflow.Conflictf and
// workflow.Fatalf to mark errors that must not be retried.
type ActivityFunc func(ctx *ActivityContext, input json.RawMessage) (json.RawMessage, error)

// ActivityRegistry maps activity names to their handlers.
type ActivityRegistry struct {
	mu    sync.RWMutex
	funcs map[string]ActivityFunc
}

// NewActivityRegistry creates an empty activity registry.
func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{funcs: make(map[string]ActivityFunc)}
}

// Register binds an activity name to fn, replacing any previous binding.
func (r *ActivityRegistry) Register(name string, fn ActivityFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Names returns the registered activity names, sorted.
func (r *ActivityRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ActivityRegistry) lookup(name string) (ActivityFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}
