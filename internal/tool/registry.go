package tool

import (
	"context"
	"sort"
)

// RunFunc executes a tool against a raw JSON payload. Tools report their
// own failures inside the returned result, so there is no error return.
type RunFunc func(ctx context.Context, input []byte) any

type Registry struct {
	tools map[string]RunFunc
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]RunFunc{}}
}

func (r *Registry) Register(name string, fn RunFunc) {
	r.tools[name] = fn
}

func (r *Registry) Get(name string) (RunFunc, bool) {
	fn, ok := r.tools[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
