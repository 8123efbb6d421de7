package tool

import (
	"context"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"openresponses.ai/gateway/internal/domain/apierror"
)

// Registry holds the executable tools visible to one request. Lookups take
// a read lock; registration copies on write so snapshots handed to running
// requests never observe later mutations.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	aliases map[string]string // alias -> canonical name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		aliases: make(map[string]string),
	}
}

// Register adds a tool under its canonical name. A second registration of
// the same name replaces the first.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// RegisterAlias maps an additional name onto an existing tool, used when an
// MCP server's tool name collides and gets the label__name form.
func (r *Registry) RegisterAlias(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = canonical
}

// Snapshot returns an independent copy of the registry. The copy can be
// extended with request-scoped tools without affecting the source.
func (r *Registry) Snapshot() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dup := NewRegistry()
	for name, t := range r.tools {
		dup.tools[name] = t
	}
	for alias, canonical := range r.aliases {
		dup.aliases[alias] = canonical
	}
	return dup
}

// ResolveAlias maps a possibly aliased name to the canonical tool name.
// Unknown names resolve to themselves.
func (r *Registry) ResolveAlias(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	return name
}

// Lookup returns the tool registered under the given (possibly aliased)
// name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the wire definitions of every registered tool,
// sorted by name for a stable request payload.
func (r *Registry) Definitions() []openai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool. Unknown tools return a validation error so
// the model's hallucinated tool names surface as tool failures, not 500s.
func (r *Registry) Execute(ctx context.Context, name, arguments string, exec *ExecContext) (string, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return "", apierror.Validation("unknown tool %q", name).WithCode("unknown_tool")
	}
	return t.Execute(ctx, arguments, exec)
}
