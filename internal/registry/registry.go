package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/a-h/templ"

	"composer/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Component registry: block type name -> schema, defaults, render
// ─────────────────────────────────────────────────────────────

// RenderContext is handed to a render function. Zone returns the rendered
// children of one of the block's owned zones.
type RenderContext struct {
	ID   string
	Zone func(name string) templ.Component
}

// ResolveContext carries what a resolver needs to decide whether to do work.
type ResolveContext struct {
	// Target is the block id, or domain.RootID for page settings.
	Target string
	// Changed marks props that differ from the last resolved snapshot. On the
	// first resolution of a target every prop is marked.
	Changed map[string]bool
	// LastProps and LastFields are the last successfully resolved values.
	LastProps  domain.Props
	LastFields Fields
}

// IsChanged reports whether prop name changed since the last resolution.
func (rc ResolveContext) IsChanged(name string) bool {
	return rc.Changed[name]
}

type (
	RenderFunc        func(props domain.Props, rc RenderContext) templ.Component
	ResolveFieldsFunc func(ctx context.Context, props domain.Props, rc ResolveContext) (Fields, error)
	ResolveDataFunc   func(ctx context.Context, props domain.Props, rc ResolveContext) (domain.Props, error)
)

// Component is the host-supplied definition of one block type. The engine
// never looks past this shape.
type Component struct {
	Type         string
	Label        string
	Fields       Fields
	DefaultProps domain.Props
	// Zones names the zones every block of this type owns.
	Zones  []string
	Render RenderFunc

	ResolveFields ResolveFieldsFunc
	ResolveData   ResolveDataFunc
}

// Root configures the page-level settings form and the page wrapper. Render
// receives the rendered root zone as children.
type Root struct {
	Fields       Fields
	DefaultProps domain.Props
	Render       func(props domain.Props, children templ.Component) templ.Component

	ResolveFields ResolveFieldsFunc
	ResolveData   ResolveDataFunc
}

// Resolvable reports whether the component registered any resolver.
func (c Component) Resolvable() bool {
	return c.ResolveFields != nil || c.ResolveData != nil
}

// Resolvable reports whether the root registered any resolver.
func (r Root) Resolvable() bool {
	return r.ResolveFields != nil || r.ResolveData != nil
}

// Registry manages registered component types. Registration order is kept
// so palettes list components the way the host declared them.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
	order      []string
	root       Root
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register adds a component. Panics on duplicate registration or an invalid
// field schema.
func (r *Registry) Register(c Component) {
	if c.Type == "" {
		panic("component registry: empty type name")
	}
	if err := c.Fields.Validate(); err != nil {
		panic(fmt.Sprintf("component registry: %s: %v", c.Type, err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[c.Type]; exists {
		panic(fmt.Sprintf("component registry: duplicate registration for type %q", c.Type))
	}
	r.components[c.Type] = c
	r.order = append(r.order, c.Type)
}

// SetRoot installs the page-level configuration.
func (r *Registry) SetRoot(root Root) {
	if err := root.Fields.Validate(); err != nil {
		panic(fmt.Sprintf("component registry: root: %v", err))
	}
	r.mu.Lock()
	r.root = root
	r.mu.Unlock()
}

// Root returns the page-level configuration.
func (r *Registry) Root() Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// Lookup returns the component registered for type name.
func (r *Registry) Lookup(name string) (Component, bool) {
	r.mu.RLock()
	c, ok := r.components[name]
	r.mu.RUnlock()
	return c, ok
}

// Types lists registered type names in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ForEach iterates registered components in registration order.
func (r *Registry) ForEach(fn func(Component)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		fn(r.components[name])
	}
}

// Defaults returns a fresh copy of the type's default props.
func (r *Registry) Defaults(name string) (domain.Props, bool) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	return c.DefaultProps.Clone(), true
}

// FieldsFor returns the static field schema of a target: the root schema for
// domain.RootID, otherwise the schema of the block type.
func (r *Registry) FieldsFor(target, blockType string) Fields {
	if target == domain.RootID {
		return r.Root().Fields
	}
	c, ok := r.Lookup(blockType)
	if !ok {
		return nil
	}
	return c.Fields
}
