package tools

import (
	"errors"
	"strings"
	"sync"
)

// Registry holds the currently discovered tool descriptors in discovery
// order. The worker refreshes it from the tool server at startup and reads
// it on every query.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: map[string]Descriptor{},
		order: make([]string, 0, 16),
	}
}

// Register adds one descriptor. Registering the same name twice replaces
// the stored descriptor but keeps its original position.
func (r *Registry) Register(d Descriptor) error {
	if r == nil {
		return errors.New("tool registry is nil")
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return errors.New("tool descriptor name is required")
	}
	d.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = d
	return nil
}

// Replace swaps the whole registry content for a fresh discovery result,
// preserving the order of descs.
func (r *Registry) Replace(descs []Descriptor) error {
	if r == nil {
		return errors.New("tool registry is nil")
	}
	tools := make(map[string]Descriptor, len(descs))
	order := make([]string, 0, len(descs))
	for _, d := range descs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return errors.New("tool descriptor name is required")
		}
		if _, exists := tools[name]; !exists {
			order = append(order, name)
		}
		d.Name = name
		tools[name] = d
	}

	r.mu.Lock()
	r.tools = tools
	r.order = order
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(name string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[strings.TrimSpace(name)]
	return d, ok
}

// List returns the descriptors in discovery order.
func (r *Registry) List() []Descriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if d, ok := r.tools[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Names returns the registered tool names in discovery order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// BuildToolConfig projects the registered descriptors into the provider
// tool configuration.
func (r *Registry) BuildToolConfig() (map[string]any, error) {
	return BuildToolConfig(r.List())
}

// BuildToolConfig builds the provider tool configuration from descriptors.
// The projection is deliberately lossy: per property only the type is kept
// and the title becomes the description; required-ness, enums and defaults
// are dropped. A property missing type or title fails the whole build with
// a SchemaTranslationError instead of being silently omitted.
func BuildToolConfig(descs []Descriptor) (map[string]any, error) {
	specs := make([]any, 0, len(descs))
	for _, d := range descs {
		props, ok := d.Properties()
		if !ok {
			return nil, &SchemaTranslationError{Tool: d.Name, Field: "properties"}
		}
		projected := make(map[string]any, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				return nil, &SchemaTranslationError{Tool: d.Name, Property: name, Field: "type"}
			}
			typ, ok := prop["type"].(string)
			if !ok || typ == "" {
				return nil, &SchemaTranslationError{Tool: d.Name, Property: name, Field: "type"}
			}
			title, ok := prop["title"].(string)
			if !ok || title == "" {
				return nil, &SchemaTranslationError{Tool: d.Name, Property: name, Field: "title"}
			}
			projected[name] = map[string]any{
				"type":        typ,
				"description": title,
			}
		}
		specs = append(specs, map[string]any{
			"toolSpec": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"inputSchema": map[string]any{
					"json": map[string]any{
						"type":       "object",
						"properties": projected,
					},
				},
			},
		})
	}
	return map[string]any{"tools": specs}, nil
}
