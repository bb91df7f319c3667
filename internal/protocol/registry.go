package protocol

import (
	"sort"
	"sync"
)

// Registry holds the named tools and resources the dispatcher can
// invoke. Registration happens at startup; lookups are concurrent.
type Registry struct {
	mutex     sync.RWMutex
	tools     map[string]Tool
	resources map[string]Resource
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		resources: make(map[string]Resource),
	}
}

// RegisterTool adds a tool under its own name. A later registration
// with the same name replaces the earlier one.
func (r *Registry) RegisterTool(tool Tool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.tools[tool.Name()] = tool
}

// Tool looks up a tool by name.
func (r *Registry) Tool(name string) (Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ToolCount returns the number of registered tools.
func (r *Registry) ToolCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.tools)
}

// ToolDefinitions returns the tools/list payload, sorted by name for a
// stable wire representation.
func (r *Registry) ToolDefinitions() []ToolDefinition {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

// RegisterResource adds a resource under its own name.
func (r *Registry) RegisterResource(resource Resource) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resources[resource.Name()] = resource
}

// Resource looks up a resource by name.
func (r *Registry) Resource(name string) (Resource, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	resource, ok := r.resources[name]
	return resource, ok
}

// ResourceDefinitions returns the resources/list payload.
func (r *Registry) ResourceDefinitions() []ResourceDefinition {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	defs := make([]ResourceDefinition, 0, len(r.resources))
	for _, resource := range r.resources {
		defs = append(defs, ResourceDefinition{
			URI:         "resource://" + resource.Name(),
			Name:        resource.Name(),
			Description: resource.Description(),
			MimeType:    resource.MimeType(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}
