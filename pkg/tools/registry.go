package tools

import (
	"fmt"
	"sync"

	"github.com/weaverlabs/weaver/pkg/domain"
)

// Registry holds the search tools available to the researcher.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]domain.SearchTool
}

// NewRegistry creates an empty search tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]domain.SearchTool),
	}
}

// Register registers a new search tool
func (r *Registry) Register(tool domain.SearchTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (domain.SearchTool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool %s not found", name)
	}

	return tool, nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []domain.SearchTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.SearchTool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}

	return tools
}
