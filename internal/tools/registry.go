package tools

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lukelzlz/nanobot/internal/providers"
)

// MaxToolNameLength bounds tool names to keep provider payloads sane.
const MaxToolNameLength = 256

// Registry maps tool names to instances. Registration compiles each tool's
// parameter schema so arguments can be validated before dispatch.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger.With("component", "tools"),
	}
}

// Register adds or replaces a tool. An uncompilable parameter schema is
// logged and skips validation for that tool rather than rejecting it.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	r.tools[name] = tool

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(tool.Parameters())); err == nil {
		if schema, err := compiler.Compile(name + ".json"); err == nil {
			r.schemas[name] = schema
			return
		}
	}
	r.logger.Warn("tool schema does not compile, skipping validation", "tool", name)
	delete(r.schemas, name)
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions renders every tool in the provider-neutral function shape.
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, providers.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Execute dispatches a tool call. Unknown names, invalid arguments, and tool
// panics all come back as error strings, never as raised errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = errorf("tool %s failed: %v", name, rec)
		}
	}()

	if len(name) > MaxToolNameLength {
		return errorf("tool name exceeds maximum length of %d characters", MaxToolNameLength)
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return errorf("tool not found: %s", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if schema != nil {
		if err := schema.Validate(anyMap(args)); err != nil {
			return errorf("invalid arguments for %s: %v", name, err)
		}
	}
	return tool.Execute(ctx, args)
}

// anyMap converts to the interface{} form the validator expects.
func anyMap(args map[string]any) any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
