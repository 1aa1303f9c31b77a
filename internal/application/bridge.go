package application

import (
	"context"
	"fmt"

	domaintool "github.com/archflow/agentrun/internal/domain/tool"
)

// toolBridge adapts domaintool.Registry → service.ToolExecutor.
// This allows the AgentLoop to discover and execute tools through the shared registry.
type toolBridge struct {
	registry domaintool.Registry
}

// Execute implements service.ToolExecutor.Execute
func (b *toolBridge) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	tool, ok := b.registry.Get(name)
	if !ok {
		return &domaintool.Result{
			Output:  fmt.Sprintf("Tool '%s' not found", name),
			Success: false,
			Error:   fmt.Sprintf("tool '%s' not registered", name),
		}, nil
	}
	return tool.Execute(ctx, args)
}

// GetDefinitions implements service.ToolExecutor.GetDefinitions
func (b *toolBridge) GetDefinitions() []domaintool.Definition {
	return b.registry.List()
}

// GetToolKind implements service.ToolExecutor.GetToolKind
func (b *toolBridge) GetToolKind(name string) domaintool.Kind {
	tool, ok := b.registry.Get(name)
	if !ok {
		return domaintool.KindExecute
	}
	return tool.Kind()
}

// pluginToolRegistrar adapts domaintool.Registry → plugin.ToolRegistrar, so
// plugins can register/unregister tools through the same registry every
// other tool goes through instead of a parallel plugin-only table.
type pluginToolRegistrar struct {
	registry domaintool.Registry
}

func (r *pluginToolRegistrar) RegisterDynamic(name, description string, schema map[string]interface{}, handler func(args map[string]interface{}) (string, error)) error {
	return r.registry.Register(&dynamicPluginTool{
		name:        name,
		description: description,
		schema:      schema,
		handler:     handler,
	})
}

func (r *pluginToolRegistrar) Unregister(name string) {
	_ = r.registry.Unregister(name)
}

// dynamicPluginTool is the domaintool.Tool shim a plugin's RegisterDynamic
// call produces — the plugin only supplies a name/schema/handler triple, and
// this fills in the rest of the Tool interface.
type dynamicPluginTool struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     func(args map[string]interface{}) (string, error)
}

func (t *dynamicPluginTool) Name() string                        { return t.name }
func (t *dynamicPluginTool) Description() string                 { return t.description }
func (t *dynamicPluginTool) Kind() domaintool.Kind                { return domaintool.KindExecute }
func (t *dynamicPluginTool) Schema() map[string]interface{}       { return t.schema }

func (t *dynamicPluginTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	output, err := t.handler(args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Output: output, Success: true}, nil
}
