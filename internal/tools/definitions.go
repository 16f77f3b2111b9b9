// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the local function-calling registry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool represents a function the model may ask the client to run.
type Tool struct {
	// Name is the function identifier sent to the gateway (e.g., "get_weather")
	Name string

	// Description explains what the function does
	Description string

	// Schema defines the function's parameters
	Schema Schema

	// Executor handles the actual execution
	Executor ToolExecutor
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter
	Name string

	// Type is the JSON schema type ("string", "number", "boolean", "array")
	Type string

	// Required indicates if the parameter must be provided
	Required bool

	// Description explains the parameter
	Description string

	// Enum contains allowed values for string type (optional)
	Enum []string
}

// =============================================================================
// TOOL EXECUTOR INTERFACE
// =============================================================================

// ToolExecutor is the interface for individual tool execution.
type ToolExecutor interface {
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
}

// ExecutorFunc adapts a plain function to ToolExecutor.
type ExecutorFunc func(ctx context.Context, params map[string]interface{}) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	return f(ctx, params)
}

// Result holds the outcome of a tool execution. Output is always a JSON
// document; failures inside a tool are reported as {"error": "..."} with
// IsError set, so the model can read them on the follow-up call.
type Result struct {
	// Name is the tool that produced the result
	Name string

	// Output is the JSON-encoded function result
	Output string

	// IsError marks a structured function error
	IsError bool

	// Duration is how long execution took
	Duration time.Duration
}

// ErrorResult builds a structured error result.
func ErrorResult(name, message string) Result {
	out, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{message})
	return Result{Name: name, Output: string(out), IsError: true}
}

// JSONResult marshals v into a successful result.
func JSONResult(name string, v interface{}) (Result, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("marshal %s result: %w", name, err)
	}
	return Result{Name: name, Output: string(out)}, nil
}

// =============================================================================
// GATEWAY SCHEMA
// =============================================================================

// Definition is the OpenAI-style tool schema sent with a chat request.
type Definition struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes one callable function.
type FunctionSchema struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  ParametersSchema `json:"parameters"`
}

// ParametersSchema is the JSON schema object for function arguments.
type ParametersSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single argument schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Definition converts the tool to its gateway schema.
func (t *Tool) Definition() Definition {
	props := make(map[string]Property, len(t.Schema.Parameters))
	var required []string
	for _, p := range t.Schema.Parameters {
		props[p.Name] = Property{Type: p.Type, Description: p.Description, Enum: p.Enum}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Definition{
		Type: "function",
		Function: FunctionSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters: ParametersSchema{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds all available tools.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates a registry with the built-in tools registered.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.RegisterBuiltins(time.Now)
	return r
}

// NewEmptyRegistry creates a registry with no tools.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// RegisterBuiltins registers get_weather, calculate and get_current_time.
// now is the clock used by get_current_time.
func (r *Registry) RegisterBuiltins(now func() time.Time) {
	r.Register(WeatherTool)
	r.Register(CalculateTool)
	r.Register(NewCurrentTimeTool(now))
}

// Register adds a tool to the registry, replacing any tool with the same name.
func (r *Registry) Register(tool *Tool) {
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}

// Definitions returns gateway schemas for every tool, sorted by name.
func (r *Registry) Definitions() []Definition {
	all := r.All()
	defs := make([]Definition, len(all))
	for i, t := range all {
		defs[i] = t.Definition()
	}
	return defs
}

// =============================================================================
// TOOL CALLS
// =============================================================================

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with the tool-role reply
	ID string

	// Name is the requested function
	Name string

	// Arguments is the raw JSON argument object
	Arguments string
}

// Params decodes the JSON arguments. An empty string decodes to an empty map.
func (tc ToolCall) Params() (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if strings.TrimSpace(tc.Arguments) == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &params); err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", tc.Name, err)
	}
	return params, nil
}

// getString gets a string parameter with a default value.
func getString(params map[string]interface{}, name, defaultVal string) string {
	if val, ok := params[name]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}
