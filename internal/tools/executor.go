// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the local function-calling registry.
package tools

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Structured error messages returned to the model.
const (
	MsgFunctionNotFound  = "Function not found"
	MsgInvalidArguments  = "Invalid function arguments"
	MsgInvalidExpression = "Invalid mathematical expression"
)

// DefaultToolTimeout is applied when the context has no deadline.
const DefaultToolTimeout = 30 * time.Second

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks one tool execution.
type ExecutionRecord struct {
	Call      ToolCall
	Result    Result
	Timestamp time.Time
}

// ValidationError reports a parameter that does not match the schema.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Param, e.Message)
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor runs tool calls against a registry and keeps a bounded history.
type Executor struct {
	registry *Registry
	history  []ExecutionRecord
	mu       sync.Mutex
	timeout  time.Duration
}

// NewExecutor creates a new tool executor with the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		history:  make([]ExecutionRecord, 0),
		timeout:  DefaultToolTimeout,
	}
}

// SetTimeout changes the per-call timeout used when ctx has no deadline.
func (e *Executor) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.timeout = d
	}
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]ExecutionRecord, len(e.history))
	copy(result, e.history)
	return result
}

// Execute runs a tool call. It never returns a Go error: every failure is
// folded into a structured {"error": ...} result for the follow-up request.
func (e *Executor) Execute(ctx context.Context, call ToolCall) Result {
	start := time.Now()
	result := e.execute(ctx, call)
	result.Name = call.Name
	result.Duration = time.Since(start)

	e.addToHistory(ExecutionRecord{Call: call, Result: result, Timestamp: start})
	return result
}

func (e *Executor) execute(ctx context.Context, call ToolCall) Result {
	tool := e.registry.Get(call.Name)
	if tool == nil || tool.Executor == nil {
		return ErrorResult(call.Name, MsgFunctionNotFound)
	}

	params, err := call.Params()
	if err != nil {
		return ErrorResult(call.Name, MsgInvalidArguments)
	}

	if err := validateParams(tool, params); err != nil {
		return ErrorResult(call.Name, err.Error())
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		e.mu.Lock()
		timeout := e.timeout
		e.mu.Unlock()

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := tool.Executor.Execute(ctx, params)
		done <- outcome{r, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return ErrorResult(call.Name, out.err.Error())
		}
		return out.result
	case <-ctx.Done():
		return ErrorResult(call.Name, "tool execution timed out: "+ctx.Err().Error())
	}
}

// addToHistory adds an execution record to the history.
func (e *Executor) addToHistory(record ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const maxHistorySize = 1000
	if len(e.history) >= maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize+1:]
	}
	e.history = append(e.history, record)
}

// validateParams validates tool parameters against the schema.
func validateParams(tool *Tool, params map[string]interface{}) error {
	for _, param := range tool.Schema.Parameters {
		val, exists := params[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ValidationError{Param: param.Name, Message: "required parameter is missing"}
		}
		if !exists || val == nil {
			continue
		}

		if err := validateType(param, val); err != nil {
			return err
		}
	}
	return nil
}

// validateType validates a parameter value against its expected type.
func validateType(param Parameter, val interface{}) error {
	switch param.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return &ValidationError{Param: param.Name, Message: "expected string"}
		}
		if len(param.Enum) > 0 {
			for _, allowed := range param.Enum {
				if s == allowed {
					return nil
				}
			}
			return &ValidationError{Param: param.Name, Message: "value not allowed"}
		}
	case "number":
		switch val.(type) {
		case int, int64, float64:
		default:
			return &ValidationError{Param: param.Name, Message: "expected number"}
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return &ValidationError{Param: param.Name, Message: "expected boolean"}
		}
	case "array":
		if _, ok := val.([]interface{}); !ok {
			return &ValidationError{Param: param.Name, Message: "expected array"}
		}
	}
	return nil
}
