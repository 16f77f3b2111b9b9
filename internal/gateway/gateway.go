// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/rigchat/internal/tools"
)

// =============================================================================
// GATEWAY INTERFACE
// =============================================================================

// Gateway is the hosted AI service rigchat talks to.
type Gateway interface {
	// IsSignedIn reports whether a credential is present.
	IsSignedIn(ctx context.Context) bool

	// SignIn validates and stores credentials.
	SignIn(ctx context.Context, creds Credentials) (*User, error)

	// SignOut forgets the stored credentials.
	SignOut(ctx context.Context) error

	// CurrentUser returns the signed-in user or ErrAuthRequired.
	CurrentUser(ctx context.Context) (*User, error)

	// ListModels returns the models the gateway serves.
	ListModels(ctx context.Context) ([]RemoteModel, error)

	// Chat performs a non-streaming chat completion.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream starts a streaming completion. The stream is finite and
	// cannot be restarted.
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)

	// GenerateImage renders prompt into an image.
	GenerateImage(ctx context.Context, prompt string) (*Image, error)

	// AnalyzeImage describes the image at imageURL using model.
	AnalyzeImage(ctx context.Context, model, prompt, imageURL string) (string, error)
}

// Stream yields content chunks in arrival order.
type Stream interface {
	// Next returns the next chunk, or io.EOF once the stream is finished.
	// Any other error is final.
	Next(ctx context.Context) (string, error)

	// Close releases the underlying connection.
	Close() error
}

// =============================================================================
// TYPES
// =============================================================================

// Role values on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one turn in the outgoing payload.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call in OpenAI wire format.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the name and raw JSON arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Local converts the wire call into an executable call.
func (tc ToolCall) Local() tools.ToolCall {
	return tools.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
}

// NewToolCall builds a wire call from a name and argument value.
func NewToolCall(id, name string, args interface{}) ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: ToolCallFunction{Name: name, Arguments: string(raw)},
	}
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model    string             `json:"model"`
	Messages []ChatMessage      `json:"messages"`
	Tools    []tools.Definition `json:"tools,omitempty"`
}

// Usage reports token counts when the gateway provides them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	Message      ChatMessage
	FinishReason string
	Usage        Usage
}

// HasToolCalls reports whether the model asked for a function.
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}

// Image is a generated image. URL is either remote or a data URI.
type Image struct {
	URL           string
	RevisedPrompt string
}

// RemoteModel is an entry from the gateway's model list.
type RemoteModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	OwnedBy       string `json:"owned_by,omitempty"`
}

// Credentials are what the user supplies to sign in.
type Credentials struct {
	Token    string
	Username string
}

// User is the signed-in identity.
type User struct {
	Username   string    `json:"username"`
	SignedInAt time.Time `json:"signed_in_at"`
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable means the gateway is not configured or initialised.
	ErrUnavailable = errors.New("gateway unavailable")

	// ErrAuthRequired means the call needs a signed-in user.
	ErrAuthRequired = errors.New("authentication required")

	// ErrRateLimited means the gateway throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound means the model id was rejected.
	ErrModelNotFound = errors.New("model not found")

	// ErrUnsupported means this backend cannot perform the operation.
	ErrUnsupported = errors.New("operation not supported")
)

// RequestError is a failed gateway call.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s failed (HTTP %d): %s", e.Op, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return e.Op + " failed"
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StreamError is a stream that failed after delivering Partial.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text for err. Request errors surface the
// gateway's own message when there is one.
func Message(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	var streamErr *StreamError
	if errors.As(err, &streamErr) && streamErr.Err != nil {
		return Message(streamErr.Err)
	}
	return err.Error()
}
