// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
)

// Operation names used for call counting and metrics.
const (
	OpChat          = "chat"
	OpChatStream    = "chat_stream"
	OpGenerateImage = "generate_image"
	OpAnalyzeImage  = "analyze_image"
	OpListModels    = "list_models"
	OpSignIn        = "sign_in"
)

type mockChat struct {
	resp *ChatResponse
	err  error
}

type mockStream struct {
	chunks []string
	err    error
}

// MockGateway is a scripted Gateway for tests and offline demo mode.
// Queued replies are consumed in order. With an empty queue it echoes the
// last user message.
type MockGateway struct {
	mu sync.Mutex

	signedIn bool
	user     *User

	chats       []mockChat
	streams     []mockStream
	imageURL    string
	imageErr    error
	analysis    string
	analysisErr error
	models      []RemoteModel

	block    <-chan struct{}
	calls    map[string]int
	requests []ChatRequest
}

// Ensure MockGateway implements Gateway.
var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates a signed-in mock.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		signedIn: true,
		user:     &User{Username: "demo", SignedInAt: time.Now().UTC()},
		imageURL: "https://images.example.com/generated.png",
		calls:    make(map[string]int),
	}
}

// QueueChat scripts the next Chat reply.
func (m *MockGateway) QueueChat(resp *ChatResponse, err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats = append(m.chats, mockChat{resp: resp, err: err})
	return m
}

// QueueText scripts a plain assistant reply.
func (m *MockGateway) QueueText(content string) *MockGateway {
	return m.QueueChat(&ChatResponse{
		Message:      ChatMessage{Role: RoleAssistant, Content: content},
		FinishReason: "stop",
	}, nil)
}

// QueueToolCall scripts a reply asking for one function call.
func (m *MockGateway) QueueToolCall(id, name string, args interface{}) *MockGateway {
	return m.QueueChat(&ChatResponse{
		Message: ChatMessage{
			Role:      RoleAssistant,
			ToolCalls: []ToolCall{NewToolCall(id, name, args)},
		},
		FinishReason: "tool_calls",
	}, nil)
}

// QueueStream scripts the next ChatStream. A non-nil err fails the
// stream after the chunks.
func (m *MockGateway) QueueStream(chunks []string, err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, mockStream{chunks: chunks, err: err})
	return m
}

// SetImage sets the GenerateImage result.
func (m *MockGateway) SetImage(url string, err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imageURL, m.imageErr = url, err
	return m
}

// SetAnalysis sets the AnalyzeImage result.
func (m *MockGateway) SetAnalysis(text string, err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysis, m.analysisErr = text, err
	return m
}

// SetModels overrides the ListModels result.
func (m *MockGateway) SetModels(models []RemoteModel) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = models
	return m
}

// SetSignedIn toggles the authentication state.
func (m *MockGateway) SetSignedIn(v bool) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signedIn = v
	return m
}

// Block makes every network call wait until ch is closed.
func (m *MockGateway) Block(ch <-chan struct{}) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = ch
	return m
}

// Calls returns how many times op was invoked.
func (m *MockGateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of network calls of any kind.
func (m *MockGateway) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for op, c := range m.calls {
		if op != OpSignIn {
			n += c
		}
	}
	return n
}

// Requests returns the chat requests received, oldest first.
func (m *MockGateway) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

func (m *MockGateway) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// =============================================================================
// GATEWAY METHODS
// =============================================================================

func (m *MockGateway) IsSignedIn(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signedIn
}

func (m *MockGateway) SignIn(_ context.Context, creds Credentials) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpSignIn]++
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrAuthRequired)
	}
	m.signedIn = true
	m.user = &User{Username: usernameFor(creds), SignedInAt: time.Now().UTC()}
	u := *m.user
	return &u, nil
}

func (m *MockGateway) SignOut(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signedIn = false
	return nil
}

func (m *MockGateway) CurrentUser(_ context.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.signedIn || m.user == nil {
		return nil, ErrAuthRequired
	}
	u := *m.user
	return &u, nil
}

func (m *MockGateway) ListModels(ctx context.Context) ([]RemoteModel, error) {
	if err := m.enter(ctx, OpListModels); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.models != nil {
		return append([]RemoteModel(nil), m.models...), nil
	}

	infos := model.ListModels()
	out := make([]RemoteModel, 0, len(infos))
	for _, info := range infos {
		out = append(out, RemoteModel{
			ID:            info.ID,
			Name:          info.Name,
			ContextLength: info.Capabilities.MaxTokens,
			OwnedBy:       info.Provider,
		})
	}
	return out, nil
}

func (m *MockGateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.record(req)
	if err := m.enter(ctx, OpChat); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.chats) > 0 {
		next := m.chats[0]
		m.chats = m.chats[1:]
		return next.resp, next.err
	}
	return &ChatResponse{
		Message:      ChatMessage{Role: RoleAssistant, Content: echoReply(req)},
		FinishReason: "stop",
	}, nil
}

func (m *MockGateway) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	m.record(req)
	if err := m.enter(ctx, OpChatStream); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) > 0 {
		next := m.streams[0]
		m.streams = m.streams[1:]
		return NewSliceStream(next.chunks, next.err), nil
	}
	return NewSliceStream(splitIntoChunks(echoReply(req), 10), nil), nil
}

func (m *MockGateway) GenerateImage(ctx context.Context, _ string) (*Image, error) {
	if err := m.enter(ctx, OpGenerateImage); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.imageErr != nil {
		return nil, m.imageErr
	}
	return &Image{URL: m.imageURL}, nil
}

func (m *MockGateway) AnalyzeImage(ctx context.Context, modelID, prompt, imageURL string) (string, error) {
	if err := m.enter(ctx, OpAnalyzeImage); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.analysisErr != nil {
		return "", m.analysisErr
	}
	if m.analysis != "" {
		return m.analysis, nil
	}
	return fmt.Sprintf("[MOCK] %s looked at %s: %s", modelID, imageURL, prompt), nil
}

func (m *MockGateway) record(req ChatRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := req
	cp.Messages = append([]ChatMessage(nil), req.Messages...)
	m.requests = append(m.requests, cp)
}

// echoReply builds the default reply from the last user message.
func echoReply(req ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", req.Messages[i].Content)
		}
	}
	return "[MOCK] This is a mock response."
}

// splitIntoChunks splits s into pieces of at most size runes.
func splitIntoChunks(s string, size int) []string {
	runes := []rune(s)
	var chunks []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
