// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/tools"
)

const testToken = "sk-test-0123456789abcdef"

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*HTTPGateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	creds, err := NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	g := NewHTTPGateway(server.URL, creds).WithAPIKey(testToken)
	return g, server
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestHTTPGateway_Chat(t *testing.T) {
	var got completionRequest
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`)
	})

	resp, err := g.Chat(context.Background(), ChatRequest{
		Model:    "gpt-4o",
		Messages: []ChatMessage{{Role: RoleUser, Content: "Hello"}},
		Tools:    tools.NewRegistry().Definitions(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.False(t, resp.HasToolCalls())

	assert.Equal(t, "gpt-4o", got.Model)
	assert.False(t, got.Stream)
	assert.Len(t, got.Tools, 3)
}

func TestHTTPGateway_ChatToolCall(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": null,
			"tool_calls": [{"id": "call_1", "type": "function",
				"function": {"name": "calculate", "arguments": "{\"expression\":\"2+2\"}"}}]},
			"finish_reason": "tool_calls"}]}`)
	})

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-5"})
	require.NoError(t, err)
	require.True(t, resp.HasToolCalls())

	call := resp.Message.ToolCalls[0].Local()
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "calculate", call.Name)
	params, err := call.Params()
	require.NoError(t, err)
	assert.Equal(t, "2+2", params["expression"])
}

func TestHTTPGateway_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrAuthRequired, "bad key"},
		{"not found", http.StatusNotFound, `{"error":{"message":"no such model"}}`, ErrModelNotFound, "no such model"},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimited, "slow down"},
		{"server error", http.StatusInternalServerError, `oops`, nil, "oops"},
		{"empty body", http.StatusBadRequest, ``, nil, "Bad Request"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})

			_, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})
			require.Error(t, err)

			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tc.status, reqErr.Status)
			assert.Equal(t, tc.message, Message(err))
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
		})
	}
}

func TestHTTPGateway_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`)
	})
	g.WithMaxRetries(1)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPGateway_SendsFailedChatOnce(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = g.GenerateImage(context.Background(), "a cat")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_HonorsMaxRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int32
	}{
		{"zero sends once", 0, 1},
		{"one retry", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "boom", http.StatusInternalServerError)
			}))
			t.Cleanup(server.Close)

			g, err := New(Options{
				Provider:        ProviderHTTP,
				BaseURL:         server.URL,
				APIKey:          testToken,
				MaxRetries:      tt.maxRetries,
				CredentialsPath: filepath.Join(t.TempDir(), "c.json"),
			})
			require.NoError(t, err)

			_, err = g.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestHTTPGateway_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	g.WithMaxRetries(3)

	_, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPGateway_RequiresToken(t *testing.T) {
	g := NewHTTPGateway("http://127.0.0.1:1", nil)
	assert.False(t, g.IsSignedIn(context.Background()))

	_, err := g.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrAuthRequired)

	_, err = g.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrAuthRequired)

	_, err = g.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func sseHandler(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

func delta(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{map[string]interface{}{"delta": map[string]string{"content": content}}},
	})
	return string(b)
}

func TestHTTPGateway_ChatStream(t *testing.T) {
	g, _ := newTestGateway(t, sseHandler(
		delta("Hel"),
		`{not json`,
		delta(""),
		delta("lo"),
		delta(" world"),
		"[DONE]",
		delta("ignored"),
	))

	stream, err := g.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)

	var chunks []string
	content, err := Collect(context.Background(), stream, func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", " world"}, chunks)
	assert.Equal(t, "Hello world", content)

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestHTTPGateway_ChatStreamWithoutDone(t *testing.T) {
	g, _ := newTestGateway(t, sseHandler(delta("a"), delta("b")))

	stream, err := g.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	content, err := Collect(context.Background(), stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", content)
}

func TestHTTPGateway_ChatStreamErrorEvent(t *testing.T) {
	g, _ := newTestGateway(t, sseHandler(delta("partial "), `{"error":{"message":"upstream died"}}`))

	stream, err := g.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	content, err := Collect(context.Background(), stream, nil)
	require.Error(t, err)
	assert.Equal(t, "partial ", content)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "partial ", streamErr.Partial)
	assert.Equal(t, "upstream died", Message(err))
}

func TestHTTPGateway_ChatStreamHTTPError(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := g.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSSEReader(t *testing.T) {
	input := "event: message\ndata: one\ndata: two\n\n: comment\nid: 7\ndata: three\n\ndata: tail"
	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "message", typ)
	assert.Equal(t, "one\ntwo", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "three", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

// =============================================================================
// IMAGE AND MODEL TESTS
// =============================================================================

func TestHTTPGateway_GenerateImage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"url", `{"data":[{"url":"https://img/1.png","revised_prompt":"a cat"}]}`, "https://img/1.png"},
		{"base64", `{"data":[{"b64_json":"AAAA"}]}`, "data:image/png;base64,AAAA"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got imageRequest
			g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/images/generations", r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				fmt.Fprint(w, tc.body)
			})

			img, err := g.GenerateImage(context.Background(), "a cat")
			require.NoError(t, err)
			assert.Equal(t, tc.want, img.URL)
			assert.Equal(t, ImageModel, got.Model)
			assert.Equal(t, "a cat", got.Prompt)
		})
	}
}

func TestHTTPGateway_GenerateImageEmpty(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	_, err := g.GenerateImage(context.Background(), "a cat")
	require.Error(t, err)
	assert.Equal(t, "no image returned", Message(err))
}

func TestHTTPGateway_AnalyzeImage(t *testing.T) {
	var got map[string]interface{}
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": "A red bicycle."}}]}`)
	})

	text, err := g.AnalyzeImage(context.Background(), "gpt-4o", "What is this?", "https://img/bike.jpg")
	require.NoError(t, err)
	assert.Equal(t, "A red bicycle.", text)

	msgs := got["messages"].([]interface{})
	parts := msgs[0].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]interface{})["type"])
	imagePart := parts[1].(map[string]interface{})
	assert.Equal(t, "image_url", imagePart["type"])
	assert.Equal(t, "https://img/bike.jpg", imagePart["image_url"].(map[string]interface{})["url"])
}

func TestHTTPGateway_ListModels(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{"data":[{"id":"gpt-4o","name":"GPT-4o","context_length":128000},{"id":"bare"}]}`)
	})

	models, err := g.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "GPT-4o", models[0].Name)
	assert.Equal(t, 128000, models[0].ContextLength)
	assert.Equal(t, "bare", models[1].Name)
}

// =============================================================================
// AUTHENTICATION TESTS
// =============================================================================

func TestHTTPGateway_SignInSignOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"invalid token"}}`)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "credentials.json")
	creds, err := NewCredentialStore(path)
	require.NoError(t, err)
	g := NewHTTPGateway(server.URL, creds)
	ctx := context.Background()

	assert.False(t, g.IsSignedIn(ctx))

	_, err = g.SignIn(ctx, Credentials{Token: "bad-token"})
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.False(t, g.IsSignedIn(ctx))

	user, err := g.SignIn(ctx, Credentials{Token: "good-token", Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
	assert.True(t, g.IsSignedIn(ctx))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A fresh gateway picks up the stored token.
	again := NewHTTPGateway(server.URL, creds)
	current, err := again.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", current.Username)

	require.NoError(t, g.SignOut(ctx))
	assert.False(t, g.IsSignedIn(ctx))
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCredentialStore_NilIsNoop(t *testing.T) {
	var s *CredentialStore
	creds, err := s.Load()
	assert.NoError(t, err)
	assert.Nil(t, creds)
	assert.NoError(t, s.Save(&StoredCredentials{Token: "x"}))
	assert.NoError(t, s.Clear())
}

func TestRateLimitWaitHonorsContext(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	g.WithRateLimit(0.001, 1)

	ctx := context.Background()
	_, err := g.ListModels(ctx)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = g.ListModels(ctx)
	assert.Error(t, err)
}

// =============================================================================
// MOCK TESTS
// =============================================================================

func TestMockGateway_Scripted(t *testing.T) {
	ctx := context.Background()
	m := NewMockGateway().
		QueueText("first").
		QueueToolCall("call_1", "get_weather", map[string]string{"location": "Paris"}).
		QueueStream([]string{"a", "b"}, errors.New("boom"))

	resp, err := m.Chat(ctx, ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Message.Content)

	resp, err = m.Chat(ctx, ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	require.True(t, resp.HasToolCalls())
	assert.Equal(t, `{"location":"Paris"}`, resp.Message.ToolCalls[0].Function.Arguments)

	stream, err := m.ChatStream(ctx, ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	content, err := Collect(ctx, stream, nil)
	assert.Equal(t, "ab", content)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "ab", streamErr.Partial)

	assert.Equal(t, 2, m.Calls(OpChat))
	assert.Equal(t, 1, m.Calls(OpChatStream))
	assert.Equal(t, 3, m.TotalCalls())
	assert.Len(t, m.Requests(), 3)
}

func TestMockGateway_EchoStreamConcatenates(t *testing.T) {
	ctx := context.Background()
	m := NewMockGateway()
	req := ChatRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "ping"}}}

	stream, err := m.ChatStream(ctx, req)
	require.NoError(t, err)
	content, err := Collect(ctx, stream, nil)
	require.NoError(t, err)
	assert.Equal(t, echoReply(req), content)
}

func TestMockGateway_BlockHonorsContext(t *testing.T) {
	block := make(chan struct{})
	m := NewMockGateway().Block(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Chat(ctx, ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInstrument_PassesThrough(t *testing.T) {
	ctx := context.Background()
	m := NewMockGateway().QueueStream([]string{"x", "y"}, nil)
	g := Instrument(m)
	assert.Same(t, g, Instrument(g))

	stream, err := g.ChatStream(ctx, ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	content, err := Collect(ctx, stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "xy", content)

	img, err := g.GenerateImage(ctx, "cat")
	require.NoError(t, err)
	assert.NotEmpty(t, img.URL)
}

func TestNew(t *testing.T) {
	g, err := New(Options{Provider: "mock"})
	require.NoError(t, err)
	assert.True(t, g.IsSignedIn(context.Background()))

	g, err = New(Options{Provider: "http", APIKey: "k", CredentialsPath: filepath.Join(t.TempDir(), "c.json")})
	require.NoError(t, err)
	assert.True(t, g.IsSignedIn(context.Background()))

	_, err = New(Options{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

// =============================================================================
// GEMINI CONVERSION TESTS
// =============================================================================

func TestToContents(t *testing.T) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "2+2?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{NewToolCall("call_0", "calculate", map[string]string{"expression": "2+2"})}},
		{Role: RoleTool, ToolCallID: "call_0", Content: `{"expression":"2+2","result":4}`},
	}

	contents, system := toContents(msgs)
	assert.Equal(t, "be brief", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
}

func TestGeminiModelName(t *testing.T) {
	g := NewGeminiGateway("", nil)
	assert.Equal(t, "gemini-2.0-flash-001", g.modelName("google/gemini-2.0-flash-001"))
	assert.Equal(t, DefaultGeminiModel, g.modelName("gpt-4o"))
	assert.False(t, g.IsSignedIn(context.Background()))

	_, err := g.GenerateImage(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = g.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestDecodeDataURI(t *testing.T) {
	format, data, err := decodeDataURI("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, "hello", string(data))

	_, _, err = decodeDataURI("data:text/plain,hello")
	assert.Error(t, err)
}
