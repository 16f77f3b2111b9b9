// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the HTTP gateway.
const (
	// DefaultBaseURL is the OpenAI-compatible endpoint used when none is configured.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of extra attempts after a transient
	// failure. Requests are sent once unless a caller opts in.
	DefaultMaxRetries = 0

	// ImageModel is the model used for image generation.
	ImageModel = "dall-e-3"

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "rigchat/1.0"
)

// HTTPGateway talks to an OpenAI-compatible REST API.
type HTTPGateway struct {
	baseURL      string
	apiKey       string
	creds        *CredentialStore
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	limiter      *rate.Limiter

	// session holds the signed-in credentials once loaded
	mu      sync.RWMutex
	session *StoredCredentials
	loaded  bool
}

// NewHTTPGateway creates a gateway at baseURL (DefaultBaseURL when empty)
// that persists sign-ins in creds. creds may be nil.
func NewHTTPGateway(baseURL string, creds *CredentialStore) *HTTPGateway {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPGateway{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		creds:        creds,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
		maxRetries:   DefaultMaxRetries,
	}
}

// WithAPIKey sets a static key used when no one has signed in.
func (g *HTTPGateway) WithAPIKey(key string) *HTTPGateway {
	g.apiKey = strings.TrimSpace(key)
	return g
}

// WithTimeout sets the non-streaming request timeout.
func (g *HTTPGateway) WithTimeout(timeout time.Duration) *HTTPGateway {
	if timeout > 0 {
		g.httpClient.Timeout = timeout
	}
	return g
}

// WithMaxRetries sets how many times a rate-limited or 5xx request is
// resent after the first attempt. 0 sends every request exactly once.
func (g *HTTPGateway) WithMaxRetries(n int) *HTTPGateway {
	if n < 0 {
		n = 0
	}
	g.maxRetries = n
	return g
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables throttling.
func (g *HTTPGateway) WithRateLimit(rps float64, burst int) *HTTPGateway {
	if rps <= 0 {
		g.limiter = nil
		return g
	}
	if burst < 1 {
		burst = 1
	}
	g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return g
}

// WithHTTPClient replaces both underlying clients.
func (g *HTTPGateway) WithHTTPClient(c *http.Client) *HTTPGateway {
	g.httpClient = c
	g.streamClient = c
	return g
}

// BaseURL returns the configured endpoint.
func (g *HTTPGateway) BaseURL() string {
	return g.baseURL
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func (g *HTTPGateway) loadSession() *StoredCredentials {
	g.mu.RLock()
	if g.loaded {
		s := g.session
		g.mu.RUnlock()
		return s
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.loaded {
		s, err := g.creds.Load()
		if err != nil {
			log.Printf("CREDENTIALS_LOAD_FAILED | path=%s error=%v", g.creds.Path(), err)
		}
		g.session = s
		g.loaded = true
	}
	return g.session
}

func (g *HTTPGateway) token() string {
	if s := g.loadSession(); s != nil {
		return s.Token
	}
	return g.apiKey
}

// IsSignedIn reports whether a stored or configured token is present.
func (g *HTTPGateway) IsSignedIn(_ context.Context) bool {
	return g.token() != ""
}

// SignIn checks the token against the model list and stores it.
func (g *HTTPGateway) SignIn(ctx context.Context, creds Credentials) (*User, error) {
	token := strings.TrimSpace(creds.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrAuthRequired)
	}

	if _, err := g.listModels(ctx, token); err != nil {
		return nil, err
	}

	stored := &StoredCredentials{
		Token:      token,
		Username:   usernameFor(creds),
		SignedInAt: time.Now().UTC(),
	}
	if err := g.creds.Save(stored); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	g.mu.Lock()
	g.session = stored
	g.loaded = true
	g.mu.Unlock()

	log.Printf("SIGNED_IN | user=%s key=%s", stored.Username, Fingerprint(token))
	return stored.User(), nil
}

// SignOut removes the stored token. A configured API key stays in effect.
func (g *HTTPGateway) SignOut(_ context.Context) error {
	g.mu.Lock()
	g.session = nil
	g.loaded = true
	g.mu.Unlock()
	return g.creds.Clear()
}

// CurrentUser returns the signed-in user.
func (g *HTTPGateway) CurrentUser(_ context.Context) (*User, error) {
	if s := g.loadSession(); s != nil {
		return s.User(), nil
	}
	if g.apiKey != "" {
		return &User{Username: "api-key-" + Fingerprint(g.apiKey)}, nil
	}
	return nil, ErrAuthRequired
}

// =============================================================================
// REQUESTS
// =============================================================================

type completionRequest struct {
	ChatRequest
	Stream bool `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Code    interface{} `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

// Chat performs a non-streaming completion.
func (g *HTTPGateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := completionRequest{ChatRequest: req}
	data, err := g.postJSON(ctx, "chat", "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp completionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RequestError{Op: "chat", Message: "invalid response", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &RequestError{Op: "chat", Message: "response contained no choices"}
	}

	return &ChatResponse{
		Message:      resp.Choices[0].Message,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        resp.Usage,
	}, nil
}

// ChatStream opens an SSE completion stream.
func (g *HTTPGateway) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	token := g.token()
	if token == "" {
		return nil, ErrAuthRequired
	}

	payload, err := json.Marshal(completionRequest{ChatRequest: req, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(httpReq, token)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	log.Printf("GATEWAY_REQUEST | op=chat_stream path=/chat/completions model=%s", req.Model)
	resp, err := g.streamClient.Do(httpReq)
	if err != nil {
		return nil, &RequestError{Op: "chat_stream", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return nil, errorFromResponse("chat_stream", resp.StatusCode, body)
	}

	return newSSEStream(resp.Body), nil
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage renders prompt with dall-e-3.
func (g *HTTPGateway) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	data, err := g.postJSON(ctx, "generate_image", "/images/generations", imageRequest{
		Model:  ImageModel,
		Prompt: prompt,
		N:      1,
		Size:   "1024x1024",
	})
	if err != nil {
		return nil, err
	}

	var resp imageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RequestError{Op: "generate_image", Message: "invalid response", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &RequestError{Op: "generate_image", Message: "no image returned"}
	}

	first := resp.Data[0]
	img := &Image{URL: first.URL, RevisedPrompt: first.RevisedPrompt}
	if img.URL == "" && first.B64JSON != "" {
		img.URL = "data:image/png;base64," + first.B64JSON
	}
	if img.URL == "" {
		return nil, &RequestError{Op: "generate_image", Message: "no image returned"}
	}
	return img, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type visionRequest struct {
	Model    string          `json:"model"`
	Messages []visionMessage `json:"messages"`
}

// AnalyzeImage sends the image as a content part of one user message.
func (g *HTTPGateway) AnalyzeImage(ctx context.Context, model, prompt, imageURL string) (string, error) {
	parts := []contentPart{{Type: "text", Text: prompt}}
	if imageURL != "" {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: imageURL}})
	}

	data, err := g.postJSON(ctx, "analyze_image", "/chat/completions", visionRequest{
		Model:    model,
		Messages: []visionMessage{{Role: RoleUser, Content: parts}},
	})
	if err != nil {
		return "", err
	}

	var resp completionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", &RequestError{Op: "analyze_image", Message: "invalid response", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &RequestError{Op: "analyze_image", Message: "response contained no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

type modelsResponse struct {
	Data []RemoteModel `json:"data"`
}

// ListModels fetches the gateway's model list.
func (g *HTTPGateway) ListModels(ctx context.Context) ([]RemoteModel, error) {
	return g.listModels(ctx, g.token())
}

func (g *HTTPGateway) listModels(ctx context.Context, token string) ([]RemoteModel, error) {
	data, err := g.do(ctx, "list_models", http.MethodGet, "/models", nil, token)
	if err != nil {
		return nil, err
	}
	var resp modelsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RequestError{Op: "list_models", Message: "invalid response", Err: err}
	}
	for i := range resp.Data {
		if resp.Data[i].Name == "" {
			resp.Data[i].Name = resp.Data[i].ID
		}
	}
	return resp.Data, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (g *HTTPGateway) postJSON(ctx context.Context, op, path string, body interface{}) ([]byte, error) {
	token := g.token()
	if token == "" {
		return nil, ErrAuthRequired
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return g.do(ctx, op, http.MethodPost, path, payload, token)
}

// do sends one request, resending it up to maxRetries times on rate
// limiting and 5xx responses.
func (g *HTTPGateway) do(ctx context.Context, op, method, path string, payload []byte, token string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		data, err := g.doOnce(ctx, op, method, path, payload, token)
		if err == nil {
			return data, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
		log.Printf("GATEWAY_RETRY | op=%s attempt=%d error=%v", op, attempt+1, err)
	}

	return nil, lastErr
}

func (g *HTTPGateway) doOnce(ctx context.Context, op, method, path string, payload []byte, token string) ([]byte, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req, token)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	log.Printf("GATEWAY_RESPONSE | op=%s status=%d duration=%v", op, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	data, err := readResponse(resp)
	if err != nil {
		return nil, &RequestError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(op, resp.StatusCode, data)
	}
	return data, nil
}

func (g *HTTPGateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (g *HTTPGateway) setHeaders(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// readResponse reads at most MaxResponseSize bytes.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// errorFromResponse maps an HTTP error status to a RequestError wrapping
// the matching sentinel.
func errorFromResponse(op string, status int, body []byte) error {
	msg := ""
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) < 512 {
		msg = s
	}

	var sentinel error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrAuthRequired
	case http.StatusNotFound:
		sentinel = ErrModelNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &RequestError{Op: op, Status: status, Message: msg, Err: sentinel}
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status >= 500 && reqErr.Status < 600
	}
	return false
}

func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
