// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jeranaias/rigchat/internal/tools"
)

// DefaultGeminiModel serves requests for models Gemini does not know.
const DefaultGeminiModel = "gemini-2.0-flash"

// maxImageFetch caps downloaded images for analysis.
const maxImageFetch = 20 * 1024 * 1024

// GeminiGateway serves chat and vision through Google's Gemini API.
// Image generation is not available on this backend.
type GeminiGateway struct {
	creds        *CredentialStore
	defaultModel string
	httpClient   *http.Client

	mu     sync.RWMutex
	apiKey string
}

// Ensure GeminiGateway implements Gateway.
var _ Gateway = (*GeminiGateway)(nil)

// NewGeminiGateway creates a Gemini backend. A key stored in creds takes
// precedence over apiKey.
func NewGeminiGateway(apiKey string, creds *CredentialStore) *GeminiGateway {
	g := &GeminiGateway{
		creds:        creds,
		defaultModel: DefaultGeminiModel,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		apiKey:       strings.TrimSpace(apiKey),
	}
	if stored, err := creds.Load(); err != nil {
		log.Printf("CREDENTIALS_LOAD_FAILED | path=%s error=%v", creds.Path(), err)
	} else if stored != nil {
		g.apiKey = stored.Token
	}
	return g
}

// WithDefaultModel sets the model used for non-Gemini model ids.
func (g *GeminiGateway) WithDefaultModel(name string) *GeminiGateway {
	if name != "" {
		g.defaultModel = name
	}
	return g
}

func (g *GeminiGateway) key() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.apiKey
}

func (g *GeminiGateway) client(ctx context.Context) (*genai.Client, error) {
	key := g.key()
	if key == "" {
		return nil, ErrAuthRequired
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrUnavailable, err)
	}
	return client, nil
}

// modelName maps a rigchat model id to a Gemini model name.
func (g *GeminiGateway) modelName(id string) string {
	id = strings.TrimPrefix(id, "google/")
	if strings.HasPrefix(id, "gemini") {
		return id
	}
	return g.defaultModel
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func (g *GeminiGateway) IsSignedIn(_ context.Context) bool {
	return g.key() != ""
}

// SignIn verifies the API key by listing models, then stores it.
func (g *GeminiGateway) SignIn(ctx context.Context, creds Credentials) (*User, error) {
	token := strings.TrimSpace(creds.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrAuthRequired)
	}

	g.mu.Lock()
	previous := g.apiKey
	g.apiKey = token
	g.mu.Unlock()

	if _, err := g.ListModels(ctx); err != nil {
		g.mu.Lock()
		g.apiKey = previous
		g.mu.Unlock()
		return nil, err
	}

	stored := &StoredCredentials{Token: token, Username: usernameFor(creds), SignedInAt: time.Now().UTC()}
	if err := g.creds.Save(stored); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	log.Printf("SIGNED_IN | user=%s key=%s backend=gemini", stored.Username, Fingerprint(token))
	return stored.User(), nil
}

func (g *GeminiGateway) SignOut(_ context.Context) error {
	g.mu.Lock()
	g.apiKey = ""
	g.mu.Unlock()
	return g.creds.Clear()
}

func (g *GeminiGateway) CurrentUser(_ context.Context) (*User, error) {
	if stored, err := g.creds.Load(); err == nil && stored != nil {
		return stored.User(), nil
	}
	if key := g.key(); key != "" {
		return &User{Username: "api-key-" + Fingerprint(key)}, nil
	}
	return nil, ErrAuthRequired
}

// =============================================================================
// MODELS
// =============================================================================

func (g *GeminiGateway) ListModels(ctx context.Context) ([]RemoteModel, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var out []RemoteModel
	it := client.ListModels(ctx)
	for {
		info, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, geminiError(OpListModels, err)
		}
		out = append(out, RemoteModel{
			ID:            strings.TrimPrefix(info.Name, "models/"),
			Name:          info.DisplayName,
			ContextLength: int(info.InputTokenLimit),
			OwnedBy:       "Google",
		})
	}
	return out, nil
}

// =============================================================================
// CHAT
// =============================================================================

func (g *GeminiGateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, last, err := g.prepare(client, req)
	if err != nil {
		return nil, err
	}

	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, geminiError(OpChat, err)
	}
	return toChatResponse(resp), nil
}

func (g *GeminiGateway) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}

	session, last, err := g.prepare(client, req)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &geminiStream{
		client: client,
		iter:   session.SendMessageStream(ctx, last...),
	}, nil
}

// prepare builds a chat session whose history holds every message but the
// last, which is returned as the parts to send.
func (g *GeminiGateway) prepare(client *genai.Client, req ChatRequest) (*genai.ChatSession, []genai.Part, error) {
	gm := client.GenerativeModel(g.modelName(req.Model))
	if len(req.Tools) > 0 {
		gm.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}

	contents, system := toContents(req.Messages)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(contents) == 0 {
		return nil, nil, &RequestError{Op: OpChat, Message: "no messages to send"}
	}

	session := gm.StartChat()
	session.History = contents[:len(contents)-1]
	return session, contents[len(contents)-1].Parts, nil
}

// toContents converts the payload into Gemini turns and collects system
// messages into one instruction.
func toContents(msgs []ChatMessage) ([]*genai.Content, string) {
	var system []string
	var out []*genai.Content
	callNames := make(map[string]string)

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Function.Name
				args := make(map[string]any)
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Function.Name, Args: args})
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: "model", Parts: parts})
			}
		case RoleTool:
			response := make(map[string]any)
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{
				genai.FunctionResponse{Name: callNames[m.ToolCallID], Response: response},
			}})
		}
	}
	return out, strings.Join(system, "\n\n")
}

func toFunctionDeclarations(defs []tools.Definition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(d.Function.Parameters.Properties)),
			Required:   d.Function.Parameters.Required,
		}
		for name, p := range d.Function.Parameters.Properties {
			schema.Properties[name] = &genai.Schema{
				Type:        schemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Function.Name,
			Description: d.Function.Description,
			Parameters:  schema,
		})
	}
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func toChatResponse(resp *genai.GenerateContentResponse) *ChatResponse {
	out := &ChatResponse{Message: ChatMessage{Role: RoleAssistant}, FinishReason: "stop"}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out
	}

	cand := resp.Candidates[0]
	out.Message.Content = candidateText(cand)
	for i, fc := range cand.FunctionCalls() {
		out.Message.ToolCalls = append(out.Message.ToolCalls, NewToolCall(fmt.Sprintf("call_%d", i), fc.Name, fc.Args))
	}
	if len(out.Message.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out
}

func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// geminiStream adapts the response iterator to Stream.
type geminiStream struct {
	client  *genai.Client
	iter    *genai.GenerateContentResponseIterator
	partial strings.Builder
	done    bool
	once    sync.Once
}

func (s *geminiStream) Next(ctx context.Context) (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			s.done = true
			return "", &StreamError{Partial: s.partial.String(), Err: err}
		}

		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			s.done = true
			return "", &StreamError{Partial: s.partial.String(), Err: geminiError(OpChatStream, err)}
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		text := candidateText(resp.Candidates[0])
		if text == "" {
			continue
		}
		s.partial.WriteString(text)
		return text, nil
	}
}

func (s *geminiStream) Close() error {
	var err error
	s.once.Do(func() { err = s.client.Close() })
	return err
}

// =============================================================================
// IMAGES
// =============================================================================

// GenerateImage is not offered by the Gemini backend.
func (g *GeminiGateway) GenerateImage(_ context.Context, _ string) (*Image, error) {
	return nil, fmt.Errorf("%w: image generation on the gemini backend", ErrUnsupported)
}

// AnalyzeImage downloads the image and sends it inline with the prompt.
func (g *GeminiGateway) AnalyzeImage(ctx context.Context, modelID, prompt, imageURL string) (string, error) {
	client, err := g.client(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	parts := []genai.Part{genai.Text(prompt)}
	if imageURL != "" {
		format, data, err := g.fetchImage(ctx, imageURL)
		if err != nil {
			return "", &RequestError{Op: OpAnalyzeImage, Message: "could not load image", Err: err}
		}
		parts = append(parts, genai.ImageData(format, data))
	}

	resp, err := client.GenerativeModel(g.modelName(modelID)).GenerateContent(ctx, parts...)
	if err != nil {
		return "", geminiError(OpAnalyzeImage, err)
	}
	if len(resp.Candidates) == 0 {
		return "", &RequestError{Op: OpAnalyzeImage, Message: "no analysis returned"}
	}
	return candidateText(resp.Candidates[0]), nil
}

// fetchImage resolves a data URI or downloads a remote image. The returned
// format is the MIME subtype, e.g. "png".
func (g *GeminiGateway) fetchImage(ctx context.Context, imageURL string) (string, []byte, error) {
	if strings.HasPrefix(imageURL, "data:") {
		return decodeDataURI(imageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("image fetch returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageFetch+1))
	if err != nil {
		return "", nil, err
	}
	if len(data) > maxImageFetch {
		return "", nil, fmt.Errorf("image exceeds %d bytes", maxImageFetch)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return imageFormat(mediaType), data, nil
}

func decodeDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, errors.New("malformed data URI")
	}
	if !strings.HasSuffix(header, ";base64") {
		return "", nil, errors.New("data URI is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return imageFormat(strings.TrimSuffix(header, ";base64")), data, nil
}

func imageFormat(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "jpeg"
	}
	return strings.TrimPrefix(mt, "image/")
}

// geminiError maps Gemini API failures onto the gateway error kinds.
func geminiError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var gerr *googleapi.Error
	var coded interface{ HTTPCode() int }
	switch {
	case errors.As(err, &gerr):
		status = gerr.Code
	case errors.As(err, &coded):
		status = coded.HTTPCode()
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
	if sentinel == nil {
		return &RequestError{Op: op, Status: max(status, 0), Message: err.Error(), Err: err}
	}
	return &RequestError{Op: op, Status: status, Message: err.Error(), Err: sentinel}
}
