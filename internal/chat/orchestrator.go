// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/rigchat/internal/gateway"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/tools"
)

// Fixed texts shown to the user.
const (
	ThinkingPlaceholder  = "🧠 Thinking deeply about this..."
	DefaultAnalysisInput = "Analyze this image"
	DefaultVisionPrompt  = "Describe this image in detail. What objects, people, or scenes do you see?"
)

// Clipboard receives copied message content.
type Clipboard interface {
	WriteAll(text string) error
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns one chat session: the conversation, the pending input
// and the submission state machine. All methods are safe for concurrent
// use; at most one submission is in flight.
type Orchestrator struct {
	mu sync.Mutex

	gw        gateway.Gateway
	executor  *tools.Executor
	usage     *telemetry.UsageTracker
	ids       model.IDGenerator
	clipboard Clipboard

	systemPrompt string

	conv        *model.Conversation
	generation  uint64
	state       State
	input       string
	imageURL    string
	attachments []model.Attachment
	mode        model.Mode
	modelID     string
	enableFuncs bool
	enableSteam bool
	loading     bool
	errMsg      string
	signedIn    bool

	observers map[int]Observer
	nextObs   int
	pending   []Event
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithIDs replaces the ULID message ID generator.
func WithIDs(ids model.IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = ids }
}

// WithTools enables local function execution.
func WithTools(e *tools.Executor) Option {
	return func(o *Orchestrator) { o.executor = e }
}

// WithUsage enables token accounting.
func WithUsage(u *telemetry.UsageTracker) Option {
	return func(o *Orchestrator) { o.usage = u }
}

// WithClipboard sets the Copy target.
func WithClipboard(c Clipboard) Option {
	return func(o *Orchestrator) { o.clipboard = c }
}

// WithModel selects the initial model.
func WithModel(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.modelID = id
		}
	}
}

// WithSystemPrompt prepends a system message to every text payload.
func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) { o.systemPrompt = strings.TrimSpace(p) }
}

// WithObserver registers an observer at construction.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observers[o.nextObs] = obs
		o.nextObs++
	}
}

// New creates an orchestrator over gw. The session starts signed in with
// an empty conversation when the gateway has credentials, and otherwise
// shows the demo history.
func New(gw gateway.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:        gw,
		ids:       model.ULIDs{},
		modelID:   model.DefaultModel,
		mode:      model.ModeText,
		state:     StateIdle,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(o)
	}

	caps := model.Lookup(o.modelID)
	o.enableFuncs = caps.Functions
	o.enableSteam = caps.Streaming

	if gw != nil {
		o.signedIn = gw.IsSignedIn(context.Background())
	}
	o.resetConversationLocked()
	return o
}

// Subscribe registers obs and returns a function that removes it.
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = obs
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.observers, id)
	}
}

// resetConversationLocked starts a new conversation: empty when signed in,
// seeded with the demo history otherwise.
func (o *Orchestrator) resetConversationLocked() {
	o.generation++
	o.conv = model.NewConversation()
	o.conv.Model = o.modelID
	if !o.signedIn {
		demo := model.DemoHistory()
		for i := len(demo) - 1; i >= 0; i-- {
			_ = o.conv.Prepend(demo[i])
		}
	}
}

// =============================================================================
// LOCKING AND EVENTS
// =============================================================================

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:           o.state,
		Messages:        o.conv.Messages(),
		Input:           o.input,
		ImageURL:        o.imageURL,
		Attachments:     append([]model.Attachment(nil), o.attachments...),
		Mode:            o.mode,
		Model:           o.modelID,
		EnableFunctions: o.enableFuncs,
		EnableStreaming: o.enableSteam,
		Loading:         o.loading,
		Error:           o.errMsg,
		SignedIn:        o.signedIn,
	}
}

func (o *Orchestrator) transitionLocked(to State) {
	from := o.state
	o.state = to
	o.pending = append(o.pending, Event{Type: EventTransition, From: from, To: to, Snapshot: o.snapshotLocked()})
}

func (o *Orchestrator) emitLocked(typ EventType, msgID, chunk string) {
	o.pending = append(o.pending, Event{Type: typ, MessageID: msgID, Chunk: chunk, Snapshot: o.snapshotLocked()})
}

// unlock releases the lock and then delivers queued events.
func (o *Orchestrator) unlock() {
	events := o.pending
	o.pending = nil
	observers := make([]Observer, 0, len(o.observers))
	for i := 0; i < o.nextObs; i++ {
		if obs, ok := o.observers[i]; ok {
			observers = append(observers, obs)
		}
	}
	o.mu.Unlock()

	for _, e := range events {
		for _, obs := range observers {
			obs(e)
		}
	}
}

// =============================================================================
// SUBMISSION
// =============================================================================

// submission carries one request through the state machine.
type submission struct {
	gen      uint64
	mode     model.Mode
	modelID  string
	caps     model.Capabilities
	input    string
	imageURL string
	files    []model.Attachment
	payload  []gateway.ChatMessage
	stream   bool
	useTools bool
	userMsg  *model.Message
}

// Submit sends the pending input in the current mode. It returns the
// message that resolved the turn: the assistant reply or the error message.
// Rejected submissions return ErrEmptyInput, ErrBusy, ErrUnavailable,
// ErrAuthRequired or a
// *CapabilityError and change nothing in the conversation.
func (o *Orchestrator) Submit(ctx context.Context) (*model.Message, error) {
	o.mu.Lock()

	hasInput := strings.TrimSpace(o.input) != ""
	hasImage := strings.TrimSpace(o.imageURL) != ""
	switch {
	case !hasInput && !(o.mode == model.ModeImageAnalysis && hasImage):
		o.mu.Unlock()
		return nil, ErrEmptyInput
	case o.loading:
		o.mu.Unlock()
		return nil, ErrBusy
	case o.gw == nil:
		o.mu.Unlock()
		return nil, ErrUnavailable
	case !o.signedIn:
		o.mu.Unlock()
		return nil, ErrAuthRequired
	}

	o.loading = true
	o.errMsg = ""
	o.transitionLocked(StateDispatching)

	caps := model.Lookup(o.modelID)
	gate := model.Gate(caps, model.GateInput{
		Model:     o.modelID,
		Mode:      o.mode,
		HasPrompt: hasInput,
		HasImage:  hasImage,
	})
	if !gate.IsAllowed() {
		capErr := &CapabilityError{Model: o.modelID, Mode: o.mode, Reason: gate.Reason()}
		o.errMsg = gate.Reason()
		o.loading = false
		o.transitionLocked(StateFailed)
		o.transitionLocked(StateIdle)
		mode := o.mode
		o.unlock()
		telemetry.RecordSubmission(string(mode), "denied")
		log.Printf("SUBMISSION_DENIED | model=%s mode=%s", capErr.Model, capErr.Mode)
		return nil, capErr
	}

	sub := &submission{
		gen:      o.generation,
		mode:     o.mode,
		modelID:  o.modelID,
		caps:     caps,
		input:    o.input,
		imageURL: o.imageURL,
		files:    append([]model.Attachment(nil), o.attachments...),
		stream:   caps.Streaming && o.enableSteam,
		useTools: caps.Functions && o.enableFuncs && o.executor != nil,
	}
	if sub.mode == model.ModeText {
		sub.payload = o.buildPayloadLocked(sub.input)
	}

	sub.userMsg = o.userMessageLocked(sub)
	if err := o.conv.Prepend(sub.userMsg); err != nil {
		o.loading = false
		o.transitionLocked(StateFailed)
		o.transitionLocked(StateIdle)
		o.unlock()
		return nil, err
	}
	o.input = ""
	o.imageURL = ""
	o.attachments = nil
	o.emitLocked(EventMessage, sub.userMsg.ID, "")
	o.unlock()

	ctx, span := telemetry.StartSpan(ctx, "chat.submit",
		telemetry.AttrModel.String(sub.modelID),
		telemetry.AttrMode.String(string(sub.mode)),
		telemetry.AttrMessageID.String(sub.userMsg.ID),
		telemetry.AttrStreaming.Bool(sub.stream && sub.mode == model.ModeText),
	)

	var (
		msg *model.Message
		err error
	)
	switch sub.mode {
	case model.ModeImageGen:
		msg, err = o.runImageGeneration(ctx, sub)
	case model.ModeImageAnalysis:
		msg, err = o.runImageAnalysis(ctx, sub)
	default:
		if sub.stream {
			msg, err = o.runStreaming(ctx, sub)
		} else {
			msg, err = o.runCompletion(ctx, sub)
		}
	}
	telemetry.EndSpan(span, err)

	outcome := "completed"
	switch {
	case errors.Is(err, ErrAbandoned):
		outcome = "abandoned"
	case err != nil:
		outcome = "failed"
	}
	telemetry.RecordSubmission(string(sub.mode), outcome)
	return msg, err
}

// buildPayloadLocked returns the prior log in chronological order, limited
// to user and assistant turns, followed by the new user turn.
func (o *Orchestrator) buildPayloadLocked(input string) []gateway.ChatMessage {
	history := o.conv.Chronological()
	payload := make([]gateway.ChatMessage, 0, len(history)+2)
	if o.systemPrompt != "" {
		payload = append(payload, gateway.ChatMessage{Role: gateway.RoleSystem, Content: o.systemPrompt})
	}
	for _, m := range history {
		if !m.Role.IsConversational() {
			continue
		}
		payload = append(payload, gateway.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(payload, gateway.ChatMessage{Role: gateway.RoleUser, Content: input})
}

func (o *Orchestrator) userMessageLocked(sub *submission) *model.Message {
	msg := model.NewMessage(o.ids.NextID(), model.RoleUser, sub.input)
	switch sub.mode {
	case model.ModeImageGen:
		msg.Content = fmt.Sprintf("🎨 Generate image: %q", sub.input)
		msg.Type = model.TypeImageGenerationRequest
	case model.ModeImageAnalysis:
		if strings.TrimSpace(sub.input) == "" {
			msg.Content = DefaultAnalysisInput
		}
		msg.Type = model.TypeImageAnalysisRequest
		msg.ImageURL = sub.imageURL
	default:
		msg.Files = sub.files
	}
	return msg
}

// =============================================================================
// TEXT: NON-STREAMING
// =============================================================================

func (o *Orchestrator) runCompletion(ctx context.Context, sub *submission) (*model.Message, error) {
	req := gateway.ChatRequest{Model: sub.modelID, Messages: sub.payload}
	if sub.useTools {
		req.Tools = o.executor.Registry().Definitions()
	}

	// Reasoning models show a placeholder that the reply replaces in place.
	var placeholderID string
	if sub.caps.Reasoning {
		o.mu.Lock()
		if o.generation != sub.gen {
			o.unlock()
			return nil, ErrAbandoned
		}
		ph := model.NewMessage(o.ids.NextID(), model.RoleAssistant, ThinkingPlaceholder)
		ph.Model = sub.modelID
		if err := o.conv.Prepend(ph); err == nil {
			placeholderID = ph.ID
			o.emitLocked(EventMessage, ph.ID, "")
		}
		o.unlock()
	}

	resp, err := o.gw.Chat(ctx, req)
	if err != nil {
		return o.fail(sub, placeholderID, err)
	}

	content := resp.Message.Content
	functionUsed := ""
	if sub.useTools && resp.HasToolCalls() {
		content, functionUsed, err = o.runToolRound(ctx, sub, req, resp)
		if err != nil {
			return o.fail(sub, placeholderID, err)
		}
	}

	reply := &model.Message{
		Role:         model.RoleAssistant,
		Content:      content,
		Model:        sub.modelID,
		FunctionUsed: functionUsed,
	}
	msg, err := o.complete(sub, placeholderID, reply)
	if err == nil {
		o.trackUsage(ctx, sub, content)
	}
	return msg, err
}

// runToolRound executes the first requested call and sends one follow-up
// without tools. Calls in the follow-up reply are ignored.
func (o *Orchestrator) runToolRound(ctx context.Context, sub *submission, req gateway.ChatRequest, resp *gateway.ChatResponse) (string, string, error) {
	o.mu.Lock()
	if o.generation != sub.gen {
		o.unlock()
		return "", "", ErrAbandoned
	}
	o.transitionLocked(StateAwaitingToolResult)
	o.unlock()

	call := resp.Message.ToolCalls[0].Local()
	toolCtx, span := telemetry.StartSpan(ctx, "tool.execute", telemetry.AttrToolName.String(call.Name))
	result := o.executor.Execute(toolCtx, call)
	telemetry.EndSpan(span, nil)
	telemetry.RecordToolCall(call.Name, result.IsError)
	log.Printf("TOOL_EXECUTED | name=%s error=%t duration=%v", call.Name, result.IsError, result.Duration)

	assistant := resp.Message
	assistant.Role = gateway.RoleAssistant

	followUp := gateway.ChatRequest{
		Model: req.Model,
		Messages: append(append([]gateway.ChatMessage(nil), req.Messages...),
			assistant,
			gateway.ChatMessage{Role: gateway.RoleTool, ToolCallID: call.ID, Content: result.Output},
		),
	}

	final, err := o.gw.Chat(ctx, followUp)
	if err != nil {
		return "", "", err
	}
	return final.Message.Content, call.Name, nil
}

// =============================================================================
// TEXT: STREAMING
// =============================================================================

func (o *Orchestrator) runStreaming(ctx context.Context, sub *submission) (*model.Message, error) {
	req := gateway.ChatRequest{Model: sub.modelID, Messages: sub.payload}
	if sub.useTools {
		req.Tools = o.executor.Registry().Definitions()
	}

	o.mu.Lock()
	if o.generation != sub.gen {
		o.unlock()
		return nil, ErrAbandoned
	}
	ph := model.NewMessage(o.ids.NextID(), model.RoleAssistant, "")
	ph.Model = sub.modelID
	ph.IsStreaming = true
	if err := o.conv.Prepend(ph); err != nil {
		o.unlock()
		return o.fail(sub, "", err)
	}
	placeholderID := ph.ID
	o.transitionLocked(StateStreaming)
	o.emitLocked(EventMessage, placeholderID, "")
	o.unlock()

	stream, err := o.gw.ChatStream(ctx, req)
	if err != nil {
		return o.fail(sub, placeholderID, err)
	}

	var b strings.Builder
	content, streamErr := gateway.Collect(ctx, stream, func(chunk string) {
		b.WriteString(chunk)
		o.mu.Lock()
		if o.generation == sub.gen {
			if err := o.conv.UpdateContent(placeholderID, b.String()); err == nil {
				o.emitLocked(EventChunk, placeholderID, chunk)
			}
		}
		o.unlock()
	})

	if streamErr != nil {
		o.mu.Lock()
		if o.generation == sub.gen {
			if m := o.conv.Get(placeholderID); m != nil {
				m.IsStreaming = false
				m.Content = content
			}
		}
		o.unlock()
		if content == "" {
			return o.fail(sub, placeholderID, streamErr)
		}
		return o.fail(sub, "", streamErr)
	}

	reply := &model.Message{Role: model.RoleAssistant, Content: content, Model: sub.modelID}
	msg, err := o.complete(sub, placeholderID, reply)
	if err == nil {
		o.trackUsage(ctx, sub, content)
	}
	return msg, err
}

// =============================================================================
// IMAGES
// =============================================================================

func (o *Orchestrator) runImageGeneration(ctx context.Context, sub *submission) (*model.Message, error) {
	img, err := o.gw.GenerateImage(ctx, sub.input)
	if err != nil {
		return o.fail(sub, "", err)
	}
	return o.complete(sub, "", &model.Message{
		Role:     model.RoleAssistant,
		Content:  fmt.Sprintf("Generated image: %q", sub.input),
		Model:    gateway.ImageModel,
		Type:     model.TypeImage,
		ImageURL: img.URL,
	})
}

func (o *Orchestrator) runImageAnalysis(ctx context.Context, sub *submission) (*model.Message, error) {
	prompt := sub.input
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultVisionPrompt
	}
	text, err := o.gw.AnalyzeImage(ctx, sub.modelID, prompt, sub.imageURL)
	if err != nil {
		return o.fail(sub, "", err)
	}
	return o.complete(sub, "", &model.Message{
		Role:    model.RoleAssistant,
		Content: text,
		Model:   sub.modelID,
		Type:    model.TypeImageAnalysis,
	})
}

// =============================================================================
// RESOLUTION
// =============================================================================

// complete commits reply, replacing the placeholder when there is one.
func (o *Orchestrator) complete(sub *submission, placeholderID string, reply *model.Message) (*model.Message, error) {
	o.mu.Lock()
	if o.generation != sub.gen {
		o.unlock()
		return nil, ErrAbandoned
	}

	if placeholderID != "" && o.conv.Get(placeholderID) != nil {
		reply.ID = placeholderID
		reply.Timestamp = o.conv.Get(placeholderID).Timestamp
		_ = o.conv.Replace(reply)
	} else {
		id := reply.ID
		if id == "" {
			id = o.ids.NextID()
		}
		msg := model.NewMessage(id, reply.Role, reply.Content)
		msg.Model, msg.FunctionUsed, msg.Type, msg.ImageURL = reply.Model, reply.FunctionUsed, reply.Type, reply.ImageURL
		reply = msg
		_ = o.conv.Prepend(reply)
	}

	o.loading = false
	o.emitLocked(EventMessage, reply.ID, "")
	o.transitionLocked(StateCompleted)
	o.transitionLocked(StateIdle)
	out := reply.Clone()
	o.unlock()
	return out, nil
}

// fail commits exactly one error message and returns err. An empty
// placeholder left by the attempt is removed.
func (o *Orchestrator) fail(sub *submission, placeholderID string, err error) (*model.Message, error) {
	o.mu.Lock()
	if o.generation != sub.gen {
		o.unlock()
		return nil, ErrAbandoned
	}

	if placeholderID != "" {
		if o.conv.Delete(placeholderID) {
			o.emitLocked(EventMessage, placeholderID, "")
		}
	}

	content := errorPrefix(sub.mode) + gateway.Message(err)
	msg := model.NewMessage(o.ids.NextID(), model.RoleError, content)
	msg.Model = sub.modelID
	_ = o.conv.Prepend(msg)

	o.errMsg = content
	o.loading = false
	o.emitLocked(EventMessage, msg.ID, "")
	o.transitionLocked(StateFailed)
	o.transitionLocked(StateIdle)
	out := msg.Clone()
	o.unlock()

	log.Printf("SUBMISSION_FAILED | model=%s mode=%s error=%v", sub.modelID, sub.mode, err)
	return out, err
}

// trackUsage adds the turn's estimated tokens. Failures are logged only.
func (o *Orchestrator) trackUsage(ctx context.Context, sub *submission, reply string) {
	if o.usage == nil {
		return
	}
	n := telemetry.EstimateTokens(sub.input, sub.files) + telemetry.EstimateTokens(reply, nil)
	if _, err := o.usage.Add(ctx, n); err != nil {
		log.Printf("USAGE_SAVE_FAILED | tokens=%d error=%v", n, err)
	}
}
