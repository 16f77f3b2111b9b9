// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/jeranaias/rigchat/internal/gateway"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// INPUT
// =============================================================================

// SetInput replaces the pending input text.
func (o *Orchestrator) SetInput(s string) {
	o.mu.Lock()
	o.input = s
	o.unlock()
}

// Input returns the pending input text.
func (o *Orchestrator) Input() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input
}

// SetImageURL sets the image to analyze with the next submission.
func (o *Orchestrator) SetImageURL(url string) {
	o.mu.Lock()
	o.imageURL = url
	o.unlock()
}

// Attach adds a file to the next text submission.
func (o *Orchestrator) Attach(a model.Attachment) {
	o.mu.Lock()
	o.attachments = append(o.attachments, a)
	o.unlock()
}

// SetMode selects the submission mode. Capability checks happen on submit.
func (o *Orchestrator) SetMode(mode model.Mode) {
	o.mu.Lock()
	o.mode = mode
	o.unlock()
}

// =============================================================================
// MODEL AND FLAGS
// =============================================================================

// SetModel selects a model. A mode the model cannot serve falls back to
// text, and the function and streaming toggles follow the capabilities.
func (o *Orchestrator) SetModel(id string) {
	o.mu.Lock()
	caps := model.Lookup(id)
	o.modelID = id
	if !o.mode.SupportedBy(caps) {
		o.mode = model.ModeText
	}
	o.enableFuncs = caps.Functions
	o.enableSteam = caps.Streaming
	o.unlock()
	log.Printf("MODEL_SELECTED | model=%s functions=%t streaming=%t", id, caps.Functions, caps.Streaming)
}

// SetEnableFunctions toggles tool use for capable models.
func (o *Orchestrator) SetEnableFunctions(on bool) {
	o.mu.Lock()
	o.enableFuncs = on
	o.unlock()
}

// SetEnableStreaming toggles streaming for capable models.
func (o *Orchestrator) SetEnableStreaming(on bool) {
	o.mu.Lock()
	o.enableSteam = on
	o.unlock()
}

// =============================================================================
// MESSAGE ACTIONS
// =============================================================================

// Resend copies a message's content into the input unchanged.
func (o *Orchestrator) Resend(id string) error {
	o.mu.Lock()
	msg := o.conv.Get(id)
	if msg == nil {
		o.mu.Unlock()
		return fmt.Errorf("resend %s: %w", id, model.ErrMessageNotFound)
	}
	o.input = msg.Content
	o.unlock()
	return nil
}

// Copy returns a message's content and writes it to the clipboard when one
// is configured.
func (o *Orchestrator) Copy(id string) (string, error) {
	o.mu.Lock()
	msg := o.conv.Get(id)
	if msg == nil {
		o.mu.Unlock()
		return "", fmt.Errorf("copy %s: %w", id, model.ErrMessageNotFound)
	}
	content := msg.Content
	clip := o.clipboard
	o.mu.Unlock()

	if clip != nil {
		if err := clip.WriteAll(content); err != nil {
			return content, fmt.Errorf("copy %s: %w", id, err)
		}
	}
	return content, nil
}

// Delete removes a message.
func (o *Orchestrator) Delete(id string) error {
	o.mu.Lock()
	if !o.conv.Delete(id) {
		o.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, model.ErrMessageNotFound)
	}
	o.emitLocked(EventMessage, id, "")
	o.unlock()
	return nil
}

// NewChat discards the conversation and the pending input. A submission in
// flight keeps running but its result is dropped.
func (o *Orchestrator) NewChat() {
	o.mu.Lock()
	o.resetLocked()
	o.unlock()
	log.Printf("NEW_CHAT")
}

// resetLocked clears the session and returns to Idle.
func (o *Orchestrator) resetLocked() {
	o.resetConversationLocked()
	o.input = ""
	o.imageURL = ""
	o.attachments = nil
	o.errMsg = ""
	o.mode = model.ModeText
	o.loading = false
	if o.state != StateIdle {
		o.transitionLocked(StateIdle)
	} else {
		o.emitLocked(EventMessage, "", "")
	}
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Refresh re-reads the gateway's sign-in state.
func (o *Orchestrator) Refresh(ctx context.Context) {
	if o.gw == nil {
		return
	}
	signedIn := o.gw.IsSignedIn(ctx)
	o.mu.Lock()
	if signedIn != o.signedIn {
		o.signedIn = signedIn
		o.resetLocked()
	}
	o.unlock()
}

// SignIn authenticates with the gateway and starts an empty conversation.
func (o *Orchestrator) SignIn(ctx context.Context, creds gateway.Credentials) (*gateway.User, error) {
	if o.gw == nil {
		return nil, ErrUnavailable
	}
	user, err := o.gw.SignIn(ctx, creds)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.signedIn = true
	o.resetLocked()
	o.unlock()
	return user, nil
}

// SignOut ends the gateway session and destroys the conversation.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	var err error
	if o.gw != nil {
		err = o.gw.SignOut(ctx)
	}
	o.mu.Lock()
	o.signedIn = false
	o.resetLocked()
	o.unlock()
	return err
}

// =============================================================================
// STATE ACCESS
// =============================================================================

// Error returns the visible error string.
func (o *Orchestrator) Error() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errMsg
}

// ClearError dismisses the visible error.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	o.errMsg = ""
	o.unlock()
}

// Loading reports whether a submission is in flight.
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns a copy of the session state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Conversation returns a copy of the conversation.
func (o *Orchestrator) Conversation() *model.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv.Clone()
}
