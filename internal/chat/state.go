// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"

	"github.com/jeranaias/rigchat/internal/gateway"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// STATES
// =============================================================================

// State is the orchestrator's position in a submission.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateStreaming
	StateAwaitingToolResult
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateDispatching:        "dispatching",
	StateStreaming:          "streaming",
	StateAwaitingToolResult: "awaiting_tool_result",
	StateCompleted:          "completed",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// =============================================================================
// EVENTS
// =============================================================================

// EventType distinguishes what an Event reports.
type EventType int

const (
	// EventTransition is a state change.
	EventTransition EventType = iota

	// EventMessage means a message was added, replaced or removed.
	EventMessage

	// EventChunk is a streamed content delta.
	EventChunk
)

// Event is delivered to observers after the orchestrator releases its lock.
type Event struct {
	Type EventType

	// From and To are set for transitions.
	From State
	To   State

	// MessageID and Chunk are set for message and chunk events.
	MessageID string
	Chunk     string

	Snapshot Snapshot
}

// Observer receives orchestrator events.
type Observer func(Event)

// Snapshot is an immutable view of the orchestrator.
type Snapshot struct {
	State           State
	Messages        []*model.Message // newest first
	Input           string
	ImageURL        string
	Attachments     []model.Attachment
	Mode            model.Mode
	Model           string
	EnableFunctions bool
	EnableStreaming bool
	Loading         bool
	Error           string
	SignedIn        bool
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput rejects a submission with nothing to send.
	ErrEmptyInput = errors.New("nothing to send")

	// ErrBusy rejects a submission while another is in flight.
	ErrBusy = errors.New("a request is already in progress")

	// ErrUnavailable rejects a submission when no gateway is configured.
	ErrUnavailable = gateway.ErrUnavailable

	// ErrAuthRequired rejects a submission from a signed-out session.
	ErrAuthRequired = gateway.ErrAuthRequired

	// ErrAbandoned is returned when NewChat or SignOut discarded the
	// in-flight result.
	ErrAbandoned = errors.New("conversation was reset before the reply arrived")
)

// CapabilityError is a submission the selected model cannot serve.
type CapabilityError struct {
	Model  string
	Mode   model.Mode
	Reason string
}

func (e *CapabilityError) Error() string {
	return e.Reason
}

// Error message prefixes by mode.
const (
	prefixText          = "Error: "
	prefixImageGen      = "Image generation failed: "
	prefixImageAnalysis = "Image analysis failed: "
)

func errorPrefix(mode model.Mode) string {
	switch mode {
	case model.ModeImageGen:
		return prefixImageGen
	case model.ModeImageAnalysis:
		return prefixImageAnalysis
	default:
		return prefixText
	}
}
