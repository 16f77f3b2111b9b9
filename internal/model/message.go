// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// IsConversational reports whether messages with this role are sent back
// to the gateway as history.
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// MessageType tags messages that carry image payloads.
type MessageType string

const (
	TypeNone                   MessageType = ""
	TypeImage                  MessageType = "image"
	TypeImageAnalysis          MessageType = "image-analysis"
	TypeImageAnalysisRequest   MessageType = "image-analysis-request"
	TypeImageGenerationRequest MessageType = "image-generation-request"
)

// Attachment describes a file attached to a user message.
type Attachment struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // MIME type
	Size int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

// IsImage reports whether the attachment has an image MIME type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.Type, "image/")
}

// Message represents a single entry in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Content
	Content string `json:"content" yaml:"content"`

	// Optional metadata
	Model        string       `json:"model,omitempty" yaml:"model,omitempty"`
	FunctionUsed string       `json:"function_used,omitempty" yaml:"function_used,omitempty"`
	Type         MessageType  `json:"type,omitempty" yaml:"type,omitempty"`
	ImageURL     string       `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Files        []Attachment `json:"files,omitempty" yaml:"files,omitempty"`

	// IsStreaming is set while a streamed reply is still arriving.
	IsStreaming bool `json:"-" yaml:"-"`
}

// NewMessage creates a new message with the given ID, role and content.
func NewMessage(id string, role Role, content string) *Message {
	return &Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Files != nil {
		c.Files = append([]Attachment(nil), m.Files...)
	}
	return &c
}

// Preview returns a truncated preview of the message content.
func (m *Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// TimeLabel returns the short wall-clock label shown above a message.
func (m *Message) TimeLabel() string {
	return m.Timestamp.Format("3:04 PM")
}

// =============================================================================
// ID GENERATION
// =============================================================================

// IDGenerator produces message IDs. Each orchestrator owns one so that
// independent sessions never share a counter.
type IDGenerator interface {
	NextID() string
}

// ULIDs generates lexically sortable "msg_<ULID>" identifiers.
type ULIDs struct{}

// NextID returns a new ULID-based message ID.
func (ULIDs) NextID() string {
	return "msg_" + ulid.Make().String()
}

// SequenceIDs generates "msg_1", "msg_2", ... and is safe for concurrent use.
type SequenceIDs struct {
	n atomic.Int64
}

// NextID returns the next sequential ID.
func (s *SequenceIDs) NextID() string {
	return fmt.Sprintf("msg_%d", s.n.Add(1))
}
