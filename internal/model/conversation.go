// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateID is returned when a message ID is already present.
var ErrDuplicateID = errors.New("duplicate message id")

// ErrMessageNotFound is returned when no message has the requested ID.
var ErrMessageNotFound = errors.New("message not found")

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a newest-first log of messages. Index 0 is the most recent
// entry. It is not safe for concurrent use; the owner serializes access.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`

	messages []*Message
	index    map[string]*Message
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		messages:  make([]*Message, 0),
		index:     make(map[string]*Message),
	}
}

// Prepend inserts msg as the newest entry.
func (c *Conversation) Prepend(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("prepend: nil message")
	}
	if _, exists := c.index[msg.ID]; exists {
		return fmt.Errorf("prepend %s: %w", msg.ID, ErrDuplicateID)
	}

	c.messages = append(c.messages, nil)
	copy(c.messages[1:], c.messages)
	c.messages[0] = msg
	c.index[msg.ID] = msg
	c.UpdatedAt = time.Now()

	if c.Title == "" && msg.Role == RoleUser {
		c.Title = msg.Preview(50)
	}
	return nil
}

// Get returns the message with the given ID, or nil.
func (c *Conversation) Get(id string) *Message {
	return c.index[id]
}

// UpdateContent replaces the content of an existing message in place.
// Only streaming replies use this; the message keeps its position and ID.
func (c *Conversation) UpdateContent(id, content string) error {
	msg, ok := c.index[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrMessageNotFound)
	}
	msg.Content = content
	c.UpdatedAt = time.Now()
	return nil
}

// Replace swaps the stored message that has msg.ID for msg.
func (c *Conversation) Replace(msg *Message) error {
	if _, ok := c.index[msg.ID]; !ok {
		return fmt.Errorf("replace %s: %w", msg.ID, ErrMessageNotFound)
	}
	for i, m := range c.messages {
		if m.ID == msg.ID {
			c.messages[i] = msg
			break
		}
	}
	c.index[msg.ID] = msg
	c.UpdatedAt = time.Now()
	return nil
}

// Delete removes the message with the given ID. Returns false if absent.
func (c *Conversation) Delete(id string) bool {
	if _, ok := c.index[id]; !ok {
		return false
	}
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	delete(c.index, id)
	c.UpdatedAt = time.Now()
	return true
}

// Clear removes every message.
func (c *Conversation) Clear() {
	c.messages = make([]*Message, 0)
	c.index = make(map[string]*Message)
	c.Title = ""
	c.UpdatedAt = time.Now()
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// IsEmpty reports whether the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.messages) == 0
}

// Messages returns copies of the messages, newest first.
func (c *Conversation) Messages() []*Message {
	out := make([]*Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Chronological returns copies of the messages, oldest first.
func (c *Conversation) Chronological() []*Message {
	n := len(c.messages)
	out := make([]*Message, n)
	for i, m := range c.messages {
		out[n-1-i] = m.Clone()
	}
	return out
}

// Newest returns the most recent message with the given role, or nil.
// An empty role matches any message.
func (c *Conversation) Newest(role Role) *Message {
	for _, m := range c.messages {
		if role == "" || m.Role == role {
			return m
		}
	}
	return nil
}

// At returns the message at newest-first position i, or nil.
func (c *Conversation) At(i int) *Message {
	if i < 0 || i >= len(c.messages) {
		return nil
	}
	return c.messages[i]
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Model:     c.Model,
		messages:  make([]*Message, len(c.messages)),
		index:     make(map[string]*Message, len(c.messages)),
	}
	for i, m := range c.messages {
		mc := m.Clone()
		clone.messages[i] = mc
		clone.index[mc.ID] = mc
	}
	return clone
}

// GetTitle returns the title, or a placeholder when none has been set.
func (c *Conversation) GetTitle() string {
	if c.Title == "" {
		return "New conversation"
	}
	return c.Title
}

// =============================================================================
// DEMO HISTORY
// =============================================================================

// DemoHistory returns the two-message sample shown before sign-in,
// newest first.
func DemoHistory() []*Message {
	day := time.Now()
	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
	}
	return []*Message{
		{
			ID:        "demo_2",
			Role:      RoleAssistant,
			Content:   "I'll create an AI chat app for you using hosted AI models with all the features you specified! This sounds like an exciting project with comprehensive functionality.",
			Timestamp: at(14, 31),
		},
		{
			ID:        "demo_1",
			Role:      RoleUser,
			Content:   "Build an AI chat app that works on desktop and mobile, with a model picker, newest messages on top, and resend, copy and delete buttons under every message.",
			Timestamp: at(14, 30),
		},
	}
}
