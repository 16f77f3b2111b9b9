// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the chat
// orchestrator, the CLI and the TUI.
//
// # Key Types
//
//   - Conversation: newest-first log of messages with unique IDs
//   - Message: single entry with role (user, assistant, error) and optional
//     image, attachment and function metadata
//   - Capabilities: static per-model feature flags
//   - GateResult: Allowed or Denied(reason) from the capability gate
//
// # Usage
//
//	conv := model.NewConversation()
//	_ = conv.Prepend(model.NewMessage(ids.NextID(), model.RoleUser, "Hello!"))
//
//	res := model.Gate(model.Lookup("gpt-5"), model.GateInput{
//	    Model: "gpt-5", Mode: model.ModeImageAnalysis, HasPrompt: true,
//	})
//	if !res.IsAllowed() {
//	    fmt.Println(res.Reason())
//	}
package model
