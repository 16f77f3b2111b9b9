// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs conversation turns against a gateway.
//
// An Orchestrator owns the newest-first conversation, the pending input and
// a small state machine:
//
//	Idle -> Dispatching -> Streaming | AwaitingToolResult | Completed -> Idle
//
// with Failed reachable from every non-idle state. Capability checks run
// before any network call. Observers registered with Subscribe receive
// events and snapshots after the internal lock is released, so they may
// call back into the orchestrator.
package chat
