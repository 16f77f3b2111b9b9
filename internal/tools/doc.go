// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the local function-calling registry.
//
// When a tool-capable model answers with a tool call, the chat orchestrator
// runs exactly one function from this package and sends its JSON result
// back on a follow-up request.
//
// # Key Types
//
//   - Tool: function definition with name, description and parameters
//   - Registry: name to Tool lookup plus gateway schema export
//   - Executor: validates arguments, applies a timeout, records history
//   - Result: JSON output; failures are {"error": "..."} with IsError set
//
// # Available Tools
//
//   - get_weather: fixed weather table for a handful of cities
//   - calculate: arithmetic evaluated by a recursive-descent parser
//   - get_current_time: ISO timestamp, local time and zone name
package tools
