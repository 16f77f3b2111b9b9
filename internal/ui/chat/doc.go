// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen Bubble Tea front end for a chat
// session.
//
// The Model renders an orchestrator snapshot: a header with model, mode
// and monthly usage, the conversation newest first in a scrollable
// viewport, and an input line. Orchestrator events reach the Bubble Tea
// loop through a single-slot channel that always holds the latest event.
//
// # Key Bindings
//
//   - Enter: send the input, or run it when it starts with /
//   - Tab: cycle the mode (completes commands while typing one)
//   - Ctrl+T: cycle the model
//   - Ctrl+N: new conversation
//   - Ctrl+R / Ctrl+Y / Ctrl+D: resend, copy, delete
//   - PgUp / PgDn: scroll
//   - Esc / Ctrl+C: quit
package chat
