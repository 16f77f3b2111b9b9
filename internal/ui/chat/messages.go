// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// =============================================================================
// MESSAGES
// =============================================================================

// eventMsg carries an orchestrator event into the update loop.
type eventMsg core.Event

// submitDoneMsg reports the end of a submission.
type submitDoneMsg struct {
	reply *model.Message
	err   error
}

// usageMsg carries the monthly token count.
type usageMsg int64

// =============================================================================
// COMMANDS
// =============================================================================

// waitForEvent blocks until the orchestrator publishes an event.
func waitForEvent(events <-chan core.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func submitCmd(ctx context.Context, orc *core.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		reply, err := orc.Submit(ctx)
		return submitDoneMsg{reply: reply, err: err}
	}
}

func usageCmd(ctx context.Context, usage *telemetry.UsageTracker) tea.Cmd {
	if usage == nil {
		return nil
	}
	return func() tea.Msg {
		return usageMsg(usage.Get(ctx))
	}
}
