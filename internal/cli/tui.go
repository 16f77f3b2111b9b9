// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	uichat "github.com/jeranaias/rigchat/internal/ui/chat"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// HandleTUI runs the full-screen chat UI until the user quits or ctx ends.
func HandleTUI(ctx context.Context, rt *Runtime, args Args) error {
	if !IsStdoutTTY() {
		return fmt.Errorf("the chat UI needs a terminal; use 'rigchat chat' or 'rigchat ask' instead")
	}

	m := uichat.New(rt.Chat, styles.NewTheme(),
		uichat.WithUsage(rt.Usage),
		uichat.WithContext(ctx),
	)
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	return nil
}
