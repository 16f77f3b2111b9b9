// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/gateway"
	"github.com/jeranaias/rigchat/internal/model"
)

// Layout heights outside the viewport.
const (
	headerHeight    = 1
	inputAreaHeight = 2
	statusBarHeight = 1
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.sync()
		return m, waitForEvent(m.events)

	case submitDoneMsg:
		return m.handleSubmitDone(msg)

	case usageMsg:
		m.usageCount = int64(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	vpHeight := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = vpHeight

	// Border padding plus the "> " prompt.
	m.input.Width = max(m.width-6, 10)

	m.ready = true
	m.sync()
	return m
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.CycleMode):
		if commands.IsCommand(m.input.Value()) {
			m.complete()
			return m, nil
		}
		return m.runCommand("/mode")

	case key.Matches(msg, m.keys.CycleModel):
		return m.runCommand("/model " + nextModel(m.snap.Model))

	case key.Matches(msg, m.keys.NewChat):
		return m.runCommand("/new")

	case key.Matches(msg, m.keys.Resend):
		return m.runCommand("/resend")

	case key.Matches(msg, m.keys.Copy):
		return m.runCommand("/copy")

	case key.Matches(msg, m.keys.Delete):
		return m.runCommand("/delete")

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.LineDown(1)
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// nextModel returns the model after current in the capability table.
func nextModel(current string) string {
	ids := model.ModelIDs()
	for i, id := range ids {
		if id == current {
			return ids[(i+1)%len(ids)]
		}
	}
	return ids[0]
}

// complete replaces a partial command with its first completion.
func (m *Model) complete() {
	candidates := m.completer.Complete(m.input.Value())
	if len(candidates) == 0 {
		return
	}
	m.input.SetValue(candidates[0])
	m.input.CursorEnd()
	if len(candidates) > 1 {
		m.setStatus(strings.Join(candidates, "  "), false)
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	if commands.IsCommand(value) {
		m.input.Reset()
		return m.runCommand(value)
	}

	m.orc.SetInput(value)
	m.input.Reset()
	m.setStatus("", false)
	m.sync()
	return m, submitCmd(m.ctx, m.orc)
}

func (m Model) handleSubmitDone(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	m.sync()

	// A rejected submission leaves the input in the orchestrator.
	if pending := m.orc.Input(); pending != "" && m.input.Value() == "" {
		m.input.SetValue(pending)
		m.input.CursorEnd()
	}

	var capErr *core.CapabilityError
	switch {
	case msg.err == nil:
		m.setStatus("", false)
	case errors.Is(msg.err, core.ErrEmptyInput), errors.Is(msg.err, core.ErrAbandoned):
	case errors.Is(msg.err, core.ErrAuthRequired):
		m.setStatus(signInHint, true)
	case errors.As(msg.err, &capErr):
		m.setStatus(capErr.Error(), true)
	default:
		m.setStatus(gateway.Message(msg.err), true)
	}
	return m, usageCmd(m.ctx, m.usage)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	res, err := m.registry.Execute(m.cmdCtx, line)
	if err != nil {
		log.Printf("COMMAND_FAILED | command=%s error=%v", commands.ExtractCommandName(line), err)
		m.setStatus(err.Error(), true)
		m.sync()
		return m, nil
	}

	if res.Quit {
		m.quitting = true
		m.Close()
		return m, tea.Quit
	}
	if res.Input != "" {
		m.input.SetValue(res.Input)
		m.input.CursorEnd()
	}
	m.setStatus(res.Output, false)
	m.sync()

	if strings.HasPrefix(line, "/usage") {
		return m, usageCmd(m.ctx, m.usage)
	}
	return m, nil
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}
