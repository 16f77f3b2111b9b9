// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/util"
)

const signInHint = "Signed out. Run `rigchat auth signin` to start chatting."

// maxNoticeLines caps command output shown above the input.
const maxNoticeLines = 12

// =============================================================================
// VIEW
// =============================================================================

// View renders the whole screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	notice := m.renderNotice()
	vp := m.viewport
	if n := lipgloss.Height(notice); notice != "" {
		vp.Height = max(vp.Height-n, 1)
	}

	parts := []string{m.renderHeader(), vp.View()}
	if notice != "" {
		parts = append(parts, notice)
	}
	parts = append(parts, m.renderInput(), m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	t := m.theme
	sep := t.HeaderMuted.Render(" | ")

	auth := t.HeaderMuted.Render("signed out")
	if m.snap.SignedIn {
		auth = t.HeaderMuted.Render("signed in")
	}

	line := t.HeaderBrand.Render("rigchat") + sep +
		t.HeaderModel.Render(m.snap.Model) + sep +
		t.Mode(m.snap.Mode).Render(string(m.snap.Mode)) + sep +
		t.Usage(m.usageCount).Render("Usage "+telemetry.FormatUsage(m.usageCount)) + sep +
		auth
	return t.Header.Width(max(m.width, 1)).MaxHeight(headerHeight).Render(line)
}

// renderMessages renders the conversation newest first.
func (m Model) renderMessages() string {
	if len(m.snap.Messages) == 0 {
		return m.theme.MessageMeta.Render("No messages yet. Say hello, or type /help.")
	}

	width := max(m.viewport.Width-4, 20)
	blocks := make([]string, 0, len(m.snap.Messages))
	for _, msg := range m.snap.Messages {
		blocks = append(blocks, m.renderMessage(msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg *model.Message, width int) string {
	t := m.theme
	header := t.Label(msg.Role).Render(msg.Role.DisplayName()) + " " +
		t.MessageMeta.UnsetPaddingLeft().Render(msg.TimeLabel()+"  "+msg.ID)

	body := msg.Content
	if msg.IsStreaming {
		body += t.StreamCursor.Render("▌")
	}
	bodyStyle := t.MessageBody
	if msg.Role == model.RoleError {
		bodyStyle = t.ErrorBody
	}

	lines := []string{header, bodyStyle.Width(width).Render(body)}
	if meta := messageMeta(msg); meta != "" {
		lines = append(lines, t.MessageMeta.Width(width).Render(meta))
	}
	return strings.Join(lines, "\n")
}

// messageMeta describes images, files, model and function for msg.
func messageMeta(msg *model.Message) string {
	var parts []string
	if msg.ImageURL != "" {
		label := "Image"
		if msg.Type == model.TypeImage {
			label = "Generated image"
		}
		parts = append(parts, label+": "+util.TruncateWidth(msg.ImageURL, 60))
	}
	if len(msg.Files) > 0 {
		names := make([]string, len(msg.Files))
		for i, f := range msg.Files {
			names[i] = f.Name
		}
		parts = append(parts, "Files: "+strings.Join(names, ", "))
	}
	if msg.Role == model.RoleAssistant && msg.Model != "" {
		parts = append(parts, "Model: "+msg.Model)
	}
	if msg.FunctionUsed != "" {
		parts = append(parts, "Function: "+msg.FunctionUsed)
	}
	return strings.Join(parts, " | ")
}

// renderNotice shows multi-line command output above the input.
func (m Model) renderNotice() string {
	if !strings.Contains(m.status, "\n") {
		return ""
	}
	lines := strings.Split(m.status, "\n")
	if len(lines) > maxNoticeLines {
		lines = append(lines[:maxNoticeLines-1], fmt.Sprintf("... %d more lines", len(lines)-maxNoticeLines+1))
	}
	return m.theme.MessageMeta.Render(strings.Join(lines, "\n"))
}

func (m Model) renderInput() string {
	t := m.theme
	var line string
	switch {
	case m.snap.Loading:
		line = m.spinner.View() + " " + t.HeaderMuted.Render("Thinking...")
	default:
		line = m.input.View()
	}

	var pending []string
	if m.snap.ImageURL != "" {
		pending = append(pending, "image: "+util.TruncateWidth(m.snap.ImageURL, 40))
	}
	for _, a := range m.snap.Attachments {
		pending = append(pending, "file: "+a.Name)
	}
	if len(pending) > 0 {
		line += "  " + t.ShortcutDesc.Render("["+strings.Join(pending, ", ")+"]")
	}
	return t.InputContainer.Width(max(m.width-2, 1)).Render(line)
}

func (m Model) renderStatusBar() string {
	t := m.theme
	var content string
	switch {
	case m.snap.Error != "":
		content = t.StatusError.Render(util.SingleLine(m.snap.Error))
	case m.status != "" && !strings.Contains(m.status, "\n"):
		if m.statusErr {
			content = t.StatusError.Render(m.status)
		} else {
			content = m.status
		}
	case !m.snap.SignedIn:
		content = t.StatusError.Render(signInHint)
	default:
		var hints []string
		for _, b := range m.keys.ShortHelp() {
			h := b.Help()
			hints = append(hints, t.ShortcutKey.Render(h.Key)+" "+t.ShortcutDesc.Render(h.Desc))
		}
		hints = append(hints, t.ShortcutKey.Render("/help")+" "+t.ShortcutDesc.Render("commands"))
		content = strings.Join(hints, "  ")
	}
	return t.StatusBar.Width(max(m.width, 1)).MaxHeight(statusBarHeight).Render(content)
}
