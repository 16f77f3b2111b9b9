// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// Theme holds the styles for the chat UI.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Header
	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderModel lipgloss.Style
	HeaderMuted lipgloss.Style

	// Messages
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	ErrorLabel     lipgloss.Style
	MessageBody    lipgloss.Style
	ErrorBody      lipgloss.Style
	MessageMeta    lipgloss.Style
	StreamCursor   lipgloss.Style

	// Input and status
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	StatusBar      lipgloss.Style
	StatusError    lipgloss.Style
	ShortcutKey    lipgloss.Style
	ShortcutDesc   lipgloss.Style
	Spinner        lipgloss.Style
}

// NewTheme detects the terminal's color support and builds the styles.
func NewTheme() *Theme {
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

// DisableColor forces plain output for every Lip Gloss renderer.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderModel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.HeaderMuted = lipgloss.NewStyle().Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.ErrorLabel = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.ErrorBody = lipgloss.NewStyle().Foreground(Rose).PaddingLeft(2)
	t.MessageMeta = lipgloss.NewStyle().Foreground(TextMuted).PaddingLeft(2)
	t.StreamCursor = lipgloss.NewStyle().Foreground(Purple).Blink(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.ShortcutKey = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
}

// Label returns the style for a message role.
func (t *Theme) Label(role model.Role) lipgloss.Style {
	switch role {
	case model.RoleUser:
		return t.UserLabel
	case model.RoleError:
		return t.ErrorLabel
	default:
		return t.AssistantLabel
	}
}

// Mode returns the badge style for a chat mode.
func (t *Theme) Mode(m model.Mode) lipgloss.Style {
	color := Emerald
	switch m {
	case model.ModeImageGen:
		color = Amber
	case model.ModeImageAnalysis:
		color = Blue
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color)
}

// Usage returns the style for the monthly usage figure.
func (t *Theme) Usage(count int64) lipgloss.Style {
	switch telemetry.LevelFor(count) {
	case telemetry.UsageAt:
		return lipgloss.NewStyle().Bold(true).Foreground(Rose)
	case telemetry.UsageNear:
		return lipgloss.NewStyle().Foreground(Amber)
	default:
		return t.HeaderMuted
	}
}
