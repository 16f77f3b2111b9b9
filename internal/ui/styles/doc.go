// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for rigchat.
//
// Colors are lipgloss.AdaptiveColor values so they follow the terminal's
// light or dark background. Status helpers (RenderSuccess, RenderError)
// pair each color with a text indicator.
//
// # Usage
//
//	theme := styles.NewTheme()
//	fmt.Println(theme.Label(model.RoleUser).Render("You"))
//	fmt.Println(styles.RenderError("sign in first"))
package styles
