// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands implements the slash commands shared by the terminal UI
// and the line-mode REPL.
//
// A Registry maps names and aliases to Commands. Execute parses a line,
// checks its arguments and runs the handler against a Context holding the
// chat session. Handlers return a Result telling the front end what to
// show, what to put back in the input line and whether to exit.
//
//	reg := commands.NewRegistry()
//	res, err := reg.Execute(&commands.Context{Chat: orc}, "/model gpt-4o")
//
// Completer offers whole-line completions for command names, model IDs,
// enum values, message IDs and file paths.
package commands
