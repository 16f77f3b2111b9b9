// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the rigchat command line and runs its commands.
//
// # Usage
//
//	cmd, args, err := cli.ParseArgs(os.Args[1:])
//	if err != nil {
//	    cli.DisplayError(os.Stderr, err, false)
//	    os.Exit(cli.GetExitCode(err))
//	}
//	err = cli.Run(ctx, cmd, args)
//
// # Commands
//
//   - tui (default): full-screen chat UI
//   - chat: line-based chat with history and tab completion
//   - ask: one-shot submission, streamed to stdout
//   - models: capability table or the gateway's model list
//   - usage: monthly token counter (show, reset, set, estimate)
//   - auth: gateway sign-in (status, signin, signout)
//   - serve: request validation server
//   - config: show, path, get, set, reset
//   - version, help
//
// Chat commands share a Runtime built by NewRuntime: configuration,
// logging, tracing, the usage store, the gateway and the orchestrator.
// Most commands accept --json for machine-readable output.
package cli
