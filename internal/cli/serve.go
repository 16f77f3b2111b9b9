// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jeranaias/rigchat/internal/server"
)

// HandleServe runs the validation server until interrupted. The config
// file is watched and CORS and rate-limit changes apply without a restart.
func HandleServe(ctx context.Context, args Args) error {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return err
	}

	p := NewArgParser(args.Raw)
	if addr := p.FlagOr("", "addr", "a"); addr != "" {
		cfg.Server.Addr = addr
	}

	// Server events are the output of this command.
	log.SetOutput(args.Stderr)

	srv := server.New(cfg.Server, server.WithVersion(Version))
	if !args.Quiet {
		fmt.Fprintf(args.Stdout, "%s on http://%s\n", SuccessStyle.Render("Listening"), srv.Addr())
		if path != "" {
			fmt.Fprintln(args.Stdout, DimStyle.Render("Watching "+path+" for changes"))
		}
	}
	if err := srv.Run(ctx, path); err != nil {
		return NewCommandError("serve", "", err)
	}
	return nil
}
