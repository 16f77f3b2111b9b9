// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// usage.go - Monthly token usage.
//
// Examples:
//
//	rigchat usage
//	rigchat usage set 1200000
//	rigchat usage estimate "how long is this?" --file notes.md

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/util"
)

// HandleUsage dispatches the usage subcommands.
func HandleUsage(ctx context.Context, rt *Runtime, args Args) error {
	p := NewArgParser(args.Raw)

	switch sub := p.Subcommand(); sub {
	case "", "show":
		return showUsage(ctx, rt, args)

	case "reset":
		if err := rt.Usage.Reset(ctx); err != nil {
			return NewCommandError("usage", "reset", err)
		}
		if !args.Quiet && !args.JSON {
			fmt.Fprintln(args.Stdout, SuccessStyle.Render("Usage reset to 0."))
		}
		return showUsageIf(ctx, rt, args)

	case "set":
		n, err := ParseCount(p.Positional(1), "token count")
		if err != nil {
			return err
		}
		if _, err := rt.Usage.SetManual(ctx, n); err != nil {
			return NewCommandError("usage", "set", err)
		}
		if !args.Quiet && !args.JSON {
			fmt.Fprintf(args.Stdout, "%s %s tokens.\n", SuccessStyle.Render("Usage set to"), util.FormatCount(n))
		}
		return showUsageIf(ctx, rt, args)

	case "estimate":
		var atts []model.Attachment
		for _, path := range append(p.Flags("file"), p.Flags("f")...) {
			att, err := commands.AttachmentFromFile(path)
			if err != nil {
				return NewCommandError("usage", "estimate", err)
			}
			atts = append(atts, att)
		}
		text := JoinPositionalArgs(p, 1)
		if text == "" && len(atts) == 0 {
			return ErrMissingArgument("text", `rigchat usage estimate "some text" [--file path]`)
		}
		n := telemetry.EstimateTokens(text, atts)
		if args.JSON {
			return NewJSONResponse("usage estimate", map[string]int64{"estimated_tokens": n}).Write(args.Stdout)
		}
		fmt.Fprintf(args.Stdout, "~%s tokens\n", util.FormatCount(n))
		return nil

	default:
		return ErrUnknownSubcommand("usage", sub, "show", "reset", "set", "estimate")
	}
}

// showUsageIf shows usage after a change only for --json.
func showUsageIf(ctx context.Context, rt *Runtime, args Args) error {
	if args.JSON {
		return showUsage(ctx, rt, args)
	}
	return nil
}

func showUsage(ctx context.Context, rt *Runtime, args Args) error {
	used, err := rt.Usage.Load(ctx)
	if err != nil {
		return NewCommandError("usage", "show", err)
	}

	data := UsageData{
		Used:    used,
		Limit:   telemetry.TokenLimit,
		Percent: telemetry.UsagePercent(used),
		Backend: rt.Config.Usage.Backend,
	}
	reset, hasReset := rt.Usage.ResetDate(ctx)
	if hasReset {
		data.ResetDate = reset.Format("2006-01-02")
	}

	if args.JSON {
		return NewJSONResponse("usage", data).Write(args.Stdout)
	}

	w := args.Stdout
	fmt.Fprintln(w, TitleStyle.Render("Token usage"))
	fmt.Fprintln(w, RenderField("This month", telemetry.FormatUsage(used)))
	fmt.Fprintln(w, RenderField("Tokens", fmt.Sprintf("%s of %s", util.FormatCount(used), util.FormatCount(telemetry.TokenLimit))))
	if hasReset {
		fmt.Fprintln(w, RenderField("Resets", reset.Format("January 2, 2006")))
	}
	fmt.Fprintln(w, RenderField("Backend", data.Backend))
	return nil
}
