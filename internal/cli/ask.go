// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot submission.
//
// Examples:
//
//	rigchat ask "what is a goroutine?"
//	rigchat ask --mode image-gen "a lighthouse at dusk"
//	rigchat ask --image https://example.com/cat.png "what breed is this?"
//	rigchat ask -f notes.md -f data.csv "summarize these"
//	echo "explain this" | rigchat ask -

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

const askUsage = `rigchat ask "your question" [--model id] [--mode text|image-gen|image-analysis] [--image url] [--file path]...`

// HandleAsk sends one message through the orchestrator and prints the
// reply. Streamed replies are printed as they arrive.
func HandleAsk(ctx context.Context, rt *Runtime, args Args) error {
	p := NewArgParser(args.Raw)

	prompt := JoinPositionalArgs(p, 0)
	if prompt == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(b))
	}

	orc := rt.Chat
	if id := p.FlagOr("", "m", "model"); id != "" {
		orc.SetModel(id)
	}

	image := p.Flag("image")
	modeName := p.Flag("mode")
	switch {
	case modeName != "":
		mode, err := model.ParseMode(modeName)
		if err != nil {
			return NewValidationError("mode", modeName, err.Error())
		}
		orc.SetMode(mode)
	case image != "":
		orc.SetMode(model.ModeImageAnalysis)
	}
	if image != "" {
		orc.SetImageURL(image)
	}

	var atts []model.Attachment
	for _, path := range append(p.Flags("file"), p.Flags("f")...) {
		att, err := commands.AttachmentFromFile(path)
		if err != nil {
			return NewCommandError("ask", "attach", err)
		}
		orc.Attach(att)
		atts = append(atts, att)
	}

	if prompt == "" && image == "" {
		return ErrMissingArgument("prompt", askUsage)
	}
	orc.SetInput(prompt)

	// JSON output needs the whole reply, so chunks are not echoed.
	out := args.Stdout
	if args.JSON {
		out = io.Discard
	}

	msg, err := submitAndPrint(ctx, orc, out)
	if err != nil {
		return submitError(err)
	}

	if args.JSON {
		data := AskData{
			ID:        msg.ID,
			Model:     msg.Model,
			Mode:      string(orc.Snapshot().Mode),
			Content:   msg.Content,
			ImageURL:  msg.ImageURL,
			Function:  msg.FunctionUsed,
			Tokens:    telemetry.EstimateTokens(prompt, atts) + telemetry.EstimateTokens(msg.Content, nil),
			Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
		}
		for _, a := range atts {
			data.Files = append(data.Files, a.Name)
		}
		return NewJSONResponse("ask", data).Write(args.Stdout)
	}

	if !args.Quiet {
		printMeta(args.Stderr, msg)
	}
	return nil
}
