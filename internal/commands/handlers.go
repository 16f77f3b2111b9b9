// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/util"
)

// Context carries what handlers act on.
type Context struct {
	Ctx   context.Context
	Chat  *chat.Orchestrator
	Usage *telemetry.UsageTracker

	// ExportDir receives /export files. Empty means the working directory.
	ExportDir string

	Registry *Registry
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// ErrNoMessage is returned when a message command has no target.
var ErrNoMessage = errors.New("no matching message in this conversation")

// =============================================================================
// GENERAL
// =============================================================================

var categoryOrder = []string{"General", "Conversation", "Model", "Input"}

// HandleHelp lists commands by category.
func HandleHelp(c *Context, args []string) (Result, error) {
	if c.Registry == nil {
		return Result{}, errors.New("no command registry")
	}
	groups := c.Registry.ByCategory()

	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, cat := range categoryOrder {
		cmds := groups[cat]
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s\n", cat)
		for _, cmd := range cmds {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			fmt.Fprintf(&sb, "  %s %s\n", util.PadRight(usage, 28), cmd.Description)
		}
	}
	sb.WriteString("\nTab cycles the mode. Ctrl+T cycles the model.")
	return Result{Output: sb.String()}, nil
}

// HandleQuit asks the front end to exit.
func HandleQuit(c *Context, args []string) (Result, error) {
	return Result{Quit: true}, nil
}

// HandleUsage reports this month's token usage.
func HandleUsage(c *Context, args []string) (Result, error) {
	if c.Usage == nil {
		return Result{Output: "Usage tracking is disabled."}, nil
	}
	count := c.Usage.Get(c.ctx())

	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s\n", telemetry.FormatUsage(count))
	fmt.Fprintf(&sb, "Tokens: %s of %s", util.FormatCount(count), util.FormatCount(telemetry.TokenLimit))
	if reset, ok := c.Usage.ResetDate(c.ctx()); ok {
		fmt.Fprintf(&sb, "\nResets: %s", reset.Format("January 2, 2006"))
	}
	if c.Chat != nil {
		est := telemetry.EstimateMessages(c.Chat.Conversation().Messages())
		fmt.Fprintf(&sb, "\nThis conversation: ~%s tokens", util.FormatCount(est))
	}
	return Result{Output: sb.String()}, nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

// HandleNew starts a fresh conversation.
func HandleNew(c *Context, args []string) (Result, error) {
	c.Chat.NewChat()
	return Result{Output: "Started a new conversation."}, nil
}

// HandleResend puts a message back in the input line.
func HandleResend(c *Context, args []string) (Result, error) {
	id, err := targetID(c, args, func(conv *model.Conversation) *model.Message {
		return conv.Newest(model.RoleUser)
	})
	if err != nil {
		return Result{}, err
	}
	if err := c.Chat.Resend(id); err != nil {
		return Result{}, err
	}
	return Result{Input: c.Chat.Input()}, nil
}

// HandleCopy copies a message to the clipboard.
func HandleCopy(c *Context, args []string) (Result, error) {
	id, err := targetID(c, args, func(conv *model.Conversation) *model.Message {
		return conv.Newest(model.RoleAssistant)
	})
	if err != nil {
		return Result{}, err
	}
	content, err := c.Chat.Copy(id)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Copied %d characters.", len([]rune(content)))}, nil
}

// HandleDelete removes a message.
func HandleDelete(c *Context, args []string) (Result, error) {
	id, err := targetID(c, args, func(conv *model.Conversation) *model.Message {
		return conv.At(0)
	})
	if err != nil {
		return Result{}, err
	}
	if err := c.Chat.Delete(id); err != nil {
		return Result{}, err
	}
	return Result{Output: "Deleted message " + id + "."}, nil
}

// HandleHistory lists messages newest first with their IDs.
func HandleHistory(c *Context, args []string) (Result, error) {
	msgs := c.Chat.Conversation().Messages()
	if len(msgs) == 0 {
		return Result{Output: "No messages yet."}, nil
	}
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "%s  %-9s %s\n", m.ID, m.Role.DisplayName(), util.Preview(m.Content, 60))
	}
	return Result{Output: strings.TrimRight(sb.String(), "\n")}, nil
}

// HandleExport writes the conversation to ExportDir.
func HandleExport(c *Context, args []string) (Result, error) {
	format := ""
	if len(args) > 0 {
		format = args[0]
	}
	opts := export.DefaultOptions()
	if c.ExportDir != "" {
		opts.OutputDir = c.ExportDir
	}
	path, err := export.Export(c.Chat.Conversation(), format, opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: "Exported to " + path}, nil
}

// targetID resolves args[0], or the message picked by def when absent.
func targetID(c *Context, args []string, def func(*model.Conversation) *model.Message) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	msg := def(c.Chat.Conversation())
	if msg == nil {
		return "", ErrNoMessage
	}
	return msg.ID, nil
}

// =============================================================================
// MODEL
// =============================================================================

// HandleModel switches model, or lists models when called bare.
func HandleModel(c *Context, args []string) (Result, error) {
	current := c.Chat.Snapshot().Model
	if len(args) == 0 {
		var sb strings.Builder
		sb.WriteString("Models:\n")
		for _, info := range model.ListModels() {
			marker := "  "
			if info.ID == current {
				marker = "* "
			}
			fmt.Fprintf(&sb, "%s%s %s\n", marker, util.PadRight(info.ID, 30), info.CapabilitiesString())
		}
		return Result{Output: strings.TrimRight(sb.String(), "\n")}, nil
	}

	id := args[0]
	c.Chat.SetModel(id)
	out := "Model: " + id
	if !model.IsKnown(id) {
		out += " (not in the capability table; text only)"
	}
	if snap := c.Chat.Snapshot(); snap.Mode != model.ModeText {
		out += "\nMode: " + string(snap.Mode)
	}
	return Result{Output: out}, nil
}

// HandleMode sets the mode, or cycles it when called bare.
func HandleMode(c *Context, args []string) (Result, error) {
	snap := c.Chat.Snapshot()
	next := snap.Mode.Next()
	if len(args) > 0 {
		m, err := model.ParseMode(args[0])
		if err != nil {
			return Result{}, err
		}
		next = m
	}
	c.Chat.SetMode(next)

	out := "Mode: " + string(next)
	if !next.SupportedBy(model.Lookup(snap.Model)) {
		out += fmt.Sprintf(" (%s does not support this mode)", snap.Model)
	}
	return Result{Output: out}, nil
}

// HandleStream toggles or sets streaming.
func HandleStream(c *Context, args []string) (Result, error) {
	on := toggle(args, c.Chat.Snapshot().EnableStreaming)
	c.Chat.SetEnableStreaming(on)
	return Result{Output: "Streaming: " + onOffLabel(on)}, nil
}

// HandleTools toggles or sets function calling.
func HandleTools(c *Context, args []string) (Result, error) {
	on := toggle(args, c.Chat.Snapshot().EnableFunctions)
	c.Chat.SetEnableFunctions(on)
	return Result{Output: "Functions: " + onOffLabel(on)}, nil
}

func toggle(args []string, current bool) bool {
	if len(args) == 0 {
		return !current
	}
	return strings.EqualFold(args[0], "on")
}

func onOffLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// =============================================================================
// INPUT
// =============================================================================

// HandleImage sets the image URL and switches to analysis mode.
func HandleImage(c *Context, args []string) (Result, error) {
	c.Chat.SetImageURL(args[0])
	c.Chat.SetMode(model.ModeImageAnalysis)
	return Result{Output: "Image set. Mode: " + string(model.ModeImageAnalysis)}, nil
}

// HandleAttach attaches a local file's metadata to the next message.
func HandleAttach(c *Context, args []string) (Result, error) {
	att, err := AttachmentFromFile(args[0])
	if err != nil {
		return Result{}, fmt.Errorf("attach: %w", err)
	}
	c.Chat.Attach(att)
	return Result{Output: fmt.Sprintf("Attached %s (%s, %s bytes)", att.Name, att.Type, util.FormatCount(att.Size))}, nil
}

// AttachmentFromFile describes the regular file at path.
func AttachmentFromFile(path string) (model.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Attachment{}, err
	}
	if info.IsDir() {
		return model.Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	return model.Attachment{
		Name: filepath.Base(path),
		Type: detectMIME(path),
		Size: info.Size(),
	}, nil
}

// detectMIME uses the extension, then sniffs the first 512 bytes.
func detectMIME(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	t := http.DetectContentType(buf[:n])
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

// CommandNames returns every name and alias, sorted.
func (r *Registry) CommandNames() []string {
	names := make([]string, 0, len(r.commands)+len(r.aliases))
	for name := range r.commands {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}
