// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"sort"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	Description string

	// Usage shows argument syntax (e.g., "/model [id]")
	Usage string

	Args []ArgDef

	Handler Handler

	// Category groups commands in help output
	Category string
}

// Handler executes a command.
type Handler func(c *Context, args []string) (Result, error)

// Result is what a command hands back to the front end.
type Result struct {
	// Output is shown to the user.
	Output string

	// Input, when set, replaces the pending input line.
	Input string

	// Quit asks the front end to exit.
	Quit bool
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString   ArgType = iota // Free-form string
	ArgTypeModel                   // Model ID from the capability table
	ArgTypeFile                    // File path
	ArgTypeEnum                    // One of predefined values
	ArgTypeMessage                 // Message ID in the conversation
	ArgTypeTemplate                // Template name within the chosen category
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Execute parses line and runs the matching command.
func (r *Registry) Execute(c *Context, line string) (Result, error) {
	parsed := NewParser(r).Parse(line)
	if !parsed.IsCommand {
		return Result{}, fmt.Errorf("not a command: %q", line)
	}
	if parsed.Command == nil {
		return Result{}, fmt.Errorf("unknown command %s (try /help)", parsed.CommandName)
	}
	if err := ValidateArgs(parsed.Command, parsed.Args); err != nil {
		return Result{}, err
	}
	if c.Registry == nil {
		c.Registry = r
	}
	return parsed.Command.Handler(c, parsed.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func modeNames() []string {
	names := make([]string, len(model.Modes))
	for i, m := range model.Modes {
		names[i] = string(m)
	}
	return names
}

var onOff = []string{"on", "off"}

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Category:    "General",
		Handler:     HandleHelp,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit rigchat",
		Category:    "General",
		Handler:     HandleQuit,
	})

	// Conversation
	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/n", "/clear"},
		Description: "Start a new conversation",
		Category:    "Conversation",
		Handler:     HandleNew,
	})
	r.Register(&Command{
		Name:        "/resend",
		Description: "Put a message back in the input (default: your last message)",
		Usage:       "/resend [message-id]",
		Args:        []ArgDef{{Name: "id", Type: ArgTypeMessage, Description: "Message ID"}},
		Category:    "Conversation",
		Handler:     HandleResend,
	})
	r.Register(&Command{
		Name:        "/copy",
		Description: "Copy a message to the clipboard (default: last reply)",
		Usage:       "/copy [message-id]",
		Args:        []ArgDef{{Name: "id", Type: ArgTypeMessage, Description: "Message ID"}},
		Category:    "Conversation",
		Handler:     HandleCopy,
	})
	r.Register(&Command{
		Name:        "/delete",
		Aliases:     []string{"/del"},
		Description: "Delete a message (default: newest)",
		Usage:       "/delete [message-id]",
		Args:        []ArgDef{{Name: "id", Type: ArgTypeMessage, Description: "Message ID"}},
		Category:    "Conversation",
		Handler:     HandleDelete,
	})
	r.Register(&Command{
		Name:        "/history",
		Description: "List messages with their IDs, newest first",
		Category:    "Conversation",
		Handler:     HandleHistory,
	})
	r.Register(&Command{
		Name:        "/export",
		Description: "Export the conversation to a file",
		Usage:       "/export [md|json|yaml]",
		Args: []ArgDef{
			{Name: "format", Type: ArgTypeEnum, Values: []string{"md", "markdown", "json", "yaml", "yml"}, Description: "Export format"},
		},
		Category: "Conversation",
		Handler:  HandleExport,
	})

	// Model
	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Switch model or list models",
		Usage:       "/model [id]",
		Args:        []ArgDef{{Name: "id", Type: ArgTypeModel, Description: "Model to switch to"}},
		Category:    "Model",
		Handler:     HandleModel,
	})
	r.Register(&Command{
		Name:        "/mode",
		Description: "Set the chat mode (no argument cycles)",
		Usage:       "/mode [text|image-gen|image-analysis]",
		Args: []ArgDef{
			// Free-form so ParseMode aliases such as "vision" pass; Values feed completion.
			{Name: "mode", Type: ArgTypeString, Values: modeNames(), Description: "Chat mode"},
		},
		Category: "Model",
		Handler:  HandleMode,
	})
	r.Register(&Command{
		Name:        "/stream",
		Description: "Toggle streaming replies",
		Usage:       "/stream [on|off]",
		Args:        []ArgDef{{Name: "state", Type: ArgTypeEnum, Values: onOff}},
		Category:    "Model",
		Handler:     HandleStream,
	})
	r.Register(&Command{
		Name:        "/tools",
		Aliases:     []string{"/functions"},
		Description: "Toggle function calling",
		Usage:       "/tools [on|off]",
		Args:        []ArgDef{{Name: "state", Type: ArgTypeEnum, Values: onOff}},
		Category:    "Model",
		Handler:     HandleTools,
	})

	// Input
	r.Register(&Command{
		Name:        "/image",
		Description: "Set the image URL to analyze",
		Usage:       "/image <url>",
		Args:        []ArgDef{{Name: "url", Required: true, Type: ArgTypeString, Description: "Image URL or data URI"}},
		Category:    "Input",
		Handler:     HandleImage,
	})
	r.Register(&Command{
		Name:        "/attach",
		Description: "Attach a file to the next message",
		Usage:       "/attach <path>",
		Args:        []ArgDef{{Name: "path", Required: true, Type: ArgTypeFile, Description: "File to attach"}},
		Category:    "Input",
		Handler:     HandleAttach,
	})
	r.Register(&Command{
		Name:        "/template",
		Aliases:     []string{"/t"},
		Description: "Load a prompt template into the input",
		Usage:       "/template [category] [name]",
		Args: []ArgDef{
			{Name: "category", Type: ArgTypeString, Values: TemplateCategorySlugs(), Description: "Template category"},
			{Name: "name", Type: ArgTypeTemplate, Description: "Template in that category"},
		},
		Category: "Input",
		Handler:  HandleTemplate,
	})

	r.Register(&Command{
		Name:        "/usage",
		Description: "Show this month's token usage",
		Category:    "General",
		Handler:     HandleUsage,
	})
}
