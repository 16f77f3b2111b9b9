// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing and dispatch for rigchat.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
)

// Version information (overridden at build time with -ldflags)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the top-level command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdModels
	CmdUsage
	CmdAuth
	CmdServe
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdTUI:     "tui",
	CmdChat:    "chat",
	CmdAsk:     "ask",
	CmdModels:  "models",
	CmdUsage:   "usage",
	CmdAuth:    "auth",
	CmdServe:   "serve",
	CmdConfig:  "config",
	CmdVersion: "version",
	CmdHelp:    "help",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Model      string
	Debug      bool
	NoColor    bool
	JSON       bool
	Quiet      bool

	// Raw holds the arguments after the command name, global flags removed.
	Raw []string

	Stdout io.Writer
	Stderr io.Writer
}

const usageText = `rigchat - terminal chat client for a hosted AI gateway

Usage:
  rigchat                          Start the chat UI (default)
  rigchat tui                      Start the chat UI
  rigchat chat                     Line-based chat with history
  rigchat ask <prompt> [flags]     Send one message and print the reply
  rigchat models [--remote]        List models and their capabilities
  rigchat usage [subcommand]       Monthly token usage
  rigchat auth [subcommand]        Sign in and out of the gateway
  rigchat serve [--addr host:port] Run the request validation server
  rigchat config [subcommand]      Show or change configuration
  rigchat version                  Show version information
  rigchat help                     Show this help

Ask flags:
  -m, --model <id>       Model to use for this message
  --mode <mode>          text, image-gen or image-analysis
  --image <url>          Image to analyze (implies --mode image-analysis)
  -f, --file <path>      Attach a file (repeatable)

Usage subcommands:
  usage show                   Show tokens used this month (default)
  usage reset                  Reset the counter to zero
  usage set <n>                Set the counter to n tokens
  usage estimate <text>        Estimate tokens for text [--file path]...

Auth subcommands:
  auth status                  Show who is signed in (default)
  auth signin [--token t]      Sign in; prompts for the token if omitted
  auth signout                 Forget the stored token

Config subcommands:
  config show                  Print the configuration (secrets masked)
  config path                  Print the config file path
  config get <key>             Print one value (e.g. chat.default_model)
  config set <key> <value>     Change one value and save

Global flags:
  --config <path>        Use this config file
  --model <id>           Default model for this run
  --debug                Enable debug logging
  --no-color             Disable colors
  --json                 Machine-readable output where supported
  -q, --quiet            Less output
  -h, --help             Show this help
  --version              Show version information

Chat UI keys:
  Enter send, Tab cycle mode, Ctrl+T cycle model, Ctrl+N new chat,
  Ctrl+R resend, Ctrl+Y copy, Ctrl+D delete, Esc quit. Type /help for
  slash commands.

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "rigchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args.
func Parse() (Command, Args, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name). With no command it
// returns CmdTUI.
func ParseArgs(argv []string) (Command, Args, error) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, args, nil
	}

	name := strings.ToLower(remaining[0])
	args.Raw = remaining[1:]

	switch name {
	case "tui":
		return CmdTUI, args, nil
	case "chat", "repl":
		return CmdChat, args, nil
	case "ask", "a":
		return CmdAsk, args, nil
	case "models", "model":
		return CmdModels, args, nil
	case "usage":
		return CmdUsage, args, nil
	case "auth", "login":
		return CmdAuth, args, nil
	case "serve", "server":
		return CmdServe, args, nil
	case "config", "cfg":
		return CmdConfig, args, nil
	case "version":
		return CmdVersion, args, nil
	case "help":
		return CmdHelp, args, nil
	}
	return CmdHelp, args, &ValidationError{
		Field:   "command",
		Value:   remaining[0],
		Reason:  "unknown command",
		Example: "rigchat help",
	}
}

// parseGlobalFlags removes global flags from argv. Flags after "--" are
// left alone.
func parseGlobalFlags(argv []string) ([]string, Args) {
	args := Args{Stdout: os.Stdout, Stderr: os.Stderr}
	var remaining []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" {
			remaining = append(remaining, argv[i:]...)
			break
		}

		switch arg {
		case "--debug":
			args.Debug = true
		case "--no-color":
			args.NoColor = true
		case "--json":
			args.JSON = true
		case "-q", "--quiet":
			args.Quiet = true
		case "-h", "--help":
			return []string{"help"}, args
		case "--version":
			return []string{"version"}, args
		case "--config":
			if i+1 < len(argv) {
				i++
				args.ConfigPath = argv[i]
			}
		case "--model":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				args.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}
	return remaining, args
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd.
func Run(ctx context.Context, cmd Command, args Args) error {
	if args.Stdout == nil {
		args.Stdout = os.Stdout
	}
	if args.Stderr == nil {
		args.Stderr = os.Stderr
	}
	if args.NoColor {
		DisableColors()
	}

	// The line chat handles interrupt itself so Ctrl+C can cancel a single
	// request.
	signals := []os.Signal{syscall.SIGTERM}
	if cmd != CmdChat {
		signals = append(signals, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	switch cmd {
	case CmdHelp:
		PrintUsage(args.Stdout)
		return nil
	case CmdVersion:
		return HandleVersion(args)
	case CmdConfig:
		return HandleConfig(args)
	case CmdServe:
		return HandleServe(ctx, args)
	}

	rt, err := NewRuntime(ctx, args, cmd == CmdTUI)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch cmd {
	case CmdTUI:
		return HandleTUI(ctx, rt, args)
	case CmdChat:
		return HandleChat(ctx, rt, args)
	case CmdAsk:
		return HandleAsk(ctx, rt, args)
	case CmdModels:
		return HandleModels(ctx, rt, args)
	case CmdUsage:
		return HandleUsage(ctx, rt, args)
	case CmdAuth:
		return HandleAuth(ctx, rt, args)
	}
	return fmt.Errorf("unhandled command %s", cmd)
}

// HandleVersion prints version information, as JSON with --json.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(args.Stdout)
	}
	PrintVersion(args.Stdout)
	return nil
}
