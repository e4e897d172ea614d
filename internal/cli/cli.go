package cli

import (
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Render   *RenderCommand
	Capture  *CaptureCommand
	Sessions *SessionsCommand
	Stats    *StatsCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string, out io.Writer) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "gazemap"
	parser.LongDescription = "Render gaze heatmaps and inspect recorded sessions."

	base := command{globals: &globals, version: version, out: out}
	cmds := &commands{
		Render:   &RenderCommand{command: base},
		Capture:  &CaptureCommand{command: base},
		Sessions: &SessionsCommand{command: base},
		Stats:    &StatsCommand{command: base},
	}

	parser.AddCommand("render", "Render a heatmap from a session record", "Render a session record JSON file over an optional screenshot to PNG, JPEG or PDF.", cmds.Render)
	parser.AddCommand("capture", "Capture a full-page screenshot", "Capture a full-page screenshot through a Chrome DevTools endpoint.", cmds.Capture)
	parser.AddCommand("sessions", "List recorded sessions", "List sessions stored in the database.", cmds.Sessions)
	parser.AddCommand("stats", "Show session statistics", "Show the statistics panel of a stored session.", cmds.Stats)

	return parser, &globals, cmds
}

// Run is the main entry point for the gazemap CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	return run(version, args, os.Stdout)
}

func run(version string, args []string, out io.Writer) error {
	// --version is valid without a subcommand
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Fprintf(out, "gazemap %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version, out)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
