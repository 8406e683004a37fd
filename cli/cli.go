package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/perfgo/cmaketest/discovery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "cmaketest"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
	out    io.Writer
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		out:    os.Stdout,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Discover, build, run and debug GoogleTest tests of CMake projects",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:  "project-root",
					Usage: "Directory holding the top level CMakeLists.txt (default: settings or working directory)",
				},
				&cli.StringFlag{
					Name:  "build-dir",
					Usage: "Build directory, relative to the project root unless absolute",
				},
				&cli.IntFlag{
					Name:    "jobs",
					Aliases: []string{"j"},
					Usage:   "Number of parallel build jobs",
				},
				&cli.StringFlag{
					Name:  "code-model",
					Usage: "Read targets from a JSON code model instead of running cmake",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "discover",
		Usage:  "List the tests declared in the source tree grouped by executable and suite",
		Action: app.discover,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep running and list again whenever sources change",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a change triggers a new listing",
				Value: discovery.DefaultDebounce,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "targets",
		Usage:  "List the executable targets of the project and their artifacts",
		Action: app.targets,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Build if needed and run tests",
		ArgsUsage: "[EXECUTABLE] [SUITE|SUITE.TEST ...]",
		Action:    app.run,
		Description: `Build if needed and run tests.

The first argument names an executable target. When it is not a target,
every argument is a test or suite and the executable is found from the
source tree. Without tests, every test of the executable runs.

Examples:
  cmaketest run math_tests                 # all tests of math_tests
  cmaketest run math_tests Math.Adds       # one test
  cmaketest run Math                       # every test of suite Math`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "filter",
				Usage: "Default filter combined with the selection (overrides settings)",
			},
			&cli.StringSliceFlag{
				Name:  "flag",
				Usage: "Extra flag passed to the test binary (repeatable)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "debug",
		Usage:     "Build if needed and start a debug session for tests",
		ArgsUsage: "[EXECUTABLE] [SUITE|SUITE.TEST ...]",
		Action:    app.debug,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "print",
				Usage: "Print the launch configuration instead of contacting a debug adapter",
			},
			&cli.StringFlag{
				Name:  "dap",
				Usage: "Address of a debug adapter listening for a client (host:port)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "status",
		Usage:     "Show the latest known result of every test",
		ArgsUsage: "[EXECUTABLE]",
		Action:    app.status,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous runs and debug sessions",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "executable",
				Aliases: []string{"e"},
				Usage:   "Only show entries of this executable target",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "Show the output of a previous run",
		ArgsUsage:       "[ID|INDEX]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `Show the output of a previous run.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  <hex-id>    View run matching the ID prefix`,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
