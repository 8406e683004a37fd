package cli

// This file contains the resolution of command arguments into an executable
// target and the full names of the tests to run.

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/discovery"
	"github.com/urfave/cli/v2"
)

// resolveSelection interprets args as [EXECUTABLE] [SUITE|SUITE.TEST ...].
// executables lists the known targets; nil means the code model is not
// available, in which case the first argument is taken as the executable.
// Suites are expanded to their tests using found.
func resolveSelection(args []string, executables []string, found *discovery.Result) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, errors.New("no executable or test given")
	}

	isExecutable := executables == nil
	for _, name := range executables {
		if name == args[0] {
			isExecutable = true
			break
		}
	}

	if isExecutable {
		names, err := expand(args[0], args[1:], found)
		return args[0], names, err
	}

	owners := make(map[string]struct{})
	for _, arg := range args {
		for _, exe := range ownersOf(arg, found) {
			owners[exe] = struct{}{}
		}
	}
	switch len(owners) {
	case 0:
		return "", nil, fmt.Errorf("%s is neither an executable target nor a discovered test or suite", args[0])
	case 1:
	default:
		var list []string
		for exe := range owners {
			list = append(list, exe)
		}
		sort.Strings(list)
		return "", nil, fmt.Errorf("selection spans several executables (%s), name one first", strings.Join(list, ", "))
	}

	var exe string
	for e := range owners {
		exe = e
	}
	names, err := expand(exe, args, found)
	return exe, names, err
}

// expand turns suite names into the full names of their tests. Full names
// are kept as given, so parameterized instances can be named directly.
func expand(executable string, args []string, found *discovery.Result) ([]string, error) {
	var names []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, arg := range args {
		if strings.Contains(arg, ".") {
			add(arg)
			continue
		}

		var tests []string
		if found != nil {
			if e, ok := found.Executable(executable); ok {
				for _, s := range e.Suites {
					if s.Name != arg {
						continue
					}
					for _, t := range s.Tests {
						tests = append(tests, t.FullName)
					}
				}
			}
		}
		if len(tests) == 0 {
			return nil, fmt.Errorf("no tests of suite %s found in %s", arg, executable)
		}
		for _, t := range tests {
			add(t)
		}
	}
	return names, nil
}

func ownersOf(arg string, found *discovery.Result) []string {
	if found == nil {
		return nil
	}
	var owners []string
	for _, e := range found.Executables {
		for _, s := range e.Suites {
			if s.Name == arg {
				owners = append(owners, e.Name)
				continue
			}
			for _, t := range s.Tests {
				if t.FullName == arg {
					owners = append(owners, e.Name)
				}
			}
		}
	}
	return owners
}

// selection resolves the arguments of run and debug against the project.
func (a *App) selection(ctx *cli.Context, s *session) (string, []string, error) {
	var executables []string
	if cm, err := a.codeModel(ctx.Context, s); err == nil {
		executables = []string{}
		for _, t := range cm.Executables() {
			executables = append(executables, t.Name)
		}
	} else if !errors.Is(err, codemodel.ErrUnavailable) {
		return "", nil, err
	}

	args := ctx.Args().Slice()
	needsDiscovery := len(args) > 0
	if needsDiscovery && executables != nil {
		// "exe Suite.Test ..." needs no scan
		needsDiscovery = !contains(executables, args[0])
		for _, arg := range args[1:] {
			if !strings.Contains(arg, ".") {
				needsDiscovery = true
			}
		}
	}

	var found *discovery.Result
	if needsDiscovery {
		r, err := s.discovery(a).Discover(ctx.Context)
		if err != nil {
			a.logger.Debug().Err(err).Msg("Discovery failed, suites cannot be expanded")
		} else {
			found = r
		}
	}

	return resolveSelection(args, executables, found)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
