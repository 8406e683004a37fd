// Package cmake holds the build service contract the test pipeline consumes
// and an adapter driving the cmake command line through its File API.
package cmake

import (
	"context"
	"errors"

	"github.com/perfgo/cmaketest/codemodel"
)

// ErrNoProject is returned when no build project exists for a root path.
var ErrNoProject = errors.New("no build project")

// BuildDescriptionFile is the file whose modification triggers a reconfigure
const BuildDescriptionFile = "CMakeLists.txt"

// Service hands out build projects by root path.
type Service interface {
	// Project returns the project rooted at root, or ErrNoProject.
	Project(ctx context.Context, root string) (Project, error)
}

// Project is a configured (or configurable) build tree.
type Project interface {
	// Root returns the source root of the project
	Root() string
	// Configure (re)generates the build system
	Configure(ctx context.Context) error
	// Build builds the named targets
	Build(ctx context.Context, targets []string) error
	// BuildDirectory returns the build tree directory if it is known
	BuildDirectory() (string, bool)
	// CodeModel returns the current validated code model
	CodeModel(ctx context.Context) (*codemodel.CodeModel, error)
}
