// Package versioning drives the external version diff
// tool that keeps a spec as a folder of version keyed
// diffs instead of one flat file.
package versioning

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/byte4ever/spec_publisher/publish/exec"
	"github.com/byte4ever/spec_publisher/publish/git"
)

// DefaultCommand is the version subcommand of the
// autocomplete tooling.
var DefaultCommand = []string{
	"npx", "@withfig/autocomplete-tools@2", "version",
}

// Tool runs the version diff commands against the spec
// folders found under Cwd.
type Tool struct {
	Command []string
	Cwd     string
}

// New returns a Tool using DefaultCommand.
func New(cwd string) *Tool {
	return &Tool{Command: DefaultCommand, Cwd: cwd}
}

// InitSpec creates the versioned folder of a spec that
// was never published.
func (t *Tool) InitSpec(ctx context.Context, name string) error {
	const errCtx = "initializing versioned spec"

	if name == "" {
		return fmt.Errorf(
			"%s: empty spec name: %w", errCtx, git.ErrValidation,
		)
	}

	if err := t.run(ctx, "init-spec", name); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("initialized versioned spec", "name", name)

	return nil
}

// AddDiff folds newSpecPath into the versioned folder of
// name as the diff of version. With useMinorBase the diff
// is taken against the closest minor version.
func (t *Tool) AddDiff(
	ctx context.Context,
	name string,
	newSpecPath string,
	version string,
	useMinorBase bool,
) error {
	const errCtx = "adding version diff"

	if name == "" || newSpecPath == "" || version == "" {
		return fmt.Errorf(
			"%s: name, spec path and version are required: %w",
			errCtx, git.ErrValidation,
		)
	}

	args := []string{"add-diff"}
	if useMinorBase {
		args = append(args, "--use-minor-base")
	}

	args = append(args, name, newSpecPath, version)

	if err := t.run(ctx, args...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"added version diff",
		"name", name,
		"version", version,
	)

	return nil
}

func (t *Tool) run(ctx context.Context, arg ...string) error {
	name, base, err := exec.Program(t.Command)
	if err != nil {
		return err
	}

	args := slices.Concat(base, arg, []string{"--cwd", t.Cwd})

	_, err = exec.Ex(ctx, t.Cwd, name, args...)

	return err
}
