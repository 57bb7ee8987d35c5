package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/byte4ever/spec_publisher/publish/exec"
)

// DefaultMergeCommand is the merge tool of the
// autocomplete tooling.
var DefaultMergeCommand = []string{
	"npx", "@withfig/autocomplete-tools@2", "merge",
}

// CommandReconciler merges two specs with an external
// tool run as
//
//	<Cmd> [--preset <preset>] <old file> <new file>
//
// and takes the merged spec from its stdout. A non zero
// exit fails the merge.
type CommandReconciler struct {
	Cmd []string
	// Dir is where the command runs and where both
	// inputs are staged. Defaults to the system temp dir.
	Dir string
}

// Reconcile implements Reconciler.
func (r *CommandReconciler) Reconcile(
	ctx context.Context,
	old string,
	updated string,
	opts Options,
) (string, error) {
	const errCtx = "merging with command"

	name, args, err := exec.Program(r.Cmd)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	dir := r.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	oldPath, err := stage(dir, old)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}
	defer unstage(oldPath)

	newPath, err := stage(dir, updated)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}
	defer unstage(newPath)

	slog.Debug(
		"merge options",
		"preset", opts.Preset,
		"prettify", opts.PrettifyOutput,
	)

	args = slices.Clone(args)
	if opts.Preset != "" {
		args = append(args, "--preset", opts.Preset)
	}

	args = append(args, oldPath, newPath)

	out, err := exec.Output(ctx, dir, name, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return out, nil
}

func stage(dir string, content string) (string, error) {
	pa := filepath.Join(dir, uuid.NewString()+".ts")

	if err := os.WriteFile(pa, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("staging merge input: %w", err)
	}

	return pa, nil
}

func unstage(pa string) {
	err := os.Remove(pa)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove staged file", "path", pa, "error", err)
	}
}
