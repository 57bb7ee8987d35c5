// Package exec runs the external collaborators of the
// publishing pipeline (lint, format, merge and version
// tools) as subprocesses.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Ex executes the named command in dir and returns the
// combined stdout+stderr output. Pass empty dir to use
// the current working directory.
func Ex(
	ctx context.Context,
	dir string,
	name string,
	arg ...string,
) (string, error) {
	const errCtx = "executing command"

	slog.Info(
		"executing",
		"cmd", name,
		"args", strings.Join(arg, " "),
		"dir", dir,
	)

	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = dir

	by, err := cmd.CombinedOutput()

	slog.Debug("output", "result", string(by))

	if err != nil {
		return string(by), fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, name, strings.Join(arg, " "), err,
		)
	}

	return string(by), nil
}

// Output executes the named command in dir and returns
// its stdout alone. On failure stdout is still returned
// and stderr is quoted in the error.
func Output(
	ctx context.Context,
	dir string,
	name string,
	arg ...string,
) (string, error) {
	const errCtx = "executing command"

	slog.Info(
		"executing",
		"cmd", name,
		"args", strings.Join(arg, " "),
		"dir", dir,
	)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf(
			"%s: %s %s: %w: %s",
			errCtx, name, strings.Join(arg, " "), err,
			strings.TrimSpace(stderr.String()),
		)
	}

	if stderr.Len() > 0 {
		slog.Debug("stderr", "result", stderr.String())
	}

	return stdout.String(), nil
}

// Program separates the program from its arguments in an
// argv, failing when there is no program.
func Program(command []string) (string, []string, error) {
	if len(command) == 0 || command[0] == "" {
		return "", nil, fmt.Errorf("empty command")
	}

	return command[0], command[1:], nil
}
