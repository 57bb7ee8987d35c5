package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/spec_publisher/publish/exec"
)

func TestEx_success(t *testing.T) {
	t.Parallel()

	out, err := exec.Ex(context.Background(), "", "echo", "hello")

	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}

func TestEx_with_dir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	out, err := exec.Ex(context.Background(), dir, "pwd")

	require.NoError(t, err)
	assert.Contains(t, out, dir)
}

func TestEx_failure(t *testing.T) {
	t.Parallel()

	_, err := exec.Ex(context.Background(), "", "false")

	assert.Error(t, err)
}

func TestEx_cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Ex(ctx, "", "sleep", "5")

	assert.Error(t, err)
}

func TestOutput_stdout_only(t *testing.T) {
	t.Parallel()

	out, err := exec.Output(
		context.Background(), "",
		"sh", "-c", "echo merged; echo noise >&2",
	)

	require.NoError(t, err)
	assert.Equal(t, "merged\n", out)
}

func TestOutput_failure_quotes_stderr(t *testing.T) {
	t.Parallel()

	_, err := exec.Output(
		context.Background(), "",
		"sh", "-c", "echo conflict >&2; exit 3",
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestProgram(t *testing.T) {
	t.Parallel()

	name, args, err := exec.Program([]string{"npx", "eslint", "--fix"})

	require.NoError(t, err)
	assert.Equal(t, "npx", name)
	assert.Equal(t, []string{"eslint", "--fix"}, args)

	_, _, err = exec.Program(nil)
	assert.Error(t, err)
}
