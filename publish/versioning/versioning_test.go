package versioning_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/spec_publisher/publish/git"
	"github.com/byte4ever/spec_publisher/publish/versioning"
)

// recordingTool returns a Tool whose command appends its
// arguments as one line to a log file in cwd.
func recordingTool(t *testing.T) (*versioning.Tool, string) {
	t.Helper()

	cwd := t.TempDir()
	logPath := filepath.Join(cwd, "calls.log")

	return &versioning.Tool{
		Command: []string{
			"sh", "-c", `echo "$@" >> "` + logPath + `"`, "version",
		},
		Cwd: cwd,
	}, logPath
}

func readCalls(t *testing.T, logPath string) []string {
	t.Helper()

	by, err := os.ReadFile(logPath)
	require.NoError(t, err)

	return strings.Split(strings.TrimSpace(string(by)), "\n")
}

func TestInitSpec(t *testing.T) {
	t.Parallel()

	tool, logPath := recordingTool(t)

	require.NoError(t, tool.InitSpec(context.Background(), "cli"))

	assert.Equal(
		t,
		[]string{"init-spec cli --cwd " + tool.Cwd},
		readCalls(t, logPath),
	)
}

func TestAddDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		useMinorBase bool
		want         string
	}{
		{
			name: "default base",
			want: "add-diff cli /tmp/new.ts 1.1.0 --cwd ",
		},
		{
			name:         "minor base",
			useMinorBase: true,
			want:         "add-diff --use-minor-base cli /tmp/new.ts 1.1.0 --cwd ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tool, logPath := recordingTool(t)

			require.NoError(t, tool.AddDiff(
				context.Background(),
				"cli", "/tmp/new.ts", "1.1.0", tt.useMinorBase,
			))

			assert.Equal(
				t,
				[]string{tt.want + tool.Cwd},
				readCalls(t, logPath),
			)
		})
	}
}

func TestAddDiff_requires_version(t *testing.T) {
	t.Parallel()

	tool, _ := recordingTool(t)

	err := tool.AddDiff(context.Background(), "cli", "/tmp/new.ts", "", false)
	require.ErrorIs(t, err, git.ErrValidation)
}

func TestInitSpec_command_failure(t *testing.T) {
	t.Parallel()

	tool := &versioning.Tool{
		Command: []string{"false"},
		Cwd:     t.TempDir(),
	}

	err := tool.InitSpec(context.Background(), "cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initializing versioned spec")
}

func TestNew_defaults(t *testing.T) {
	t.Parallel()

	tool := versioning.New("/repo")

	assert.Equal(t, versioning.DefaultCommand, tool.Command)
	assert.Equal(t, "/repo", tool.Cwd)
}
