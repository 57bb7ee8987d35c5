package reconcile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/spec_publisher/publish/reconcile"
)

// script builds a command running a shell snippet that
// receives the target path as $1.
func script(body string) []string {
	return []string{"sh", "-c", body, "tool"}
}

func stagedSpec(t *testing.T, content string) string {
	t.Helper()

	pa := filepath.Join(t.TempDir(), "spec.ts")
	require.NoError(t, os.WriteFile(pa, []byte(content), 0o600))

	return pa
}

func TestCommandNormalizer_clean_report_then_format(t *testing.T) {
	t.Parallel()

	pa := stagedSpec(t, "raw")

	n := &reconcile.CommandNormalizer{
		LintCmd:   script(`echo '[{"filePath":"'"$1"'","messages":[]}]'`),
		FormatCmd: script(`printf 'formatted\n' > "$1"`),
	}

	require.NoError(t, n.Normalize(context.Background(), pa))

	got, err := os.ReadFile(pa)
	require.NoError(t, err)
	assert.Equal(t, "formatted\n", string(got))
}

func TestCommandNormalizer_unfixable_errors(t *testing.T) {
	t.Parallel()

	pa := stagedSpec(t, "raw")

	report := `[{"filePath":"spec.ts","messages":[` +
		`{"ruleId":"no-undef","severity":2,"message":"x is not defined","line":3,"column":7},` +
		`{"ruleId":"semi","severity":1,"message":"missing semicolon","line":4,"column":1}` +
		`]}]`

	n := &reconcile.CommandNormalizer{
		LintCmd:   script(`echo '` + report + `'; exit 1`),
		FormatCmd: script(`printf 'formatted\n' > "$1"`),
	}

	err := n.Normalize(context.Background(), pa)

	var lintErr *reconcile.LintError
	require.ErrorAs(t, err, &lintErr)
	require.Len(t, lintErr.Violations, 1)
	assert.Equal(
		t,
		reconcile.Violation{
			Path:    "spec.ts",
			RuleID:  "no-undef",
			Line:    3,
			Column:  7,
			Message: "x is not defined",
		},
		lintErr.Violations[0],
	)
	assert.Contains(t, err.Error(), "no-undef 3:7 - x is not defined")

	got, err := os.ReadFile(pa)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(got))
}

func TestCommandNormalizer_linter_crash(t *testing.T) {
	t.Parallel()

	n := &reconcile.CommandNormalizer{
		LintCmd: script(`echo 'cannot find module' >&2; exit 2`),
	}

	err := n.Normalize(context.Background(), stagedSpec(t, "raw"))
	require.Error(t, err)

	var lintErr *reconcile.LintError
	assert.NotErrorAs(t, err, &lintErr)
	assert.Contains(t, err.Error(), "cannot find module")
}

func TestCommandNormalizer_format_only(t *testing.T) {
	t.Parallel()

	pa := stagedSpec(t, "raw")

	n := &reconcile.CommandNormalizer{
		FormatCmd: script(`printf 'pretty' > "$1"`),
	}

	require.NoError(t, n.Normalize(context.Background(), pa))

	got, err := os.ReadFile(pa)
	require.NoError(t, err)
	assert.Equal(t, "pretty", string(got))
}

func TestNewCommandNormalizer_defaults(t *testing.T) {
	t.Parallel()

	n := reconcile.NewCommandNormalizer("/work")

	assert.Equal(t, reconcile.DefaultLintCommand, n.LintCmd)
	assert.Equal(t, reconcile.DefaultFormatCommand, n.FormatCmd)
	assert.Equal(t, reconcile.DefaultESLintConfig, n.ESLintConfig)
	assert.Equal(t, reconcile.DefaultLintSetupCommand, n.SetupCmd)
	assert.Equal(t, "/work", n.Dir)
}

func TestCommandNormalizer_stages_eslint_config(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// The linter only reports when it gets the staged config
	// and the setup command ran in the same dir.
	lint := `test "$1" = --config &&
grep -q '"extends":"@fig/autocomplete"' "$2" &&
test -f installed &&
echo '[{"filePath":"'"$3"'","messages":[]}]'`

	n := &reconcile.CommandNormalizer{
		LintCmd:      script(lint),
		Dir:          dir,
		ESLintConfig: reconcile.DefaultESLintConfig,
		SetupCmd:     script(`echo run >> installed`),
	}

	require.NoError(t, n.Normalize(context.Background(), stagedSpec(t, "a")))
	require.NoError(t, n.Normalize(context.Background(), stagedSpec(t, "b")))

	installs, err := os.ReadFile(filepath.Join(dir, "installed"))
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(installs))

	cfg, err := os.ReadFile(filepath.Join(dir, ".tmp-eslintrc"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"extends":"@fig/autocomplete"}`, string(cfg))
}

func TestCommandNormalizer_setup_failure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	n := &reconcile.CommandNormalizer{
		LintCmd:      script(`echo '[]'`),
		Dir:          dir,
		ESLintConfig: reconcile.DefaultESLintConfig,
		SetupCmd:     script(`echo 'npm ERR! 404' >&2; exit 1`),
	}

	err := n.Normalize(context.Background(), stagedSpec(t, "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging lint config")
	assert.NoFileExists(t, filepath.Join(dir, ".tmp-eslintrc"))
}
