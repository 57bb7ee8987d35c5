package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/spec_publisher/publish/git"
	"github.com/byte4ever/spec_publisher/publish/git/gitfake"
	"github.com/byte4ever/spec_publisher/publish/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	pa := filepath.Join(t.TempDir(), "publish.yaml")
	require.NoError(t, os.WriteFile(pa, []byte(content), 0o600))

	return pa
}

func TestLoadConfigFile_overlays_defaults(t *testing.T) {
	t.Parallel()

	pa := writeConfig(t, `
owner: withfig
repo: autocomplete
spec_name: foo
preset: commander
fork_settle_delay: 30s
lint_command: [npx, eslint@8, --fix, --format, json]
`)

	cfg := pipeline.DefaultConfig()
	require.NoError(t, pipeline.LoadConfigFile(pa, &cfg))

	assert.Equal(t, "withfig", cfg.Owner)
	assert.Equal(t, "autocomplete", cfg.Repo)
	assert.Equal(t, "foo", cfg.SpecName)
	assert.Equal(t, "commander", cfg.Preset)
	assert.Equal(t, 30*time.Second, cfg.ForkSettleDelay)
	assert.Equal(
		t,
		[]string{"npx", "eslint@8", "--fix", "--format", "json"},
		cfg.LintCommand,
	)

	// untouched defaults
	assert.Equal(t, pipeline.DefaultPRTitle, cfg.PRTitle)
	assert.Equal(t, time.Second, cfg.VisibilityDelay)
}

func TestLoadConfigFile_unknown_key(t *testing.T) {
	t.Parallel()

	pa := writeConfig(t, "owner: withfig\nrepository: autocomplete\n")

	cfg := pipeline.DefaultConfig()
	err := pipeline.LoadConfigFile(pa, &cfg)
	require.ErrorIs(t, err, git.ErrValidation)
}

func TestLoadConfigFile_missing(t *testing.T) {
	t.Parallel()

	cfg := pipeline.DefaultConfig()
	err := pipeline.LoadConfigFile("/nonexistent/publish.yaml", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config file")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() pipeline.Config {
		cfg := pipeline.DefaultConfig()
		cfg.Owner = "withfig"
		cfg.Repo = "autocomplete"
		cfg.SpecName = "foo"
		cfg.SpecPath = "generated.ts"
		cfg.Store = gitfake.New("bot")

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*pipeline.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*pipeline.Config) {}},
		{
			name:    "missing owner",
			mutate:  func(c *pipeline.Config) { c.Owner = "" },
			wantErr: true,
		},
		{
			name:    "missing spec name",
			mutate:  func(c *pipeline.Config) { c.SpecName = "" },
			wantErr: true,
		},
		{
			name:   "nested spec name",
			mutate: func(c *pipeline.Config) { c.SpecName = "@withfig/tools" },
		},
		{
			name:    "spec name escaping src",
			mutate:  func(c *pipeline.Config) { c.SpecName = "../foo" },
			wantErr: true,
		},
		{
			name:    "absolute spec name",
			mutate:  func(c *pipeline.Config) { c.SpecName = "/foo" },
			wantErr: true,
		},
		{
			name:    "spec name with dot segment",
			mutate:  func(c *pipeline.Config) { c.SpecName = "a/../b" },
			wantErr: true,
		},
		{
			name:    "spec name with space",
			mutate:  func(c *pipeline.Config) { c.SpecName = "foo bar" },
			wantErr: true,
		},
		{
			name:    "missing spec path",
			mutate:  func(c *pipeline.Config) { c.SpecPath = "" },
			wantErr: true,
		},
		{
			name:    "versioning without version",
			mutate:  func(c *pipeline.Config) { c.DiffBasedVersioning = true },
			wantErr: true,
		},
		{
			name: "versioning with version",
			mutate: func(c *pipeline.Config) {
				c.DiffBasedVersioning = true
				c.NewSpecVersion = "1.0.0"
			},
		},
		{
			name: "versioning with invalid version",
			mutate: func(c *pipeline.Config) {
				c.DiffBasedVersioning = true
				c.NewSpecVersion = "next"
			},
			wantErr: true,
		},
		{
			name: "versioning with spec folder",
			mutate: func(c *pipeline.Config) {
				c.DiffBasedVersioning = true
				c.NewSpecVersion = "1.0.0"
				c.SpecFolderPath = "folder"
			},
			wantErr: true,
		},
		{
			name:    "empty branch prefix",
			mutate:  func(c *pipeline.Config) { c.BranchPrefix = "" },
			wantErr: true,
		},
		{
			name:    "no store",
			mutate:  func(c *pipeline.Config) { c.Store = nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, git.ErrValidation)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestConfig_paths(t *testing.T) {
	t.Parallel()

	cfg := pipeline.Config{Owner: "withfig", Repo: "autocomplete", SpecName: "git"}

	assert.Equal(t, "withfig/autocomplete", cfg.Upstream().String())
	assert.Equal(t, "src/git.ts", cfg.SpecFilePath())
	assert.Equal(t, "src/git", cfg.SpecDirPath())
}
