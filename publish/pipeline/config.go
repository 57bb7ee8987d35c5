package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"

	"github.com/byte4ever/spec_publisher/publish/commit"
	"github.com/byte4ever/spec_publisher/publish/fork"
	"github.com/byte4ever/spec_publisher/publish/git"
	"github.com/byte4ever/spec_publisher/publish/reconcile"
)

// Defaults of the templates, rendered with the
// placeholders listed on Config.
const (
	DefaultBranchPrefix  = "auto-update/{SPEC_NAME}"
	DefaultCommitSubject = "feat: update spec"
	DefaultPRTitle       = "feat({SPEC_NAME}): update spec"
	DefaultPRBody        = "PR generated automatically from " +
		"push-to-fig-autocomplete-action."
)

// DefaultVisibilityDelay is the wait between the branch
// update and the pull request creation.
const DefaultVisibilityDelay = time.Second

// Versioner maintains the versioned folder of a spec.
type Versioner interface {
	InitSpec(ctx context.Context, name string) error
	AddDiff(
		ctx context.Context,
		name string,
		newSpecPath string,
		version string,
		useMinorBase bool,
	) error
}

// Config holds all settings for one publishing run.
//
// Templates may use {SPEC_NAME} and {SPEC_PATH}; the
// commit subject and pull request title and body may
// also use {FORK_OWNER} and {BRANCH}. Variables read
// from VarsFiles are available everywhere.
type Config struct {
	// Owner and Repo name the upstream repository.
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// DefaultBranch of the upstream. Resolved from the
	// provider when empty.
	DefaultBranch string `yaml:"default_branch"`

	// SpecName is the spec name; it lands at
	// src/<SpecName>.ts or src/<SpecName>/.
	SpecName string `yaml:"spec_name"`

	// SpecPath is the locally generated spec file.
	SpecPath string `yaml:"spec_path"`

	// SpecFolderPath is an optional generated folder
	// published next to the spec file.
	SpecFolderPath string `yaml:"spec_folder_path"`

	// Preset selects the merge strategy of an
	// integration.
	Preset string `yaml:"preset"`

	// DiffBasedVersioning publishes the spec as a
	// versioned folder of diffs.
	DiffBasedVersioning bool `yaml:"diff_based_versioning"`

	// NewSpecVersion is the version added in diff based
	// versioning mode.
	NewSpecVersion string `yaml:"new_spec_version"`

	// UseMinorBase computes the diff against the closest
	// minor version.
	UseMinorBase bool `yaml:"use_minor_base"`

	// TmpDir receives the per run stage directory.
	TmpDir string `yaml:"tmp_dir"`

	BranchPrefix  string `yaml:"branch_prefix"`
	CommitSubject string `yaml:"commit_subject"`
	PRTitle       string `yaml:"pr_title"`
	PRBody        string `yaml:"pr_body"`

	// VarsFiles are KEY VALUE files of extra template
	// variables.
	VarsFiles []string `yaml:"vars_files"`

	// Commands of the external collaborators. Nil means
	// the default command of each.
	LintCommand    []string `yaml:"lint_command"`
	FormatCommand  []string `yaml:"format_command"`
	MergeCommand   []string `yaml:"merge_command"`
	VersionCommand []string `yaml:"version_command"`

	ForkSettleDelay time.Duration `yaml:"fork_settle_delay"`
	VisibilityDelay time.Duration `yaml:"visibility_delay"`
	UploadInterval  time.Duration `yaml:"upload_interval"`

	// DryRun stops once the files to commit are staged.
	DryRun bool `yaml:"dry_run"`

	// Store talks to the git hosting provider.
	Store git.ObjectStore `yaml:"-"`

	// Normalizer, Reconciler and Versioner replace the
	// command based collaborators when set.
	Normalizer reconcile.Normalizer `yaml:"-"`
	Reconciler reconcile.Reconciler `yaml:"-"`
	Versioner  Versioner            `yaml:"-"`

	// Publisher opens the pull request. Defaults to a
	// git.StorePublisher on Store targeting the upstream.
	Publisher git.PullRequestOpener `yaml:"-"`

	// Sleep implements the fixed waits. Defaults to
	// fork.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error `yaml:"-"`
}

// DefaultConfig returns a Config with every optional
// setting at its default.
func DefaultConfig() Config {
	return Config{
		TmpDir:          os.TempDir(),
		BranchPrefix:    DefaultBranchPrefix,
		CommitSubject:   DefaultCommitSubject,
		PRTitle:         DefaultPRTitle,
		PRBody:          DefaultPRBody,
		ForkSettleDelay: fork.DefaultSettleDelay,
		VisibilityDelay: DefaultVisibilityDelay,
		UploadInterval:  commit.DefaultUploadInterval,
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg.
// Keys absent from the file leave cfg untouched.
func LoadConfigFile(path string, cfg *Config) error {
	const errCtx = "loading config file"

	by, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := yaml.UnmarshalWithOptions(
		by, cfg, yaml.DisallowUnknownField(),
	); err != nil {
		return fmt.Errorf(
			"%s: %s: %w: %w", errCtx, path, git.ErrValidation, err,
		)
	}

	return nil
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	const errCtx = "validating config"

	switch {
	case c.Owner == "" || c.Repo == "":
		return fmt.Errorf(
			"%s: upstream owner and repo are required: %w",
			errCtx, git.ErrValidation,
		)
	case c.SpecName == "":
		return fmt.Errorf(
			"%s: spec name is required: %w",
			errCtx, git.ErrValidation,
		)
	case !isSpecName(c.SpecName):
		return fmt.Errorf(
			"%s: spec name %q must be a relative slash "+
				"separated path without dot segments: %w",
			errCtx, c.SpecName, git.ErrValidation,
		)
	case c.SpecPath == "":
		return fmt.Errorf(
			"%s: spec path is required: %w",
			errCtx, git.ErrValidation,
		)
	case c.DiffBasedVersioning && c.NewSpecVersion == "":
		return fmt.Errorf(
			"%s: a new spec version is required with "+
				"diff based versioning: %w",
			errCtx, git.ErrValidation,
		)
	case c.DiffBasedVersioning && !isVersion(c.NewSpecVersion):
		return fmt.Errorf(
			"%s: new spec version %q is not a semantic version: %w",
			errCtx, c.NewSpecVersion, git.ErrValidation,
		)
	case c.DiffBasedVersioning && c.SpecFolderPath != "":
		return fmt.Errorf(
			"%s: a spec folder cannot be combined with "+
				"diff based versioning: %w",
			errCtx, git.ErrValidation,
		)
	case c.BranchPrefix == "":
		return fmt.Errorf(
			"%s: branch prefix is required: %w",
			errCtx, git.ErrValidation,
		)
	case c.Store == nil:
		return fmt.Errorf(
			"%s: no object store: %w",
			errCtx, git.ErrValidation,
		)
	}

	return nil
}

// isSpecName reports whether name is safe to join under
// src/ and into a branch name.
func isSpecName(name string) bool {
	if name != path.Clean(name) || !filepath.IsLocal(name) {
		return false
	}

	if strings.ContainsAny(name, "\\ ~^:?*[\t\n") {
		return false
	}

	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") || strings.HasSuffix(seg, ".lock") {
			return false
		}
	}

	return true
}

func isVersion(v string) bool {
	_, err := semver.NewVersion(v)

	return err == nil
}

// Upstream returns the upstream repository.
func (c Config) Upstream() git.RepoRef {
	return git.RepoRef{Owner: c.Owner, Name: c.Repo}
}

// SpecFilePath is the repository path of the spec file.
func (c Config) SpecFilePath() string {
	return "src/" + c.SpecName + ".ts"
}

// SpecDirPath is the repository path of the spec folder.
func (c Config) SpecDirPath() string {
	return "src/" + c.SpecName
}
