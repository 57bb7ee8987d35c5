// Command publish_spec publishes a generated spec to an
// upstream repository through the caller's fork and opens
// a pull request when the spec changed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/shlex"
	"github.com/joho/godotenv"

	"github.com/byte4ever/spec_publisher/publish/git/github"
	"github.com/byte4ever/spec_publisher/publish/pipeline"
)

// sliceFlag implements flag.Value for multi-value
// string flags (repeated --flag=val usage).
type sliceFlag []string

// String returns the flag value as a comma-separated
// string representation.
func (s *sliceFlag) String() string {
	if s == nil {
		return ""
	}

	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *sliceFlag) Set(val string) error {
	*s = append(*s, val)

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)

	err := run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // CLI flag setup is inherently long
func run(ctx context.Context, args []string, stdout io.Writer) error {
	const errCtx = "running publish_spec"

	cfg := pipeline.DefaultConfig()

	fs := flag.NewFlagSet("publish_spec", flag.ContinueOnError)

	configPath := fs.String(
		"config", "",
		"YAML file with default settings, flags win over it",
	)
	verbose := fs.Bool(
		"verbose", false,
		"Log at debug level",
	)

	// Upstream repository flags.
	fs.StringVar(
		&cfg.Owner, "repo_org", cfg.Owner,
		"Upstream repository owner",
	)
	fs.StringVar(
		&cfg.Repo, "repo_name", cfg.Repo,
		"Upstream repository name",
	)
	fs.StringVar(
		&cfg.DefaultBranch, "default_branch", cfg.DefaultBranch,
		"Upstream default branch (resolved when empty)",
	)

	// Spec flags.
	fs.StringVar(
		&cfg.SpecName, "spec_name", cfg.SpecName,
		"Spec name, published at src/<name>.ts",
	)
	fs.StringVar(
		&cfg.SpecPath, "spec_path", cfg.SpecPath,
		"Path of the generated spec file",
	)
	fs.StringVar(
		&cfg.SpecFolderPath, "spec_folder_path", cfg.SpecFolderPath,
		"Path of a generated spec folder published at src/<name>",
	)
	fs.StringVar(
		&cfg.Preset, "integration", cfg.Preset,
		"Merge preset of the integration generating the spec",
	)
	fs.BoolVar(
		&cfg.DiffBasedVersioning, "diff_based_versioning",
		cfg.DiffBasedVersioning,
		"Publish the spec as a versioned folder of diffs",
	)
	fs.StringVar(
		&cfg.NewSpecVersion, "new_spec_version", cfg.NewSpecVersion,
		"Version added with diff based versioning",
	)
	fs.BoolVar(
		&cfg.UseMinorBase, "use_minor_base", cfg.UseMinorBase,
		"Diff against the closest minor version",
	)
	fs.StringVar(
		&cfg.TmpDir, "tmp_dir", cfg.TmpDir,
		"Directory for the per run stage dir",
	)

	// Template flags.
	fs.StringVar(
		&cfg.BranchPrefix, "branch_prefix", cfg.BranchPrefix,
		"Template of the branch prefix",
	)
	fs.StringVar(
		&cfg.CommitSubject, "commit_subject", cfg.CommitSubject,
		"Template of the commit subject",
	)
	fs.StringVar(
		&cfg.PRTitle, "pr_title", cfg.PRTitle,
		"Template of the pull request title",
	)
	fs.StringVar(
		&cfg.PRBody, "pr_body", cfg.PRBody,
		"Template of the pull request body",
	)

	var varsFiles sliceFlag

	fs.Var(
		&varsFiles,
		"vars_file",
		"KEY VALUE file of template variables (repeatable)",
	)

	// Timing flags.
	fs.DurationVar(
		&cfg.ForkSettleDelay, "fork_settle_delay", cfg.ForkSettleDelay,
		"Wait after requesting a fork",
	)
	fs.DurationVar(
		&cfg.VisibilityDelay, "visibility_delay", cfg.VisibilityDelay,
		"Wait between the branch update and the pull request",
	)
	fs.DurationVar(
		&cfg.UploadInterval, "upload_interval", cfg.UploadInterval,
		"Minimum delay between two blob uploads",
	)

	fs.BoolVar(
		&cfg.DryRun, "dry_run", cfg.DryRun,
		"Stage and reconcile only",
	)

	// Collaborator command lines, split like a shell.
	lintCmd := fs.String(
		"lint_command", "",
		"Lint fix command, the path is appended",
	)
	formatCmd := fs.String(
		"format_command", "",
		"Format command, the path is appended",
	)
	mergeCmd := fs.String(
		"merge_command", "",
		"Merge command, run as <cmd> [--preset P] <old> <new>",
	)
	versionCmd := fs.String(
		"version_command", "",
		"Version diff command, run with init-spec or add-diff",
	)

	envFile := fs.String(
		"env_file", "",
		"Optional .env file loaded before reading GITHUB_TOKEN",
	)

	// GitHub flags.
	ghToken := fs.String(
		"github_access_token", "",
		"GitHub token, defaults to $GITHUB_TOKEN",
	)
	ghEnterprise := fs.String(
		"github_enterprise_host", "",
		"GitHub Enterprise hostname",
	)

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if *configPath != "" {
		if err := pipeline.LoadConfigFile(*configPath, &cfg); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		// Explicit flags win over the file.
		varsFiles = nil

		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	cfg.VarsFiles = append(cfg.VarsFiles, varsFiles...)

	for _, c := range []struct {
		line string
		dst  *[]string
	}{
		{*lintCmd, &cfg.LintCommand},
		{*formatCmd, &cfg.FormatCommand},
		{*mergeCmd, &cfg.MergeCommand},
		{*versionCmd, &cfg.VersionCommand},
	} {
		if c.line == "" {
			continue
		}

		words, err := shlex.Split(c.line)
		if err != nil {
			return fmt.Errorf(
				"%s: command %q must be valid: %w", errCtx, c.line, err,
			)
		}

		*c.dst = words
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("%s: loading env file: %w", errCtx, err)
		}
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		os.Stderr, &slog.HandlerOptions{Level: level},
	)))

	token := *ghToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	store, err := github.NewStore(github.Config{
		AccessToken:    token,
		EnterpriseHost: *ghEnterprise,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg.Store = store

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	switch {
	case cfg.DryRun:
		_, err = fmt.Fprintf(
			stdout, "staged=%s\n", strings.Join(res.Paths, ","),
		)
	case res.HasDiff:
		_, err = fmt.Fprintf(stdout, "pr-number=%d\n", res.PRNumber)
	default:
		_, err = fmt.Fprintln(stdout, "no-diff")
	}

	if err != nil {
		return fmt.Errorf("%s: writing output: %w", errCtx, err)
	}

	return nil
}
