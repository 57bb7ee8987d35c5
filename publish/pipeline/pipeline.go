// Package pipeline publishes a generated spec to an
// upstream repository through the caller's fork: it
// stages and reconciles the spec with the published one,
// commits the result on a fresh branch of the fork and
// opens a pull request when the commit changes anything.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/otiai10/copy"

	"github.com/byte4ever/spec_publisher/publish/commit"
	"github.com/byte4ever/spec_publisher/publish/commitmsg"
	"github.com/byte4ever/spec_publisher/publish/fork"
	"github.com/byte4ever/spec_publisher/publish/git"
	"github.com/byte4ever/spec_publisher/publish/reconcile"
	"github.com/byte4ever/spec_publisher/publish/stamper"
	"github.com/byte4ever/spec_publisher/publish/versioning"
)

// Result reports the outcome of a run.
type Result struct {
	// Fork the branch was pushed to. Empty on dry runs.
	Fork git.RepoRef
	// Branch created on the fork.
	Branch string
	// Paths are the repository paths of the staged
	// changes.
	Paths []string
	// HasDiff is true when the commit changed the fork's
	// default branch.
	HasDiff bool
	// PRNumber is the opened pull request, zero without a
	// diff.
	PRNumber int
}

// collaborators bundles what a run delegates to.
type collaborators struct {
	store     git.ObjectStore
	policy    *reconcile.Policy
	versioner Versioner
	publisher git.PullRequestOpener
	sleep     func(ctx context.Context, d time.Duration) error
}

// Run executes the full publishing workflow.
func Run(ctx context.Context, cfg Config) (Result, error) {
	const errCtx = "publishing spec"

	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := os.MkdirAll(cfg.TmpDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	stage, err := os.MkdirTemp(cfg.TmpDir, "spec-publisher-")
	if err != nil {
		return Result{}, fmt.Errorf(
			"%s: creating stage dir: %w", errCtx, err,
		)
	}

	defer func() {
		if rmErr := os.RemoveAll(stage); rmErr != nil {
			slog.Error(
				"failed to remove stage dir",
				"path", stage,
				"error", rmErr,
			)
		}
	}()

	vars, err := stamper.LoadVars(cfg.VarsFiles)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	vars = vars.With(stamper.Vars{
		"SPEC_NAME": cfg.SpecName,
		"SPEC_PATH": cfg.SpecFilePath(),
	})

	co, err := newCollaborators(cfg, stage)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"target repository",
		"repo", cfg.Upstream().String(),
		"spec", cfg.SpecName,
	)

	// Step 1: stage and normalize the generated spec.
	changes, err := stageChanges(ctx, cfg, co, stage)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	paths := repoPaths(changes)

	if cfg.DryRun {
		slog.Info(
			"dry run: skipping commit and pull request",
			"paths", paths,
		)

		return Result{Paths: paths}, nil
	}

	// Step 2: find or create the fork.
	manager, err := fork.NewManager(co.store, fork.Config{
		Upstream:      cfg.Upstream(),
		DefaultBranch: cfg.DefaultBranch,
		SettleDelay:   cfg.ForkSettleDelay,
		Sleep:         co.sleep,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	prefix := stamper.Render(cfg.BranchPrefix, vars)

	forkRef, err := manager.EnsureFork(ctx, prefix+"/")
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	base, err := manager.DefaultBranch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 3: one commit on a fresh branch.
	branch := prefix + "/" + uuid.NewString()

	vars = vars.With(stamper.Vars{
		"FORK_OWNER": forkRef.Owner,
		"BRANCH":     branch,
	})

	builder := commit.NewBuilder(
		co.store, commit.WithUploadInterval(cfg.UploadInterval),
	)

	res, err := builder.CommitOnNewBranch(
		ctx,
		forkRef,
		base,
		branch,
		commitmsg.Generate(stamper.Render(cfg.CommitSubject, vars), paths),
		changes,
	)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	out := Result{
		Fork:    forkRef,
		Branch:  branch,
		Paths:   paths,
		HasDiff: res.HasDiff,
	}

	if !res.HasDiff {
		slog.Info("no diffs found between old and new specs")

		return out, nil
	}

	// Step 4: pull request, once the commit is visible.
	if cfg.VisibilityDelay > 0 {
		if err := co.sleep(ctx, cfg.VisibilityDelay); err != nil {
			return Result{}, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	out.PRNumber, err = co.publisher.OpenPR(
		ctx,
		forkRef.Owner+":"+branch,
		base,
		stamper.Render(cfg.PRTitle, vars),
		stamper.Render(cfg.PRBody, vars),
	)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return out, nil
}

func newCollaborators(cfg Config, stage string) (collaborators, error) {
	co := collaborators{
		store:     cfg.Store,
		versioner: cfg.Versioner,
		publisher: cfg.Publisher,
		sleep:     cfg.Sleep,
	}

	if co.sleep == nil {
		co.sleep = fork.Sleep
	}

	if co.publisher == nil {
		co.publisher = git.NewStorePublisher(cfg.Store, cfg.Upstream())
	}

	if co.versioner == nil {
		tool := versioning.New(stage)
		if cfg.VersionCommand != nil {
			tool.Command = cfg.VersionCommand
		}

		co.versioner = tool
	}

	normalizer := cfg.Normalizer
	if normalizer == nil {
		cn := reconcile.NewCommandNormalizer(stage)
		if cfg.LintCommand != nil {
			cn.LintCmd = cfg.LintCommand
		}

		if cfg.FormatCommand != nil {
			cn.FormatCmd = cfg.FormatCommand
		}

		normalizer = cn
	}

	reconciler := cfg.Reconciler
	if reconciler == nil {
		cmd := reconcile.DefaultMergeCommand
		if cfg.MergeCommand != nil {
			cmd = cfg.MergeCommand
		}

		reconciler = &reconcile.CommandReconciler{Cmd: cmd, Dir: stage}
	}

	policy, err := reconcile.NewPolicy(reconcile.Config{
		Normalizer: normalizer,
		Reconciler: reconciler,
		Preset:     cfg.Preset,
		StageDir:   stage,
	})
	if err != nil {
		return collaborators{}, err
	}

	co.policy = policy

	return co, nil
}

// stageChanges prepares every file to commit under stage
// and returns where each lands in the repository.
func stageChanges(
	ctx context.Context,
	cfg Config,
	co collaborators,
	stage string,
) ([]git.FileChange, error) {
	const errCtx = "staging changes"

	newSpec := filepath.Join(stage, uuid.NewString()+".ts")

	if err := copy.Copy(cfg.SpecPath, newSpec); err != nil {
		return nil, fmt.Errorf(
			"%s: copying %s: %w", errCtx, cfg.SpecPath, err,
		)
	}

	if err := co.policy.NormalizePath(ctx, newSpec); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.DiffBasedVersioning {
		change, err := stageVersioned(ctx, cfg, co, stage, newSpec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return []git.FileChange{change}, nil
	}

	file, err := stageFile(ctx, cfg, co, stage, newSpec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	changes := []git.FileChange{file}

	if cfg.SpecFolderPath != "" {
		folder, err := stageFolder(ctx, cfg, co, stage)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		changes = append(changes, folder)
	}

	return changes, nil
}

// stageFile resolves the spec file against the one
// published upstream.
func stageFile(
	ctx context.Context,
	cfg Config,
	co collaborators,
	stage string,
	newSpec string,
) (git.FileChange, error) {
	existing, err := fetchFile(ctx, co.store, cfg.Upstream(), cfg.SpecFilePath())
	if err != nil {
		return git.FileChange{}, err
	}

	by, err := os.ReadFile(newSpec) //nolint:gosec // inside the stage dir
	if err != nil {
		return git.FileChange{}, err
	}

	resolved, err := co.policy.Resolve(ctx, existing, string(by))
	if err != nil {
		return git.FileChange{}, err
	}

	out := filepath.Join(stage, "resolved-spec.ts")
	if err := os.WriteFile(out, []byte(resolved), 0o600); err != nil {
		return git.FileChange{}, err
	}

	return git.FileChange{
		RepoPath:  cfg.SpecFilePath(),
		LocalPath: out,
	}, nil
}

// stageFolder copies the generated folder into stage and
// merges it with the published one.
func stageFolder(
	ctx context.Context,
	cfg Config,
	co collaborators,
	stage string,
) (git.FileChange, error) {
	newDir := filepath.Join(stage, "generated-"+uuid.NewString())

	if err := copy.Copy(cfg.SpecFolderPath, newDir); err != nil {
		return git.FileChange{}, fmt.Errorf(
			"copying %s: %w", cfg.SpecFolderPath, err,
		)
	}

	published := filepath.Join(stage, "published", cfg.SpecName)

	found, err := fetchFolder(
		ctx, co.store, cfg.Upstream(), cfg.SpecDirPath(), published,
	)
	if err != nil {
		return git.FileChange{}, err
	}

	if !found {
		published = ""
	}

	if err := co.policy.ResolveFolder(ctx, published, newDir); err != nil {
		return git.FileChange{}, err
	}

	return git.FileChange{
		RepoPath:  cfg.SpecDirPath(),
		LocalPath: newDir,
	}, nil
}

// stageVersioned folds the new spec into the versioned
// folder, creating the folder when it was never
// published.
func stageVersioned(
	ctx context.Context,
	cfg Config,
	co collaborators,
	stage string,
	newSpec string,
) (git.FileChange, error) {
	folder := filepath.Join(stage, cfg.SpecName)

	found, err := fetchFolder(
		ctx, co.store, cfg.Upstream(), cfg.SpecDirPath(), folder,
	)
	if err != nil {
		return git.FileChange{}, err
	}

	if !found {
		if err := co.versioner.InitSpec(ctx, cfg.SpecName); err != nil {
			return git.FileChange{}, err
		}
	}

	if err := co.versioner.AddDiff(
		ctx, cfg.SpecName, newSpec, cfg.NewSpecVersion, cfg.UseMinorBase,
	); err != nil {
		return git.FileChange{}, err
	}

	if err := co.policy.NormalizePath(ctx, folder); err != nil {
		return git.FileChange{}, err
	}

	return git.FileChange{
		RepoPath:  cfg.SpecDirPath(),
		LocalPath: folder,
	}, nil
}

func repoPaths(changes []git.FileChange) []string {
	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.RepoPath)
	}

	return paths
}
