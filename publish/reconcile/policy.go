package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/byte4ever/spec_publisher/publish/git"
)

// Options are handed to the Reconciler on every merge.
type Options struct {
	// Preset selects an integration specific merge
	// strategy. Empty means the default strategy.
	Preset string
	// PrettifyOutput asks the merge tool to format its
	// output. The policy always normalizes afterwards and
	// leaves it off.
	PrettifyOutput bool
}

// Normalizer lint fixes and formats the file or folder at
// path in place. It fails with *LintError when violations
// remain that cannot be fixed automatically.
type Normalizer interface {
	Normalize(ctx context.Context, path string) error
}

// NormalizerFunc adapts a plain function to Normalizer.
type NormalizerFunc func(ctx context.Context, path string) error

// Normalize implements Normalizer.
func (f NormalizerFunc) Normalize(ctx context.Context, path string) error {
	return f(ctx, path)
}

// Reconciler merges a previously published spec with a
// newly generated one. How divergences that cannot be
// merged are reported is up to the implementation: it
// either leaves conflict markers in the result or fails.
type Reconciler interface {
	Reconcile(
		ctx context.Context,
		old string,
		updated string,
		opts Options,
	) (string, error)
}

// ReconcilerFunc adapts a plain function to Reconciler.
type ReconcilerFunc func(
	ctx context.Context,
	old string,
	updated string,
	opts Options,
) (string, error)

// Reconcile implements Reconciler.
func (f ReconcilerFunc) Reconcile(
	ctx context.Context,
	old string,
	updated string,
	opts Options,
) (string, error) {
	return f(ctx, old, updated, opts)
}

// Config holds the collaborators and settings of a
// Policy.
type Config struct {
	Normalizer Normalizer
	Reconciler Reconciler
	// Preset is passed to every merge.
	Preset string
	// StageDir receives the temporary files handed to the
	// normalizer. Defaults to the system temp dir.
	StageDir string
	// Extension of staged files, ".ts" by default. The
	// lint and format tools pick their parser from it.
	Extension string
}

// Policy resolves the final text of a spec.
type Policy struct {
	normalizer Normalizer
	reconciler Reconciler
	preset     string
	stageDir   string
	ext        string
}

// NewPolicy validates cfg and returns a Policy.
func NewPolicy(cfg Config) (*Policy, error) {
	const errCtx = "creating reconcile policy"

	if cfg.Normalizer == nil || cfg.Reconciler == nil {
		return nil, fmt.Errorf(
			"%s: normalizer and reconciler are required: %w",
			errCtx, git.ErrValidation,
		)
	}

	p := &Policy{
		normalizer: cfg.Normalizer,
		reconciler: cfg.Reconciler,
		preset:     cfg.Preset,
		stageDir:   cfg.StageDir,
		ext:        cfg.Extension,
	}

	if p.stageDir == "" {
		p.stageDir = os.TempDir()
	}

	if p.ext == "" {
		p.ext = ".ts"
	}

	return p, nil
}

// Resolve returns the text to commit. With no existing
// spec it is the normalized new spec. Otherwise the
// existing and new specs are merged, unconditionally, and
// the merge result is normalized.
func (p *Policy) Resolve(
	ctx context.Context,
	existing *string,
	newSpec string,
) (string, error) {
	const errCtx = "resolving spec"

	text := newSpec

	if existing != nil {
		slog.Info("merging with the spec already published", "preset", p.preset)

		merged, err := p.reconciler.Reconcile(
			ctx, *existing, newSpec, p.options(),
		)
		if err != nil {
			return "", fmt.Errorf("%s: merging: %w", errCtx, err)
		}

		text = merged
	} else {
		slog.Info("no spec published yet, skipping merge")
	}

	out, err := p.NormalizeText(ctx, text)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return out, nil
}

// NormalizeText stages text in a temporary file, runs the
// normalizer on it and returns the result. The staged
// file is removed whatever the outcome.
func (p *Policy) NormalizeText(
	ctx context.Context,
	text string,
) (string, error) {
	const errCtx = "normalizing"

	staged := filepath.Join(p.stageDir, uuid.NewString()+p.ext)

	if err := os.WriteFile(staged, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("%s: staging: %w", errCtx, err)
	}

	defer func() {
		err := os.Remove(staged)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn(
				"failed to remove staged file",
				"path", staged,
				"error", err,
			)
		}
	}()

	if err := p.normalizer.Normalize(ctx, staged); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	out, err := os.ReadFile(staged) //nolint:gosec // staged above
	if err != nil {
		return "", fmt.Errorf("%s: reading back: %w", errCtx, err)
	}

	return string(out), nil
}

// NormalizePath runs the normalizer on a file or folder
// already staged by the caller.
func (p *Policy) NormalizePath(ctx context.Context, path string) error {
	if err := p.normalizer.Normalize(ctx, path); err != nil {
		return fmt.Errorf("normalizing %s: %w", path, err)
	}

	return nil
}

// ResolveFolder merges a generated spec folder with the
// published one. Every file of newDir that also exists
// under existingDir is replaced by the merge of both,
// without normalizing it; files only in newDir are kept
// as generated and files only in existingDir are left
// alone. The whole of newDir is normalized once at the
// end. An empty existingDir means nothing was published
// yet.
func (p *Policy) ResolveFolder(
	ctx context.Context,
	existingDir string,
	newDir string,
) error {
	const errCtx = "resolving spec folder"

	if existingDir != "" {
		merged := 0

		err := filepath.WalkDir(
			newDir,
			func(pa string, de fs.DirEntry, err error) error {
				if err != nil {
					return err
				}

				if !de.Type().IsRegular() {
					return nil
				}

				rel, err := filepath.Rel(newDir, pa)
				if err != nil {
					return err
				}

				ok, err := p.mergeFile(
					ctx, filepath.Join(existingDir, rel), pa,
				)
				if err != nil {
					return fmt.Errorf("%s: %w", rel, err)
				}

				if ok {
					merged++
				}

				return nil
			},
		)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		slog.Info("merged spec folder", "files", merged)
	}

	if err := p.NormalizePath(ctx, newDir); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// mergeFile merges oldPath into newPath in place. It
// reports false when oldPath does not exist.
func (p *Policy) mergeFile(
	ctx context.Context,
	oldPath string,
	newPath string,
) (bool, error) {
	old, err := os.ReadFile(oldPath) //nolint:gosec // inside the stage dir
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	updated, err := os.ReadFile(newPath) //nolint:gosec // inside the stage dir
	if err != nil {
		return false, err
	}

	merged, err := p.reconciler.Reconcile(
		ctx, string(old), string(updated), p.options(),
	)
	if err != nil {
		return false, err
	}

	st, err := os.Stat(newPath)
	if err != nil {
		return false, err
	}

	if err := os.WriteFile(newPath, []byte(merged), st.Mode().Perm()); err != nil {
		return false, err
	}

	return true, nil
}

func (p *Policy) options() Options {
	return Options{Preset: p.preset, PrettifyOutput: false}
}
