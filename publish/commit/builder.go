// Package commit builds one atomic multi-file commit on
// a fresh branch of a fork using the low-level git object
// endpoints: blobs, then a single tree overlaid on the
// branch point, then one commit, then a forced ref move.
package commit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/byte4ever/spec_publisher/publish/digester"
	"github.com/byte4ever/spec_publisher/publish/git"
)

// DefaultUploadInterval is the pause between two blob
// uploads.
const DefaultUploadInterval = time.Second

// Result describes the commit produced by
// CommitOnNewBranch.
type Result struct {
	// Base is the branch point the branch was cut from.
	// Its TreeSHA and CommitSHA come from the latest
	// commit listing.
	Base git.BranchPoint
	// Commit is the single commit created.
	Commit git.Commit
	// Blobs are the tree entries written, in upload
	// order.
	Blobs []git.BlobRef
	// Changed lists the paths differing from Base.
	Changed []string
	// HasDiff is true when Changed is not empty.
	HasDiff bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithUploadInterval sets the minimum delay between two
// blob uploads. Zero or negative disables throttling.
func WithUploadInterval(d time.Duration) Option {
	return func(b *Builder) {
		if d <= 0 {
			b.limiter = rate.NewLimiter(rate.Inf, 1)

			return
		}

		b.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// Builder creates commits through an ObjectStore.
type Builder struct {
	store   git.ObjectStore
	limiter *rate.Limiter
}

// NewBuilder returns a Builder writing to store.
func NewBuilder(store git.ObjectStore, opts ...Option) *Builder {
	b := &Builder{
		store: store,
		limiter: rate.NewLimiter(
			rate.Every(DefaultUploadInterval), 1,
		),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// CommitOnNewBranch creates branch on fork at the head of
// baseBranch, then commits changes on it as exactly one
// commit whose sole parent is that head. The branch is
// left on the new commit whether or not it differs from
// the base; Result.HasDiff tells the caller if a pull
// request is warranted.
//
// The diff is computed against the previous head of
// baseBranch, never against the upstream, so unrelated
// upstream changes do not show up as differences.
func (b *Builder) CommitOnNewBranch(
	ctx context.Context,
	fork git.RepoRef,
	baseBranch string,
	branch string,
	message string,
	changes []git.FileChange,
) (Result, error) {
	const errCtx = "committing on new branch"

	if len(changes) == 0 {
		return Result{}, fmt.Errorf(
			"%s: no changes: %w", errCtx, git.ErrValidation,
		)
	}

	// Step 1: branch point.
	bp, err := b.store.GetRef(ctx, fork, "heads/"+baseBranch)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 2: parent commit and base tree. Read apart
	// from the ref since both endpoints are only
	// eventually consistent with each other.
	parent, err := b.store.LatestCommit(ctx, fork, baseBranch)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if parent.SHA != bp.CommitSHA {
		slog.Warn(
			"branch ref and latest commit disagree",
			"ref", bp.CommitSHA,
			"latest", parent.SHA,
		)
	}

	bp.TreeSHA = parent.TreeSHA

	// Step 3: reserve the branch name.
	if err := b.store.CreateRef(
		ctx, fork, "heads/"+branch, bp.CommitSHA,
	); err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"created branch on fork",
		"fork", fork.String(),
		"branch", branch,
	)

	// Step 4: blobs.
	blobs, err := b.uploadAll(ctx, fork, changes)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 5: one tree overlaid on the parent tree.
	tree, err := b.store.CreateTree(
		ctx, fork, parent.TreeSHA, blobs,
	)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 6: one commit, one parent.
	cm, err := b.store.CreateCommit(
		ctx, fork, message, tree, []string{parent.SHA},
	)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("created commit", "sha", cm.SHA)

	// Step 7: the ref already exists at the base commit.
	if err := b.store.UpdateRef(
		ctx, fork, "heads/"+branch, cm.SHA, true,
	); err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 8: diff against the previous head.
	changed, err := b.store.Compare(
		ctx, fork, parent.SHA, cm.SHA,
	)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"updated branch to new commit",
		"branch", branch,
		"changed", len(changed),
	)

	return Result{
		Base:    bp,
		Commit:  cm,
		Blobs:   blobs,
		Changed: changed,
		HasDiff: len(changed) > 0,
	}, nil
}

// uploadAll expands and uploads every change in order. A
// malformed change fails before any of its blobs is sent.
func (b *Builder) uploadAll(
	ctx context.Context,
	fork git.RepoRef,
	changes []git.FileChange,
) ([]git.BlobRef, error) {
	var blobs []git.BlobRef

	for _, change := range changes {
		files, err := EnumerateFiles(change)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			ref, err := b.upload(ctx, fork, f)
			if err != nil {
				return nil, err
			}

			blobs = append(blobs, ref)
		}
	}

	return blobs, nil
}

// upload sends one file as a blob, throttled by the
// builder limiter, and checks the returned id.
func (b *Builder) upload(
	ctx context.Context,
	fork git.RepoRef,
	f git.FileChange,
) (git.BlobRef, error) {
	const errCtx = "uploading blob"

	st, err := os.Stat(f.LocalPath)
	if err != nil {
		return git.BlobRef{}, fmt.Errorf(
			"%s: %s: %w", errCtx, f.LocalPath, err,
		)
	}

	content, err := os.ReadFile(f.LocalPath) //nolint:gosec // staged by the pipeline
	if err != nil {
		return git.BlobRef{}, fmt.Errorf(
			"%s: %s: %w", errCtx, f.LocalPath, err,
		)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return git.BlobRef{}, fmt.Errorf(
			"%s: %s: %w", errCtx, f.LocalPath, err,
		)
	}

	sha, err := b.store.CreateBlob(ctx, fork, content)
	if err != nil {
		return git.BlobRef{}, fmt.Errorf(
			"%s: %s: %w", errCtx, f.LocalPath, err,
		)
	}

	if !digester.VerifyBlob(content, sha) {
		return git.BlobRef{}, fmt.Errorf(
			"%s: %s: provider returned %s, want %s",
			errCtx, f.LocalPath, sha, digester.BlobID(content),
		)
	}

	slog.Info(
		"created blob",
		"path", f.RepoPath,
		"sha", sha,
	)

	mode := git.ModeFile
	if st.Mode().Perm()&0o111 != 0 {
		mode = git.ModeExecutable
	}

	return git.BlobRef{
		Path: f.RepoPath,
		SHA:  sha,
		Mode: mode,
		Kind: git.KindBlob,
	}, nil
}
