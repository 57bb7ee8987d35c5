// Package fork finds, creates and sanitizes the caller's
// personal fork of an upstream repository.
package fork

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/byte4ever/spec_publisher/publish/git"
)

// DefaultSettleDelay is how long a freshly requested fork
// is given to materialize on the provider.
const DefaultSettleDelay = 15 * time.Second

// maxConcurrentDeletes bounds stale branch deletions in
// flight.
const maxConcurrentDeletes = 8

// Config holds the settings of a Manager.
type Config struct {
	// Upstream is the target repository.
	Upstream git.RepoRef
	// DefaultBranch is the upstream default branch.
	// Resolved from the provider when empty.
	DefaultBranch string
	// SettleDelay is the fixed wait after requesting a
	// fork. Zero means DefaultSettleDelay; negative
	// disables the wait.
	SettleDelay time.Duration
	// Sleep waits for d or until ctx is done. Defaults
	// to a timer based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager locates or creates the caller's fork of
// Upstream.
type Manager struct {
	store         git.ObjectStore
	upstream      git.RepoRef
	defaultBranch string
	settle        time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewManager validates cfg and returns a Manager.
func NewManager(
	store git.ObjectStore,
	cfg Config,
) (*Manager, error) {
	const errCtx = "creating fork manager"

	if cfg.Upstream.Owner == "" || cfg.Upstream.Name == "" {
		return nil, fmt.Errorf(
			"%s: upstream owner and name must be set: %w",
			errCtx, git.ErrValidation,
		)
	}

	settle := cfg.SettleDelay
	if settle == 0 {
		settle = DefaultSettleDelay
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	return &Manager{
		store:         store,
		upstream:      cfg.Upstream,
		defaultBranch: cfg.DefaultBranch,
		settle:        settle,
		sleep:         sleep,
	}, nil
}

// DefaultBranch returns the upstream default branch,
// asking the provider the first time when it was not
// configured.
func (m *Manager) DefaultBranch(ctx context.Context) (string, error) {
	const errCtx = "resolving default branch"

	if m.defaultBranch != "" {
		return m.defaultBranch, nil
	}

	repo, err := m.store.GetRepository(ctx, m.upstream)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if repo.DefaultBranch == "" {
		return "", fmt.Errorf(
			"%s: %s has no default branch: %w",
			errCtx, m.upstream, git.ErrValidation,
		)
	}

	m.defaultBranch = repo.DefaultBranch

	return m.defaultBranch, nil
}

// EnsureFork returns the caller's fork of the upstream.
// An existing fork is sanitized first: its default
// branch is fast-forwarded onto the upstream and every
// branch starting with branchPrefix is deleted. When no
// fork exists one is requested and the settle delay is
// waited; the fork may still be unavailable right after,
// in which case the whole job is meant to be re-run.
func (m *Manager) EnsureFork(
	ctx context.Context,
	branchPrefix string,
) (git.RepoRef, error) {
	const errCtx = "ensuring fork"

	login, err := m.store.AuthenticatedUser(ctx)
	if err != nil {
		return git.RepoRef{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("authenticated user", "login", login)

	fork, found, err := m.findFork(ctx, login)
	if err != nil {
		return git.RepoRef{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if found {
		if err := m.sanitize(ctx, fork, branchPrefix); err != nil {
			return git.RepoRef{}, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		return fork, nil
	}

	created, err := m.store.CreateFork(ctx, m.upstream)
	if err != nil {
		return git.RepoRef{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if m.settle > 0 {
		if err := m.sleep(ctx, m.settle); err != nil {
			return git.RepoRef{}, fmt.Errorf(
				"%s: waiting for fork: %w", errCtx, err,
			)
		}
	}

	slog.Info("created fork", "fork", created.String())

	return git.RepoRef{Owner: login, Name: created.Name}, nil
}

// findFork probes the repository named like the upstream
// under login, then pages through the public forks.
func (m *Manager) findFork(
	ctx context.Context,
	login string,
) (git.RepoRef, bool, error) {
	candidate := git.RepoRef{Owner: login, Name: m.upstream.Name}

	repo, err := m.store.GetRepository(ctx, candidate)

	switch {
	case err == nil && repo.IsForkOf(m.upstream):
		return candidate, true, nil
	case err == nil:
		slog.Debug(
			"repository is not a fork of upstream",
			"repo", candidate.String(),
		)
	case !git.IsNotFound(err):
		return git.RepoRef{}, false, err
	}

	for page := 1; page != 0; {
		forks, next, err := m.store.ListForks(ctx, m.upstream, page)
		if err != nil {
			return git.RepoRef{}, false, err
		}

		for _, fk := range forks {
			if fk.Owner == login {
				return fk, true, nil
			}
		}

		page = next
	}

	return git.RepoRef{}, false, nil
}

func (m *Manager) sanitize(
	ctx context.Context,
	fork git.RepoRef,
	branchPrefix string,
) error {
	const errCtx = "sanitizing fork"

	slog.Info("a fork of the upstream already exists", "fork", fork.String())

	branch, err := m.DefaultBranch(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := m.store.MergeUpstream(ctx, fork, branch); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("synced fork with upstream", "branch", branch)

	if err := m.removeBranches(ctx, fork, branchPrefix); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// removeBranches deletes every branch of fork starting
// with prefix. Deletions run concurrently and one failure
// does not stop the others; the first failure is
// returned once all have finished.
func (m *Manager) removeBranches(
	ctx context.Context,
	fork git.RepoRef,
	prefix string,
) error {
	const errCtx = "removing previous branches"

	if prefix == "" {
		return fmt.Errorf(
			"%s: empty branch prefix: %w",
			errCtx, git.ErrValidation,
		)
	}

	branches, err := m.store.ListBranches(ctx, fork)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	var eg errgroup.Group

	eg.SetLimit(maxConcurrentDeletes)

	for _, name := range branches {
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		eg.Go(func() error {
			if err := m.store.DeleteRef(
				ctx, fork, "heads/"+name,
			); err != nil {
				slog.Warn(
					"failed to delete branch",
					"branch", name,
					"error", err,
				)

				return err
			}

			slog.Info("deleted branch", "branch", name)

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	tm := time.NewTimer(d)
	defer tm.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}
