package git

import "context"

// ObjectStore is the request/response surface of the
// hosting platform used by the publishing pipeline. It
// never retries; write operations are idempotent only at
// the caller's discretion.
//
// Refs are passed without the "refs/" prefix, e.g.
// "heads/main".
type ObjectStore interface {
	// AuthenticatedUser returns the login of the caller.
	AuthenticatedUser(ctx context.Context) (string, error)

	GetRepository(
		ctx context.Context,
		repo RepoRef,
	) (Repository, error)

	// ListForks returns one page of public forks of repo
	// and the next page number, 0 when there is none.
	ListForks(
		ctx context.Context,
		repo RepoRef,
		page int,
	) ([]RepoRef, int, error)

	// CreateFork requests a fork of repo owned by the
	// caller. The fork is materialized asynchronously.
	CreateFork(
		ctx context.Context,
		repo RepoRef,
	) (RepoRef, error)

	// MergeUpstream fast-forwards branch of the fork onto
	// its parent.
	MergeUpstream(
		ctx context.Context,
		fork RepoRef,
		branch string,
	) error

	ListBranches(
		ctx context.Context,
		repo RepoRef,
	) ([]string, error)

	GetRef(
		ctx context.Context,
		repo RepoRef,
		ref string,
	) (BranchPoint, error)

	CreateRef(
		ctx context.Context,
		repo RepoRef,
		ref string,
		sha string,
	) error

	UpdateRef(
		ctx context.Context,
		repo RepoRef,
		ref string,
		sha string,
		force bool,
	) error

	DeleteRef(
		ctx context.Context,
		repo RepoRef,
		ref string,
	) error

	// LatestCommit returns the most recent commit on
	// branch.
	LatestCommit(
		ctx context.Context,
		repo RepoRef,
		branch string,
	) (Commit, error)

	// CreateBlob uploads content and returns its SHA.
	CreateBlob(
		ctx context.Context,
		repo RepoRef,
		content []byte,
	) (string, error)

	// CreateTree overlays entries on baseTree and returns
	// the new tree SHA.
	CreateTree(
		ctx context.Context,
		repo RepoRef,
		baseTree string,
		entries []BlobRef,
	) (string, error)

	CreateCommit(
		ctx context.Context,
		repo RepoRef,
		message string,
		treeSHA string,
		parents []string,
	) (Commit, error)

	// Compare lists the paths changed between two
	// commits.
	Compare(
		ctx context.Context,
		repo RepoRef,
		baseSHA string,
		headSHA string,
	) ([]string, error)

	// GetContent fetches a file with its content, or a
	// directory listing.
	GetContent(
		ctx context.Context,
		repo RepoRef,
		path string,
	) (ContentEntry, error)

	CreatePullRequest(
		ctx context.Context,
		repo RepoRef,
		pr NewPullRequest,
	) (PullRequest, error)
}
