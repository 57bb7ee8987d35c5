package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/spec_publisher/publish/git"
)

const (
	forksPerPage    = 100
	branchesPerPage = 100
	comparePerPage  = 100
)

// Config holds the settings needed to reach the GitHub
// API.
type Config struct {
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
}

// Store talks to the GitHub REST API.
//
// Pattern: Strategy -- implements git.ObjectStore.
type Store struct {
	client *gh.Client
}

var _ git.ObjectStore = (*Store)(nil)

// NewStore validates cfg and returns a Store ready to
// issue requests.
func NewStore(cfg Config) (*Store, error) {
	const errCtx = "creating github store"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set: %w",
			errCtx, git.ErrValidation,
		)
	}

	client := gh.NewClient(nil).
		WithAuthToken(cfg.AccessToken)

	if cfg.EnterpriseHost != "" {
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w",
				errCtx, err,
			)
		}
	}

	return newStoreWithClient(client), nil
}

func newStoreWithClient(client *gh.Client) *Store {
	return &Store{client: client}
}

// AuthenticatedUser returns the login owning the token.
func (s *Store) AuthenticatedUser(
	ctx context.Context,
) (string, error) {
	const errCtx = "getting authenticated user"

	user, resp, err := s.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	return user.GetLogin(), nil
}

// GetRepository fetches repo metadata, including its
// parent when repo is a fork.
func (s *Store) GetRepository(
	ctx context.Context,
	repo git.RepoRef,
) (git.Repository, error) {
	const errCtx = "getting repository"

	rp, resp, err := s.client.Repositories.Get(
		ctx, repo.Owner, repo.Name,
	)
	if err != nil {
		return git.Repository{}, fmt.Errorf(
			"%s: %s: %w",
			errCtx, repo, classify(resp, err),
		)
	}

	out := git.Repository{
		Ref:           refOf(rp),
		DefaultBranch: rp.GetDefaultBranch(),
	}

	if parent := rp.GetParent(); parent != nil {
		pr := refOf(parent)
		out.Parent = &pr
	}

	return out, nil
}

// ListForks returns one page of the public forks of
// repo.
func (s *Store) ListForks(
	ctx context.Context,
	repo git.RepoRef,
	page int,
) ([]git.RepoRef, int, error) {
	const errCtx = "listing forks"

	opts := &gh.RepositoryListForksOptions{
		ListOptions: gh.ListOptions{
			Page:    page,
			PerPage: forksPerPage,
		},
	}

	forks, resp, err := s.client.Repositories.ListForks(
		ctx, repo.Owner, repo.Name, opts,
	)
	if err != nil {
		return nil, 0, fmt.Errorf(
			"%s: %s page %d: %w",
			errCtx, repo, page, classify(resp, err),
		)
	}

	refs := make([]git.RepoRef, 0, len(forks))

	for _, fk := range forks {
		if fk.GetPrivate() {
			continue
		}

		refs = append(refs, refOf(fk))
	}

	return refs, resp.NextPage, nil
}

// CreateFork requests a fork of repo for the caller.
// GitHub answers 202 while the copy is being made; that
// is reported as success.
func (s *Store) CreateFork(
	ctx context.Context,
	repo git.RepoRef,
) (git.RepoRef, error) {
	const errCtx = "creating fork"

	fork, resp, err := s.client.Repositories.CreateFork(
		ctx,
		repo.Owner,
		repo.Name,
		&gh.RepositoryCreateForkOptions{},
	)

	var accepted *gh.AcceptedError

	if err != nil && !errors.As(err, &accepted) {
		return git.RepoRef{}, fmt.Errorf(
			"%s: %s: %w",
			errCtx, repo, classify(resp, err),
		)
	}

	if fork == nil {
		return git.RepoRef{}, fmt.Errorf(
			"%s: %s: empty response", errCtx, repo,
		)
	}

	return refOf(fork), nil
}

// MergeUpstream syncs branch of fork with its parent.
func (s *Store) MergeUpstream(
	ctx context.Context,
	fork git.RepoRef,
	branch string,
) error {
	const errCtx = "merging upstream"

	res, resp, err := s.client.Repositories.MergeUpstream(
		ctx,
		fork.Owner,
		fork.Name,
		&gh.RepoMergeUpstreamRequest{
			Branch: gh.Ptr(branch),
		},
	)
	if err != nil {
		return fmt.Errorf(
			"%s: %s@%s: %w",
			errCtx, fork, branch, classify(resp, err),
		)
	}

	slog.Debug(
		"merged upstream",
		"fork", fork.String(),
		"merge_type", res.GetMergeType(),
		"message", res.GetMessage(),
	)

	return nil
}

// ListBranches returns every branch name of repo.
func (s *Store) ListBranches(
	ctx context.Context,
	repo git.RepoRef,
) ([]string, error) {
	const errCtx = "listing branches"

	opts := &gh.BranchListOptions{
		ListOptions: gh.ListOptions{
			PerPage: branchesPerPage,
		},
	}

	var names []string

	for {
		branches, resp, err := s.client.Repositories.ListBranches(
			ctx, repo.Owner, repo.Name, opts,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %s: %w",
				errCtx, repo, classify(resp, err),
			)
		}

		for _, br := range branches {
			names = append(names, br.GetName())
		}

		if resp.NextPage == 0 {
			return names, nil
		}

		opts.Page = resp.NextPage
	}
}

// GetRef reads ref (e.g. "heads/main"). The returned
// BranchPoint has no tree SHA: refs only point at
// commits.
func (s *Store) GetRef(
	ctx context.Context,
	repo git.RepoRef,
	ref string,
) (git.BranchPoint, error) {
	const errCtx = "getting ref"

	rf, resp, err := s.client.Git.GetRef(
		ctx, repo.Owner, repo.Name, ref,
	)
	if err != nil {
		return git.BranchPoint{}, fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, repo, ref, classify(resp, err),
		)
	}

	return git.BranchPoint{
		Ref:       rf.GetRef(),
		CommitSHA: rf.GetObject().GetSHA(),
	}, nil
}

// CreateRef creates ref pointing at sha.
func (s *Store) CreateRef(
	ctx context.Context,
	repo git.RepoRef,
	ref string,
	sha string,
) error {
	const errCtx = "creating ref"

	_, resp, err := s.client.Git.CreateRef(
		ctx,
		repo.Owner,
		repo.Name,
		&gh.Reference{
			Ref:    gh.Ptr(ref),
			Object: &gh.GitObject{SHA: gh.Ptr(sha)},
		},
	)
	if err != nil {
		return fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, repo, ref, classify(resp, err),
		)
	}

	return nil
}

// UpdateRef moves ref to sha.
func (s *Store) UpdateRef(
	ctx context.Context,
	repo git.RepoRef,
	ref string,
	sha string,
	force bool,
) error {
	const errCtx = "updating ref"

	_, resp, err := s.client.Git.UpdateRef(
		ctx,
		repo.Owner,
		repo.Name,
		&gh.Reference{
			Ref:    gh.Ptr(ref),
			Object: &gh.GitObject{SHA: gh.Ptr(sha)},
		},
		force,
	)
	if err != nil {
		return fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, repo, ref, classify(resp, err),
		)
	}

	return nil
}

// DeleteRef removes ref.
func (s *Store) DeleteRef(
	ctx context.Context,
	repo git.RepoRef,
	ref string,
) error {
	const errCtx = "deleting ref"

	resp, err := s.client.Git.DeleteRef(
		ctx, repo.Owner, repo.Name, ref,
	)
	if err != nil {
		return fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, repo, ref, classify(resp, err),
		)
	}

	return nil
}

// LatestCommit returns the head commit of branch as
// listed by the commits endpoint.
func (s *Store) LatestCommit(
	ctx context.Context,
	repo git.RepoRef,
	branch string,
) (git.Commit, error) {
	const errCtx = "getting latest commit"

	commits, resp, err := s.client.Repositories.ListCommits(
		ctx,
		repo.Owner,
		repo.Name,
		&gh.CommitsListOptions{
			SHA: branch,
			ListOptions: gh.ListOptions{
				Page:    1,
				PerPage: 1,
			},
		},
	)
	if err != nil {
		return git.Commit{}, fmt.Errorf(
			"%s: %s@%s: %w",
			errCtx, repo, branch, classify(resp, err),
		)
	}

	if len(commits) == 0 {
		return git.Commit{}, fmt.Errorf(
			"%s: %s@%s: no commits: %w",
			errCtx, repo, branch, git.ErrNotFound,
		)
	}

	rc := commits[0]

	return git.Commit{
		SHA:        rc.GetSHA(),
		TreeSHA:    rc.GetCommit().GetTree().GetSHA(),
		ParentSHAs: parentSHAs(rc.Parents),
	}, nil
}

// CreateBlob uploads content base64-encoded so binary
// files survive unchanged.
func (s *Store) CreateBlob(
	ctx context.Context,
	repo git.RepoRef,
	content []byte,
) (string, error) {
	const errCtx = "creating blob"

	blob, resp, err := s.client.Git.CreateBlob(
		ctx,
		repo.Owner,
		repo.Name,
		&gh.Blob{
			Content: gh.Ptr(
				base64.StdEncoding.EncodeToString(content),
			),
			Encoding: gh.Ptr("base64"),
		},
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: %s: %w",
			errCtx, repo, classify(resp, err),
		)
	}

	return blob.GetSHA(), nil
}

// CreateTree creates a tree made of baseTree overlaid
// with entries.
func (s *Store) CreateTree(
	ctx context.Context,
	repo git.RepoRef,
	baseTree string,
	entries []git.BlobRef,
) (string, error) {
	const errCtx = "creating tree"

	te := make([]*gh.TreeEntry, 0, len(entries))

	for _, en := range entries {
		te = append(te, &gh.TreeEntry{
			Path: gh.Ptr(en.Path),
			Mode: gh.Ptr(string(en.Mode)),
			Type: gh.Ptr(string(en.Kind)),
			SHA:  gh.Ptr(en.SHA),
		})
	}

	tree, resp, err := s.client.Git.CreateTree(
		ctx, repo.Owner, repo.Name, baseTree, te,
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: %s: %w",
			errCtx, repo, classify(resp, err),
		)
	}

	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object. It does not
// move any ref.
func (s *Store) CreateCommit(
	ctx context.Context,
	repo git.RepoRef,
	message string,
	treeSHA string,
	parents []string,
) (git.Commit, error) {
	const errCtx = "creating commit"

	pc := make([]*gh.Commit, 0, len(parents))
	for _, p := range parents {
		pc = append(pc, &gh.Commit{SHA: gh.Ptr(p)})
	}

	cm, resp, err := s.client.Git.CreateCommit(
		ctx,
		repo.Owner,
		repo.Name,
		&gh.Commit{
			Message: gh.Ptr(message),
			Tree:    &gh.Tree{SHA: gh.Ptr(treeSHA)},
			Parents: pc,
		},
		nil,
	)
	if err != nil {
		return git.Commit{}, fmt.Errorf(
			"%s: %s: %w",
			errCtx, repo, classify(resp, err),
		)
	}

	return git.Commit{
		SHA:        cm.GetSHA(),
		TreeSHA:    cm.GetTree().GetSHA(),
		ParentSHAs: parentSHAs(cm.Parents),
	}, nil
}

// Compare returns the names of the files changed
// between baseSHA and headSHA.
func (s *Store) Compare(
	ctx context.Context,
	repo git.RepoRef,
	baseSHA string,
	headSHA string,
) ([]string, error) {
	const errCtx = "comparing commits"

	cmp, resp, err := s.client.Repositories.CompareCommits(
		ctx,
		repo.Owner,
		repo.Name,
		baseSHA,
		headSHA,
		&gh.ListOptions{PerPage: comparePerPage},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s %s...%s: %w",
			errCtx, repo, baseSHA, headSHA,
			classify(resp, err),
		)
	}

	files := make([]string, 0, len(cmp.Files))
	for _, f := range cmp.Files {
		files = append(files, f.GetFilename())
	}

	return files, nil
}

// GetContent fetches the file or directory at path on
// the default branch of repo.
func (s *Store) GetContent(
	ctx context.Context,
	repo git.RepoRef,
	repoPath string,
) (git.ContentEntry, error) {
	const errCtx = "getting content"

	fc, dc, resp, err := s.client.Repositories.GetContents(
		ctx, repo.Owner, repo.Name, repoPath, nil,
	)
	if err != nil {
		return git.ContentEntry{}, fmt.Errorf(
			"%s: %s %s: %w",
			errCtx, repo, repoPath, classify(resp, err),
		)
	}

	if fc != nil {
		data, err := s.fileContent(ctx, repo, fc)
		if err != nil {
			return git.ContentEntry{}, fmt.Errorf(
				"%s: %s %s: %w",
				errCtx, repo, repoPath, err,
			)
		}

		return git.ContentEntry{
			Kind:    git.ContentFile,
			Path:    fc.GetPath(),
			Name:    fc.GetName(),
			Content: data,
		}, nil
	}

	dir := git.ContentEntry{
		Kind:    git.ContentDirectory,
		Path:    repoPath,
		Name:    path.Base(repoPath),
		Entries: make([]git.ContentEntry, 0, len(dc)),
	}

	for _, item := range dc {
		var kind git.ContentKind

		switch item.GetType() {
		case "file":
			kind = git.ContentFile
		case "dir":
			kind = git.ContentDirectory
		default:
			slog.Debug(
				"skipping content entry",
				"path", item.GetPath(),
				"type", item.GetType(),
			)

			continue
		}

		dir.Entries = append(dir.Entries, git.ContentEntry{
			Kind: kind,
			Path: item.GetPath(),
			Name: item.GetName(),
		})
	}

	return dir, nil
}

// fileContent decodes the inline content of fc. Files
// over 1 MB come back without inline content and are
// fetched as raw blobs.
func (s *Store) fileContent(
	ctx context.Context,
	repo git.RepoRef,
	fc *gh.RepositoryContent,
) ([]byte, error) {
	if fc.GetEncoding() == "none" {
		raw, resp, err := s.client.Git.GetBlobRaw(
			ctx, repo.Owner, repo.Name, fc.GetSHA(),
		)
		if err != nil {
			return nil, fmt.Errorf(
				"raw blob %s: %w",
				fc.GetSHA(), classify(resp, err),
			)
		}

		return raw, nil
	}

	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return []byte(content), nil
}

// CreatePullRequest opens a pull request on repo.
func (s *Store) CreatePullRequest(
	ctx context.Context,
	repo git.RepoRef,
	pr git.NewPullRequest,
) (git.PullRequest, error) {
	const errCtx = "creating github pull request"

	created, resp, err := s.client.PullRequests.Create(
		ctx,
		repo.Owner,
		repo.Name,
		&gh.NewPullRequest{
			Title: gh.Ptr(pr.Title),
			Head:  gh.Ptr(pr.Head),
			Base:  gh.Ptr(pr.Base),
			Body:  gh.Ptr(pr.Body),
		},
	)
	if err != nil {
		return git.PullRequest{}, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	return git.PullRequest{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}, nil
}

// classify maps provider failures onto the git error
// taxonomy. The original error stays in the chain.
func classify(resp *gh.Response, err error) error {
	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
	)

	switch {
	case errors.As(err, &rateErr),
		errors.As(err, &abuseErr):
		return fmt.Errorf("%w: %w", git.ErrRateLimited, err)
	case resp == nil:
		return err
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", git.ErrNotFound, err)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", git.ErrValidation, err)
	default:
		return err
	}
}

func refOf(rp *gh.Repository) git.RepoRef {
	return git.RepoRef{
		Owner: rp.GetOwner().GetLogin(),
		Name:  rp.GetName(),
	}
}

func parentSHAs(parents []*gh.Commit) []string {
	out := make([]string, 0, len(parents))
	for _, p := range parents {
		out = append(out, p.GetSHA())
	}

	return out
}
