// Package gitfake provides an in-memory git.ObjectStore
// with content-addressed blobs, overlay trees and
// parent-linked commits. Repositories of one Store share
// their object database, the way forks do on GitHub.
package gitfake

import (
	"context"
	"crypto/sha1" //nolint:gosec // object ids only
	"encoding/hex"
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/byte4ever/spec_publisher/publish/digester"
	"github.com/byte4ever/spec_publisher/publish/git"
)

const defaultPageSize = 100

// RecordedPR is a pull request opened through the fake.
type RecordedPR struct {
	Repo   git.RepoRef
	Number int
	git.NewPullRequest
}

type repository struct {
	defaultBranch string
	parent        *git.RepoRef
	private       bool
	refs          map[string]string
}

type commit struct {
	git.Commit
	message string
}

// Store is the in-memory object store. The zero value is
// not usable; call New.
type Store struct {
	mu sync.Mutex

	login    string
	pageSize int
	repos    map[git.RepoRef]*repository
	order    []git.RepoRef
	blobs    map[string][]byte
	trees    map[string]map[string]git.BlobRef
	commits  map[string]commit
	prs      []RecordedPR
	calls    []string
	errs     map[string]error
	sequence int
}

var _ git.ObjectStore = (*Store)(nil)

// New returns an empty store authenticated as login.
func New(login string) *Store {
	return &Store{
		login:    login,
		pageSize: defaultPageSize,
		repos:    make(map[git.RepoRef]*repository),
		blobs:    make(map[string][]byte),
		trees:    make(map[string]map[string]git.BlobRef),
		commits:  make(map[string]commit),
		errs:     make(map[string]error),
	}
}

// SetPageSize changes the fork listing page size.
func (s *Store) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageSize = n
}

// FailWith makes every call matching key fail with err.
// key is either a method name ("CreateBlob") or a method
// name followed by a space and its ref or path argument
// ("DeleteRef heads/auto-update/x").
func (s *Store) FailWith(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs[key] = err
}

// AddRepo creates a repository whose default branch holds
// one commit with files.
func (s *Store) AddRepo(
	ref git.RepoRef,
	defaultBranch string,
	files map[string]string,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[string]git.BlobRef, len(files))
	for p, content := range files {
		entries[p] = s.putBlob(p, []byte(content))
	}

	tree := s.putTree(entries)
	cm := s.putCommit("initial commit", tree, nil)

	s.addRepo(ref, &repository{
		defaultBranch: defaultBranch,
		refs:          map[string]string{"heads/" + defaultBranch: cm},
	})
}

// AddFork registers fork as a fork of upstream, sharing
// the upstream default branch head. Private forks are not
// listed by ListForks.
func (s *Store) AddFork(
	upstream git.RepoRef,
	fork git.RepoRef,
	private bool,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	up := s.repos[upstream]
	parent := upstream

	s.addRepo(fork, &repository{
		defaultBranch: up.defaultBranch,
		parent:        &parent,
		private:       private,
		refs: map[string]string{
			"heads/" + up.defaultBranch: up.refs["heads/"+up.defaultBranch],
		},
	})
}

// AddBranch points a new branch of repo at the head of
// its default branch.
func (s *Store) AddBranch(repo git.RepoRef, branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp := s.repos[repo]
	rp.refs["heads/"+branch] = rp.refs["heads/"+rp.defaultBranch]
}

// CommitFiles adds a commit on branch of repo writing
// files, as a direct push would.
func (s *Store) CommitFiles(
	repo git.RepoRef,
	branch string,
	files map[string]string,
) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp := s.repos[repo]
	head := s.commits[rp.refs["heads/"+branch]]

	entries := maps.Clone(s.trees[head.TreeSHA])
	for p, content := range files {
		entries[p] = s.putBlob(p, []byte(content))
	}

	cm := s.putCommit(
		"direct push", s.putTree(entries), []string{head.SHA},
	)
	rp.refs["heads/"+branch] = cm

	return cm
}

// Head returns the commit branch of repo points at.
func (s *Store) Head(repo git.RepoRef, branch string) (git.Commit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp, ok := s.repos[repo]
	if !ok {
		return git.Commit{}, false
	}

	sha, ok := rp.refs["heads/"+branch]
	if !ok {
		return git.Commit{}, false
	}

	return s.commits[sha].Commit, true
}

// CommitMessage returns the message of commit sha.
func (s *Store) CommitMessage(sha string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commits[sha].message
}

// Files returns path -> content of the tree of commit
// sha.
func (s *Store) Files(sha string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	for p, en := range s.trees[s.commits[sha].TreeSHA] {
		out[p] = string(s.blobs[en.SHA])
	}

	return out
}

// BranchNames returns the sorted branch names of repo.
func (s *Store) BranchNames(repo git.RepoRef) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.branchNames(repo)
}

// Repos returns every repository in creation order.
func (s *Store) Repos() []git.RepoRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.order)
}

// PullRequests returns the pull requests opened so far.
func (s *Store) PullRequests() []RecordedPR {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.prs)
}

// Calls returns the method names invoked so far, in
// order.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.calls)
}

// Count returns how many times method was invoked.
func (s *Store) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, c := range s.calls {
		if c == method {
			n++
		}
	}

	return n
}

// AuthenticatedUser implements git.ObjectStore.
func (s *Store) AuthenticatedUser(
	_ context.Context,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("AuthenticatedUser", ""); err != nil {
		return "", err
	}

	return s.login, nil
}

// GetRepository implements git.ObjectStore.
func (s *Store) GetRepository(
	_ context.Context,
	repo git.RepoRef,
) (git.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("GetRepository", repo.String()); err != nil {
		return git.Repository{}, err
	}

	rp, err := s.repo(repo)
	if err != nil {
		return git.Repository{}, err
	}

	return git.Repository{
		Ref:           repo,
		DefaultBranch: rp.defaultBranch,
		Parent:        rp.parent,
	}, nil
}

// ListForks implements git.ObjectStore.
func (s *Store) ListForks(
	_ context.Context,
	repo git.RepoRef,
	page int,
) ([]git.RepoRef, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("ListForks", repo.String()); err != nil {
		return nil, 0, err
	}

	if _, err := s.repo(repo); err != nil {
		return nil, 0, err
	}

	var forks []git.RepoRef

	for _, ref := range s.order {
		rp := s.repos[ref]
		if rp.parent != nil && *rp.parent == repo && !rp.private {
			forks = append(forks, ref)
		}
	}

	if page < 1 {
		page = 1
	}

	start := min((page-1)*s.pageSize, len(forks))
	end := min(start+s.pageSize, len(forks))

	next := 0
	if end < len(forks) {
		next = page + 1
	}

	return forks[start:end], next, nil
}

// CreateFork implements git.ObjectStore. The name gets a
// numeric suffix when the caller already owns a
// repository with the upstream name.
func (s *Store) CreateFork(
	_ context.Context,
	repo git.RepoRef,
) (git.RepoRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreateFork", repo.String()); err != nil {
		return git.RepoRef{}, err
	}

	up, err := s.repo(repo)
	if err != nil {
		return git.RepoRef{}, err
	}

	fork := git.RepoRef{Owner: s.login, Name: repo.Name}
	for i := 1; s.repos[fork] != nil; i++ {
		fork.Name = repo.Name + "-" + strconv.Itoa(i)
	}

	parent := repo

	s.addRepo(fork, &repository{
		defaultBranch: up.defaultBranch,
		parent:        &parent,
		refs:          maps.Clone(up.refs),
	})

	return fork, nil
}

// MergeUpstream implements git.ObjectStore as a
// fast-forward onto the parent's branch.
func (s *Store) MergeUpstream(
	_ context.Context,
	fork git.RepoRef,
	branch string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("MergeUpstream", fork.String()); err != nil {
		return err
	}

	rp, err := s.repo(fork)
	if err != nil {
		return err
	}

	if rp.parent == nil {
		return fmt.Errorf(
			"%s is not a fork: %w", fork, git.ErrValidation,
		)
	}

	up := s.repos[*rp.parent]

	sha, ok := up.refs["heads/"+branch]
	if !ok {
		return fmt.Errorf("branch %s: %w", branch, git.ErrNotFound)
	}

	rp.refs["heads/"+branch] = sha

	return nil
}

// ListBranches implements git.ObjectStore.
func (s *Store) ListBranches(
	_ context.Context,
	repo git.RepoRef,
) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("ListBranches", repo.String()); err != nil {
		return nil, err
	}

	if _, err := s.repo(repo); err != nil {
		return nil, err
	}

	return s.branchNames(repo), nil
}

// GetRef implements git.ObjectStore.
func (s *Store) GetRef(
	_ context.Context,
	repo git.RepoRef,
	ref string,
) (git.BranchPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("GetRef", ref); err != nil {
		return git.BranchPoint{}, err
	}

	rp, err := s.repo(repo)
	if err != nil {
		return git.BranchPoint{}, err
	}

	sha, ok := rp.refs[ref]
	if !ok {
		return git.BranchPoint{}, fmt.Errorf(
			"ref %s: %w", ref, git.ErrNotFound,
		)
	}

	return git.BranchPoint{Ref: "refs/" + ref, CommitSHA: sha}, nil
}

// CreateRef implements git.ObjectStore.
func (s *Store) CreateRef(
	_ context.Context,
	repo git.RepoRef,
	ref string,
	sha string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreateRef", ref); err != nil {
		return err
	}

	rp, err := s.repo(repo)
	if err != nil {
		return err
	}

	if _, ok := rp.refs[ref]; ok {
		return fmt.Errorf(
			"reference %s already exists: %w",
			ref, git.ErrValidation,
		)
	}

	if _, ok := s.commits[sha]; !ok {
		return fmt.Errorf("commit %s: %w", sha, git.ErrValidation)
	}

	rp.refs[ref] = sha

	return nil
}

// UpdateRef implements git.ObjectStore. Without force
// only fast-forwards are accepted.
func (s *Store) UpdateRef(
	_ context.Context,
	repo git.RepoRef,
	ref string,
	sha string,
	force bool,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("UpdateRef", ref); err != nil {
		return err
	}

	rp, err := s.repo(repo)
	if err != nil {
		return err
	}

	old, ok := rp.refs[ref]
	if !ok {
		return fmt.Errorf("ref %s: %w", ref, git.ErrValidation)
	}

	if _, ok := s.commits[sha]; !ok {
		return fmt.Errorf("commit %s: %w", sha, git.ErrValidation)
	}

	if !force && !s.isAncestor(old, sha) {
		return fmt.Errorf(
			"update is not a fast forward: %w", git.ErrValidation,
		)
	}

	rp.refs[ref] = sha

	return nil
}

// DeleteRef implements git.ObjectStore.
func (s *Store) DeleteRef(
	_ context.Context,
	repo git.RepoRef,
	ref string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("DeleteRef", ref); err != nil {
		return err
	}

	rp, err := s.repo(repo)
	if err != nil {
		return err
	}

	if _, ok := rp.refs[ref]; !ok {
		return fmt.Errorf("ref %s: %w", ref, git.ErrValidation)
	}

	delete(rp.refs, ref)

	return nil
}

// LatestCommit implements git.ObjectStore.
func (s *Store) LatestCommit(
	_ context.Context,
	repo git.RepoRef,
	branch string,
) (git.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("LatestCommit", branch); err != nil {
		return git.Commit{}, err
	}

	rp, err := s.repo(repo)
	if err != nil {
		return git.Commit{}, err
	}

	sha, ok := rp.refs["heads/"+branch]
	if !ok {
		return git.Commit{}, fmt.Errorf(
			"branch %s: %w", branch, git.ErrNotFound,
		)
	}

	return s.commits[sha].Commit, nil
}

// CreateBlob implements git.ObjectStore.
func (s *Store) CreateBlob(
	_ context.Context,
	repo git.RepoRef,
	content []byte,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreateBlob", ""); err != nil {
		return "", err
	}

	if _, err := s.repo(repo); err != nil {
		return "", err
	}

	sha := digester.BlobID(content)
	s.blobs[sha] = slices.Clone(content)

	return sha, nil
}

// CreateTree implements git.ObjectStore.
func (s *Store) CreateTree(
	_ context.Context,
	repo git.RepoRef,
	baseTree string,
	entries []git.BlobRef,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreateTree", ""); err != nil {
		return "", err
	}

	if _, err := s.repo(repo); err != nil {
		return "", err
	}

	base, ok := s.trees[baseTree]
	if baseTree != "" && !ok {
		return "", fmt.Errorf(
			"base tree %s: %w", baseTree, git.ErrValidation,
		)
	}

	tree := maps.Clone(base)
	if tree == nil {
		tree = make(map[string]git.BlobRef, len(entries))
	}

	for _, en := range entries {
		if _, ok := s.blobs[en.SHA]; !ok {
			return "", fmt.Errorf(
				"blob %s: %w", en.SHA, git.ErrValidation,
			)
		}

		tree[en.Path] = en
	}

	return s.putTree(tree), nil
}

// CreateCommit implements git.ObjectStore.
func (s *Store) CreateCommit(
	_ context.Context,
	repo git.RepoRef,
	message string,
	treeSHA string,
	parents []string,
) (git.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreateCommit", ""); err != nil {
		return git.Commit{}, err
	}

	if _, err := s.repo(repo); err != nil {
		return git.Commit{}, err
	}

	if _, ok := s.trees[treeSHA]; !ok {
		return git.Commit{}, fmt.Errorf(
			"tree %s: %w", treeSHA, git.ErrValidation,
		)
	}

	for _, p := range parents {
		if _, ok := s.commits[p]; !ok {
			return git.Commit{}, fmt.Errorf(
				"parent %s: %w", p, git.ErrValidation,
			)
		}
	}

	sha := s.putCommit(message, treeSHA, parents)

	return s.commits[sha].Commit, nil
}

// Compare implements git.ObjectStore by diffing the two
// commit trees.
func (s *Store) Compare(
	_ context.Context,
	repo git.RepoRef,
	baseSHA string,
	headSHA string,
) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("Compare", ""); err != nil {
		return nil, err
	}

	if _, err := s.repo(repo); err != nil {
		return nil, err
	}

	return s.diff(baseSHA, headSHA)
}

// GetContent implements git.ObjectStore on the default
// branch of repo.
func (s *Store) GetContent(
	_ context.Context,
	repo git.RepoRef,
	repoPath string,
) (git.ContentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("GetContent", repoPath); err != nil {
		return git.ContentEntry{}, err
	}

	rp, err := s.repo(repo)
	if err != nil {
		return git.ContentEntry{}, err
	}

	head := s.commits[rp.refs["heads/"+rp.defaultBranch]]
	tree := s.trees[head.TreeSHA]

	if en, ok := tree[repoPath]; ok {
		return git.ContentEntry{
			Kind:    git.ContentFile,
			Path:    repoPath,
			Name:    path.Base(repoPath),
			Content: slices.Clone(s.blobs[en.SHA]),
		}, nil
	}

	prefix := strings.TrimSuffix(repoPath, "/") + "/"
	children := make(map[string]git.ContentKind)

	for p := range tree {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}

		name, _, nested := strings.Cut(rest, "/")
		if nested {
			children[name] = git.ContentDirectory
		} else {
			children[name] = git.ContentFile
		}
	}

	if len(children) == 0 {
		return git.ContentEntry{}, fmt.Errorf(
			"content %s: %w", repoPath, git.ErrNotFound,
		)
	}

	dir := git.ContentEntry{
		Kind: git.ContentDirectory,
		Path: strings.TrimSuffix(repoPath, "/"),
		Name: path.Base(repoPath),
	}

	for _, name := range slices.Sorted(maps.Keys(children)) {
		dir.Entries = append(dir.Entries, git.ContentEntry{
			Kind: children[name],
			Path: prefix + name,
			Name: name,
		})
	}

	return dir, nil
}

// CreatePullRequest implements git.ObjectStore. Head is
// "owner:branch" or a branch of repo; a head without
// changes against base is rejected like GitHub does.
func (s *Store) CreatePullRequest(
	_ context.Context,
	repo git.RepoRef,
	pr git.NewPullRequest,
) (git.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreatePullRequest", pr.Head); err != nil {
		return git.PullRequest{}, err
	}

	up, err := s.repo(repo)
	if err != nil {
		return git.PullRequest{}, err
	}

	headRepo, branch := repo, pr.Head
	if owner, br, ok := strings.Cut(pr.Head, ":"); ok {
		headRepo, branch = s.ownedFork(owner, repo), br
	}

	hr, ok := s.repos[headRepo]
	if !ok {
		return git.PullRequest{}, fmt.Errorf(
			"head %s: %w", pr.Head, git.ErrValidation,
		)
	}

	headSHA, ok := hr.refs["heads/"+branch]
	if !ok {
		return git.PullRequest{}, fmt.Errorf(
			"head %s: %w", pr.Head, git.ErrValidation,
		)
	}

	changed, err := s.diff(up.refs["heads/"+pr.Base], headSHA)
	if err != nil {
		return git.PullRequest{}, err
	}

	if len(changed) == 0 {
		return git.PullRequest{}, fmt.Errorf(
			"no commits between %s and %s: %w",
			pr.Base, pr.Head, git.ErrValidation,
		)
	}

	number := len(s.prs) + 1
	s.prs = append(s.prs, RecordedPR{
		Repo:           repo,
		Number:         number,
		NewPullRequest: pr,
	})

	return git.PullRequest{
		Number: number,
		URL: fmt.Sprintf(
			"https://example.test/%s/pull/%d", repo, number,
		),
	}, nil
}

func (s *Store) record(method string, arg string) error {
	s.calls = append(s.calls, method)

	if err, ok := s.errs[method+" "+arg]; ok {
		return err
	}

	return s.errs[method]
}

func (s *Store) repo(ref git.RepoRef) (*repository, error) {
	rp, ok := s.repos[ref]
	if !ok {
		return nil, fmt.Errorf(
			"repository %s: %w", ref, git.ErrNotFound,
		)
	}

	return rp, nil
}

func (s *Store) addRepo(ref git.RepoRef, rp *repository) {
	s.repos[ref] = rp
	s.order = append(s.order, ref)
}

func (s *Store) ownedFork(owner string, upstream git.RepoRef) git.RepoRef {
	for _, ref := range s.order {
		rp := s.repos[ref]
		if ref.Owner == owner && rp.parent != nil && *rp.parent == upstream {
			return ref
		}
	}

	return git.RepoRef{Owner: owner, Name: upstream.Name}
}

func (s *Store) branchNames(repo git.RepoRef) []string {
	var names []string

	for ref := range s.repos[repo].refs {
		if name, ok := strings.CutPrefix(ref, "heads/"); ok {
			names = append(names, name)
		}
	}

	slices.Sort(names)

	return names
}

func (s *Store) diff(baseSHA string, headSHA string) ([]string, error) {
	base, ok := s.commits[baseSHA]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", baseSHA, git.ErrNotFound)
	}

	head, ok := s.commits[headSHA]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", headSHA, git.ErrNotFound)
	}

	bt, ht := s.trees[base.TreeSHA], s.trees[head.TreeSHA]

	var changed []string

	for p, en := range ht {
		if old, ok := bt[p]; !ok || old.SHA != en.SHA || old.Mode != en.Mode {
			changed = append(changed, p)
		}
	}

	for p := range bt {
		if _, ok := ht[p]; !ok {
			changed = append(changed, p)
		}
	}

	slices.Sort(changed)

	return changed, nil
}

func (s *Store) isAncestor(ancestor string, sha string) bool {
	for cur := []string{sha}; len(cur) > 0; {
		next := cur[:0:0]

		for _, c := range cur {
			if c == ancestor {
				return true
			}

			next = append(next, s.commits[c].ParentSHAs...)
		}

		cur = next
	}

	return false
}

func (s *Store) putBlob(p string, content []byte) git.BlobRef {
	sha := digester.BlobID(content)
	s.blobs[sha] = content

	return git.BlobRef{
		Path: p,
		SHA:  sha,
		Mode: git.ModeFile,
		Kind: git.KindBlob,
	}
}

func (s *Store) putTree(entries map[string]git.BlobRef) string {
	ha := sha1.New() //nolint:gosec // object ids only

	for _, p := range slices.Sorted(maps.Keys(entries)) {
		en := entries[p]
		fmt.Fprintf(ha, "%s %s %s\n", en.Mode, en.SHA, p)
	}

	sha := hex.EncodeToString(ha.Sum(nil))
	s.trees[sha] = entries

	return sha
}

func (s *Store) putCommit(
	message string,
	tree string,
	parents []string,
) string {
	s.sequence++

	ha := sha1.New() //nolint:gosec // object ids only
	fmt.Fprintf(
		ha, "tree %s\nparents %s\nseq %d\n\n%s",
		tree, strings.Join(parents, " "), s.sequence, message,
	)

	sha := hex.EncodeToString(ha.Sum(nil))
	s.commits[sha] = commit{
		Commit: git.Commit{
			SHA:        sha,
			TreeSHA:    tree,
			ParentSHAs: slices.Clone(parents),
		},
		message: message,
	}

	return sha
}
