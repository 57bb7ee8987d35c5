package commit_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/spec_publisher/publish/commit"
	"github.com/byte4ever/spec_publisher/publish/git"
	"github.com/byte4ever/spec_publisher/publish/git/gitfake"
)

var (
	upstream = git.RepoRef{Owner: "withfig", Name: "autocomplete"}
	botFork  = git.RepoRef{Owner: "bot", Name: "autocomplete"}
)

// newForkedStore returns a fake holding upstream with
// files and a fork of it owned by "bot".
func newForkedStore(files map[string]string) *gitfake.Store {
	st := gitfake.New("bot")
	st.AddRepo(upstream, "master", files)
	st.AddFork(upstream, botFork, false)

	return st
}

func newBuilder(st git.ObjectStore) *commit.Builder {
	return commit.NewBuilder(st, commit.WithUploadInterval(0))
}

func TestCommitOnNewBranch_new_file_has_diff(t *testing.T) {
	t.Parallel()

	st := newForkedStore(map[string]string{"README.md": "hi"})
	before, _ := st.Head(botFork, "master")

	pa := writeFile(
		t, t.TempDir(), "foo.ts", `export default {name:"foo"}`,
	)

	res, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo.ts", LocalPath: pa}},
	)

	require.NoError(t, err)
	assert.True(t, res.HasDiff)
	assert.Equal(t, []string{"src/foo.ts"}, res.Changed)

	head, ok := st.Head(botFork, "auto-update/foo/1")
	require.True(t, ok)
	assert.Equal(t, res.Commit.SHA, head.SHA)
	assert.Equal(t, []string{before.SHA}, head.ParentSHAs)

	files := st.Files(head.SHA)
	assert.Equal(t, `export default {name:"foo"}`, files["src/foo.ts"])
	assert.Equal(t, "hi", files["README.md"])

	// The base branch is untouched.
	after, _ := st.Head(botFork, "master")
	assert.Equal(t, before.SHA, after.SHA)
}

func TestCommitOnNewBranch_identical_content_no_diff(t *testing.T) {
	t.Parallel()

	content := `export default {name:"foo"}`
	st := newForkedStore(map[string]string{"src/foo.ts": content})
	pa := writeFile(t, t.TempDir(), "foo.ts", content)

	res, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo.ts", LocalPath: pa}},
	)

	require.NoError(t, err)
	assert.False(t, res.HasDiff)
	assert.Empty(t, res.Changed)
	assert.Equal(t, 1, st.Count("CreateCommit"))

	// The branch still moved to the new commit.
	head, _ := st.Head(botFork, "auto-update/foo/1")
	assert.Equal(t, res.Commit.SHA, head.SHA)
}

func TestCommitOnNewBranch_one_changed_byte_has_diff(t *testing.T) {
	t.Parallel()

	st := newForkedStore(map[string]string{
		"src/foo.ts": `export default {name:"foo"}`,
	})
	pa := writeFile(
		t, t.TempDir(), "foo.ts", `export default {name:"fop"}`,
	)

	res, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo.ts", LocalPath: pa}},
	)

	require.NoError(t, err)
	assert.True(t, res.HasDiff)
}

func TestCommitOnNewBranch_folder_single_tree_and_commit(
	t *testing.T,
) {
	t.Parallel()

	st := newForkedStore(map[string]string{"README.md": "hi"})

	dir := t.TempDir()
	writeFile(t, dir, "index.ts", "index")
	writeFile(t, dir, "subcommand1.ts", "sub")

	res, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo", LocalPath: dir}},
	)

	require.NoError(t, err)
	assert.Equal(t, 2, st.Count("CreateBlob"))
	assert.Equal(t, 1, st.Count("CreateTree"))
	assert.Equal(t, 1, st.Count("CreateCommit"))

	require.Len(t, res.Blobs, 2)
	assert.Equal(t, "src/foo/index.ts", res.Blobs[0].Path)
	assert.Equal(t, "src/foo/subcommand1.ts", res.Blobs[1].Path)
	assert.Equal(t, git.ModeFile, res.Blobs[0].Mode)
	assert.Equal(t, git.KindBlob, res.Blobs[0].Kind)

	files := st.Files(res.Commit.SHA)
	assert.Equal(t, "index", files["src/foo/index.ts"])
	assert.Equal(t, "sub", files["src/foo/subcommand1.ts"])
}

func TestCommitOnNewBranch_diff_ignores_upstream_changes(
	t *testing.T,
) {
	t.Parallel()

	content := "same"
	st := newForkedStore(map[string]string{"src/foo.ts": content})

	// Upstream moves on; the fork is not synced.
	st.CommitFiles(upstream, "master", map[string]string{
		"src/other.ts": "unrelated",
	})

	pa := writeFile(t, t.TempDir(), "foo.ts", content)

	res, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo.ts", LocalPath: pa}},
	)

	require.NoError(t, err)
	assert.False(t, res.HasDiff)
}

func TestCommitOnNewBranch_malformed_change(t *testing.T) {
	t.Parallel()

	st := newForkedStore(map[string]string{"README.md": "hi"})
	good := writeFile(t, t.TempDir(), "ok.ts", "ok")

	_, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{
			{RepoPath: "src/ok.ts", LocalPath: good},
			{
				RepoPath:  "src/missing.ts",
				LocalPath: filepath.Join(t.TempDir(), "nope.ts"),
			},
		},
	)

	require.ErrorIs(t, err, git.ErrValidation)
	assert.Equal(t, 1, st.Count("CreateBlob"))
	assert.Zero(t, st.Count("CreateTree"))
	assert.Zero(t, st.Count("UpdateRef"))
}

func TestCommitOnNewBranch_no_changes(t *testing.T) {
	t.Parallel()

	st := newForkedStore(nil)

	_, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		nil,
	)

	require.ErrorIs(t, err, git.ErrValidation)
	assert.Empty(t, st.Calls())
}

func TestCommitOnNewBranch_branch_exists(t *testing.T) {
	t.Parallel()

	st := newForkedStore(nil)
	st.AddBranch(botFork, "auto-update/foo/1")

	pa := writeFile(t, t.TempDir(), "foo.ts", "x")

	_, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo.ts", LocalPath: pa}},
	)

	require.ErrorIs(t, err, git.ErrValidation)
	assert.Zero(t, st.Count("CreateBlob"))
}

// lyingStore returns blob ids that do not match the
// uploaded content.
type lyingStore struct {
	*gitfake.Store
}

func (lyingStore) CreateBlob(
	_ context.Context,
	_ git.RepoRef,
	_ []byte,
) (string, error) {
	return "0000000000000000000000000000000000000000", nil
}

func TestCommitOnNewBranch_blob_id_mismatch(t *testing.T) {
	t.Parallel()

	st := newForkedStore(nil)
	pa := writeFile(t, t.TempDir(), "foo.ts", "x")

	_, err := newBuilder(lyingStore{st}).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo.ts", LocalPath: pa}},
	)

	require.Error(t, err)
	assert.ErrorContains(t, err, "provider returned")
	assert.Zero(t, st.Count("CreateTree"))
}

func TestCommitOnNewBranch_executable_mode(t *testing.T) {
	t.Parallel()

	st := newForkedStore(nil)
	pa := writeFile(t, t.TempDir(), "run.sh", "#!/bin/sh\n")
	require.NoError(t, os.Chmod(pa, 0o700))

	res, err := newBuilder(st).CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "bin/run.sh", LocalPath: pa}},
	)

	require.NoError(t, err)
	assert.Equal(t, git.ModeExecutable, res.Blobs[0].Mode)
}

func TestCommitOnNewBranch_throttles_uploads(t *testing.T) {
	t.Parallel()

	st := newForkedStore(nil)

	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "a")
	writeFile(t, dir, "b.ts", "b")
	writeFile(t, dir, "c.ts", "c")

	interval := 30 * time.Millisecond
	bd := commit.NewBuilder(st, commit.WithUploadInterval(interval))

	start := time.Now()

	_, err := bd.CommitOnNewBranch(
		context.Background(),
		botFork,
		"master",
		"auto-update/foo/1",
		"feat: update spec",
		[]git.FileChange{{RepoPath: "src/foo", LocalPath: dir}},
	)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*interval)
}
