package git_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/spec_publisher/publish/git"
)

func TestRepoRef_String(t *testing.T) {
	t.Parallel()

	ref := git.RepoRef{Owner: "withfig", Name: "autocomplete"}

	assert.Equal(t, "withfig/autocomplete", ref.String())
}

func TestRepository_IsForkOf(t *testing.T) {
	t.Parallel()

	upstream := git.RepoRef{Owner: "org", Name: "repo"}

	tests := []struct {
		name   string
		parent *git.RepoRef
		want   bool
	}{
		{
			name:   "no parent",
			parent: nil,
			want:   false,
		},
		{
			name:   "matching parent",
			parent: &git.RepoRef{Owner: "org", Name: "repo"},
			want:   true,
		},
		{
			name:   "other owner",
			parent: &git.RepoRef{Owner: "else", Name: "repo"},
			want:   false,
		},
		{
			name:   "other name",
			parent: &git.RepoRef{Owner: "org", Name: "other"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := git.Repository{
				Ref:    git.RepoRef{Owner: "me", Name: "repo"},
				Parent: tt.parent,
			}

			assert.Equal(t, tt.want, repo.IsForkOf(upstream))
		})
	}
}

func TestIsNotFound_wrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetching file: %w", git.ErrNotFound)

	assert.True(t, git.IsNotFound(err))
	assert.False(t, git.IsNotFound(git.ErrValidation))
	assert.False(t, git.IsNotFound(nil))
}

func TestContentEntry_kinds(t *testing.T) {
	t.Parallel()

	file := git.ContentEntry{Kind: git.ContentFile}
	dir := git.ContentEntry{Kind: git.ContentDirectory}

	assert.True(t, file.IsFile())
	assert.False(t, file.IsDirectory())
	assert.True(t, dir.IsDirectory())
	assert.Equal(t, "directory", dir.Kind.String())
	assert.Equal(t, "unknown", git.ContentKind(0).String())
}
