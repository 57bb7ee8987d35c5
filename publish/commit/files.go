package commit

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/byte4ever/spec_publisher/publish/git"
)

// EnumerateFiles expands change into one FileChange per
// regular file. A directory is walked depth-first in
// lexical order and the relative layout is kept under
// change.RepoPath. Entries that are neither files nor
// directories inside a walked directory are skipped; at
// the top level they are rejected.
func EnumerateFiles(change git.FileChange) ([]git.FileChange, error) {
	const errCtx = "enumerating files"

	repoPath, err := cleanRepoPath(change.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	st, err := os.Stat(change.LocalPath)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: invalid file or folder %s: %w: %w",
			errCtx, change.LocalPath, git.ErrValidation, err,
		)
	}

	switch {
	case st.Mode().IsRegular():
		return []git.FileChange{{
			RepoPath:  repoPath,
			LocalPath: change.LocalPath,
		}}, nil
	case st.IsDir():
		var out []git.FileChange

		if err := walkDir(
			change.LocalPath, repoPath, &out,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return out, nil
	default:
		return nil, fmt.Errorf(
			"%s: invalid file or folder %s: %w",
			errCtx, change.LocalPath, git.ErrValidation,
		)
	}
}

func walkDir(
	localDir string,
	repoDir string,
	out *[]git.FileChange,
) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", localDir, err)
	}

	for _, de := range entries {
		local := filepath.Join(localDir, de.Name())
		remote := path.Join(repoDir, de.Name())

		switch {
		case de.Type().IsRegular():
			*out = append(*out, git.FileChange{
				RepoPath:  remote,
				LocalPath: local,
			})
		case de.IsDir():
			if err := walkDir(local, remote, out); err != nil {
				return err
			}
		}
	}

	return nil
}

// cleanRepoPath normalizes a destination path and
// rejects paths escaping the repository root.
func cleanRepoPath(p string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))

	if p == "" ||
		cleaned == "." ||
		path.IsAbs(cleaned) ||
		cleaned == ".." ||
		strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf(
			"invalid repository path %q: %w",
			p, git.ErrValidation,
		)
	}

	return cleaned, nil
}
