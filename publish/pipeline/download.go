package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/byte4ever/spec_publisher/publish/git"
)

// fetchFile returns the content of the file at repoPath
// on the default branch of repo, or nil when there is
// none.
func fetchFile(
	ctx context.Context,
	store git.ObjectStore,
	repo git.RepoRef,
	repoPath string,
) (*string, error) {
	const errCtx = "fetching published file"

	entry, err := store.GetContent(ctx, repo, repoPath)
	if git.IsNotFound(err) {
		slog.Info("file not found in upstream", "path", repoPath)

		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !entry.IsFile() {
		return nil, fmt.Errorf(
			"%s: %s is not a file: %w",
			errCtx, repoPath, git.ErrValidation,
		)
	}

	content := string(entry.Content)

	return &content, nil
}

// fetchFolder downloads the folder at repoPath on the
// default branch of repo into dest. It reports false when
// the folder does not exist.
func fetchFolder(
	ctx context.Context,
	store git.ObjectStore,
	repo git.RepoRef,
	repoPath string,
	dest string,
) (bool, error) {
	const errCtx = "fetching published folder"

	entry, err := store.GetContent(ctx, repo, repoPath)
	if git.IsNotFound(err) {
		slog.Info("folder not found in upstream", "path", repoPath)

		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !entry.IsDirectory() {
		return false, fmt.Errorf(
			"%s: %s is not a folder: %w",
			errCtx, repoPath, git.ErrValidation,
		)
	}

	if err := downloadTree(ctx, store, repo, entry, dest); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return true, nil
}

func downloadTree(
	ctx context.Context,
	store git.ObjectStore,
	repo git.RepoRef,
	dir git.ContentEntry,
	dest string,
) error {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return err
	}

	for _, item := range dir.Entries {
		if !filepath.IsLocal(item.Name) || filepath.Base(item.Name) != item.Name {
			return fmt.Errorf(
				"unexpected entry name %q: %w", item.Name, git.ErrValidation,
			)
		}

		target := filepath.Join(dest, item.Name)

		entry, err := store.GetContent(ctx, repo, item.Path)
		if err != nil {
			return err
		}

		switch {
		case entry.IsDirectory():
			if err := downloadTree(ctx, store, repo, entry, target); err != nil {
				return err
			}
		case entry.IsFile():
			if err := os.WriteFile(target, entry.Content, 0o600); err != nil {
				return err
			}

			slog.Debug("downloaded file", "path", item.Path)
		}
	}

	return nil
}
