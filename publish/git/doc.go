// Package git defines the repository model shared by the publishing pipeline
// and the strategy interfaces that talk to a git hosting platform.
//
// ObjectStore is a thin typed client over the provider's low-level Git object
// endpoints (refs, blobs, trees, commits, comparisons, forks and contents). It
// performs no retries and no business logic. A provider "not found" answer is
// always reported as ErrNotFound so callers can run existence checks with
// errors.Is instead of inspecting provider responses.
//
// PullRequestOpener abstracts pull request creation. StorePublisher opens
// them through any ObjectStore and PullRequestOpenerFunc lets plain functions
// satisfy the interface.
//
// The github sub-package implements ObjectStore on top of go-github; the
// gitfake sub-package is an in-memory ObjectStore used by tests.
package git
