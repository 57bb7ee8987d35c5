package git

import (
	"context"
	"fmt"
	"log/slog"
)

// StorePublisher opens pull requests on an upstream
// repository through an ObjectStore.
//
// Pattern: Strategy -- implements PullRequestOpener.
type StorePublisher struct {
	store    ObjectStore
	upstream RepoRef
}

// NewStorePublisher returns a publisher targeting
// upstream.
func NewStorePublisher(
	store ObjectStore,
	upstream RepoRef,
) *StorePublisher {
	return &StorePublisher{
		store:    store,
		upstream: upstream,
	}
}

// OpenPR opens a pull request from "from" (usually
// "forkOwner:branch") into branch "to" of the upstream
// repository. It must only be called when the source
// branch differs from the target; the provider rejects
// empty pull requests with a validation error.
func (p *StorePublisher) OpenPR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (int, error) {
	const errCtx = "opening pull request"

	pr, err := p.store.CreatePullRequest(
		ctx,
		p.upstream,
		NewPullRequest{
			Title: title,
			Head:  from,
			Base:  to,
			Body:  body,
		},
	)
	if err != nil {
		return 0, fmt.Errorf(
			"%s: %s from %s: %w",
			errCtx, p.upstream, from, err,
		)
	}

	slog.Info(
		"created pull request",
		"number", pr.Number,
		"url", pr.URL,
		"head", from,
	)

	return pr.Number, nil
}
