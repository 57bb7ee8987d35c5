package git

import "context"

// PullRequestOpener opens a pull request from head, usually
// "forkOwner:branch", into branch base of the upstream and
// returns its number.
type PullRequestOpener interface {
	OpenPR(
		ctx context.Context,
		head string,
		base string,
		title string,
		body string,
	) (int, error)
}

// PullRequestOpenerFunc adapts a plain function to the
// PullRequestOpener interface.
type PullRequestOpenerFunc func(
	ctx context.Context,
	head string,
	base string,
	title string,
	body string,
) (int, error)

// OpenPR calls f.
func (f PullRequestOpenerFunc) OpenPR(
	ctx context.Context,
	head string,
	base string,
	title string,
	body string,
) (int, error) {
	return f(ctx, head, base, title, body)
}

var (
	_ PullRequestOpener = PullRequestOpenerFunc(nil)
	_ PullRequestOpener = (*StorePublisher)(nil)
)
