package automerge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
)

// DefSearchPageSize is the number of open pull requests retrieved per
// search request.
const DefSearchPageSize = 10

// DefMaxCommitsPerPullRequest is the max. number of commits that are
// compared per pull request. GitHub does not return more than 250 commits
// of a pull request.
const DefMaxCommitsPerPullRequest = 250

var ErrNotFound = errors.New("no open pull request contains the commit")

// Resolver finds the open pull request that contains a commit.
// It scans all open pull requests in the search scope of the
// PullRequestService, the cost grows with the number of open pull requests
// times their commits.
// The GitHub search only returns the first 1000 results. When more pull
// requests are open in the search scope, the ones after them are never
// scanned and a commit they contain is reported as ErrNotFound. The search
// scope must be narrow enough to stay below this limit.
type Resolver struct {
	logger     *zap.Logger
	prs        PullRequestService
	pageSize   int
	maxCommits int
}

func NewResolver(prs PullRequestService, pageSize, maxCommits int) *Resolver {
	if pageSize <= 0 {
		pageSize = DefSearchPageSize
	}

	if maxCommits <= 0 {
		maxCommits = DefMaxCommitsPerPullRequest
	}

	return &Resolver{
		logger:     zap.L().Named(loggerName).Named("resolver"),
		prs:        prs,
		pageSize:   pageSize,
		maxCommits: maxCommits,
	}
}

// FindPullRequestContainingCommit returns the first open pull request that
// contains a commit with the id commitID.
// Pull requests are searched page by page until an empty page is returned.
// If no pull request contains the commit, ErrNotFound is returned.
func (r *Resolver) FindPullRequestContainingCommit(ctx context.Context, commitID string) (*githubclt.PullRequest, error) {
	var scanned int

	ref, err := r.find(ctx, commitID, &scanned)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.resolutionObserve(resolveResultNotFound, scanned)
		} else {
			metrics.resolutionObserve(resolveResultError, scanned)
		}

		return nil, err
	}

	metrics.resolutionObserve(resolveResultFound, scanned)

	pr, err := r.prs.PullRequest(ctx, ref.Repository, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("retrieving pull request %s failed: %w", ref, err)
	}

	return pr, nil
}

func (r *Resolver) find(ctx context.Context, commitID string, scanned *int) (*githubclt.PullRequestRef, error) {
	logger := r.logger.With(logfields.Commit(commitID))

	for start := 0; ; start += r.pageSize {
		page, err := r.prs.SearchPullRequests(
			ctx,
			githubclt.SearchFilter{State: githubclt.StateOpen},
			githubclt.PageRequest{Start: start, Limit: r.pageSize},
		)
		if err != nil {
			return nil, fmt.Errorf("searching open pull requests failed: %w", err)
		}

		if page.Size() == 0 {
			logger.Debug(
				"no open pull request contains the commit",
				logfields.Event("resolver_commit_not_found"),
				zap.Int("resolver.scanned_pull_requests", *scanned),
			)

			return nil, ErrNotFound
		}

		for i := range page.Values {
			ref := &page.Values[i]

			*scanned++

			commits, err := r.prs.Commits(
				ctx,
				ref.Repository,
				ref.Number,
				githubclt.PageRequest{Start: 0, Limit: r.maxCommits},
			)
			if err != nil {
				return nil, fmt.Errorf("retrieving commits of pull request %s failed: %w", ref, err)
			}

			for _, c := range commits.Values {
				if c == commitID {
					logger.Debug(
						"found pull request containing commit",
						append(
							ref.Repository.LogFields(),
							logfields.PullRequest(ref.Number),
							logfields.Event("resolver_commit_found"),
							zap.Int("resolver.scanned_pull_requests", *scanned),
						)...,
					)

					return ref, nil
				}
			}
		}
	}
}
