package automerge

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/dispatch"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/policy"
	"github.com/simplesurance/automerger/internal/security"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . PullRequestService,PolicyStore,SecurityService,Dispatcher

// PullRequestService provides access to pull requests of the hosting platform.
type PullRequestService interface {
	SearchPullRequests(ctx context.Context, filter githubclt.SearchFilter, page githubclt.PageRequest) (*githubclt.Page[githubclt.PullRequestRef], error)
	Commits(ctx context.Context, repo githubclt.Repository, number int, page githubclt.PageRequest) (*githubclt.Page[string], error)
	PullRequest(ctx context.Context, repo githubclt.Repository, number int) (*githubclt.PullRequest, error)
	CanMerge(ctx context.Context, repo githubclt.Repository, number int) (*githubclt.MergeCapability, error)
	Merge(ctx context.Context, pr *githubclt.PullRequest, method string) error
}

// PolicyStore returns the automerge policy of a repository.
type PolicyStore interface {
	ConfigForRepo(ctx context.Context, owner, repository string) (*policy.Config, error)
}

type SecurityService interface {
	WithPermission(ctx context.Context, perm security.Permission, reason string, fn func(context.Context) error) error
	Impersonating(ctx context.Context, principal *security.Principal, reason string, fn func(context.Context) error) error
}

type Dispatcher interface {
	Dispatch(bucketKey string, task dispatch.Task, handler dispatch.Handler)
}

// Retryer is an interface used for running PullRequestService methods
// repeatedly if they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}
