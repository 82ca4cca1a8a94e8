// Package automerge merges pull requests automatically when they are
// approved or their build succeeded and the policy of their repository
// allows it.
//
// Events are converted to tasks and passed to a Dispatcher. Tasks for the
// same pull request, respectively the same commit, are serialized and
// coalesced by the Dispatcher, tasks for different pull requests are
// processed concurrently.
package automerge

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/dispatch"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/security"
)

const loggerName = "automerger"

const (
	approvalCheckReason = "Automerge check (PR approval)"
	buildCheckReason    = "Automerge check (build status)"
)

// Automerger receives pull request events, schedules their processing
// and evaluates the affected pull requests.
type Automerger struct {
	logger     *zap.Logger
	dispatcher Dispatcher
	security   SecurityService
	prs        PullRequestService
	retryer    Retryer

	engine   *Engine
	resolver *Resolver

	searchPageSize int
	maxCommits     int
}

type Option func(*Automerger)

// WithRetryer sets the Retryer that runs the task processing.
// Without a Retryer, tasks that fail with a retryable error are not
// retried.
func WithRetryer(r Retryer) Option {
	return func(a *Automerger) {
		a.retryer = r
	}
}

// WithSearchPageSize sets the number of open pull requests that are
// retrieved per request when searching the pull request of a commit.
func WithSearchPageSize(n int) Option {
	return func(a *Automerger) {
		a.searchPageSize = n
	}
}

// WithMaxCommitsPerPullRequest sets the max. number of commits per pull
// request that are compared when searching the pull request of a commit.
func WithMaxCommitsPerPullRequest(n int) Option {
	return func(a *Automerger) {
		a.maxCommits = n
	}
}

func New(
	dispatcher Dispatcher,
	policies PolicyStore,
	prs PullRequestService,
	sec SecurityService,
	opts ...Option,
) *Automerger {
	a := Automerger{
		logger:         zap.L().Named(loggerName),
		dispatcher:     dispatcher,
		security:       sec,
		prs:            prs,
		searchPageSize: DefSearchPageSize,
		maxCommits:     DefMaxCommitsPerPullRequest,
	}

	for _, opt := range opts {
		opt(&a)
	}

	a.engine = NewEngine(policies, prs, sec)
	a.resolver = NewResolver(prs, a.searchPageSize, a.maxCommits)

	return &a
}

// ParticipantStatusUpdated schedules the evaluation of a pull request after
// a reviewer changed their status.
func (a *Automerger) ParticipantStatusUpdated(repo githubclt.Repository, pullRequestNumber int) {
	a.dispatch(PullRequestTask{Repository: repo, PullRequestNumber: pullRequestNumber}, dispatch.HandlerFunc(a.processApproval))
}

// BuildStatusSet schedules the evaluation of the open pull request
// containing commitID after a build status was reported for the commit.
func (a *Automerger) BuildStatusSet(commitID string) {
	a.dispatch(CommitTask{CommitID: commitID}, dispatch.HandlerFunc(a.processBuildStatus))
}

func (a *Automerger) dispatch(task Task, handler dispatch.Handler) {
	a.logger.Debug(
		"dispatching task",
		append(task.LogFields(), logfields.Event("automerge_task_dispatched"))...,
	)

	a.dispatcher.Dispatch(task.bucketKey(), task, handler)
}

func (a *Automerger) processApproval(ctx context.Context, t dispatch.Task) error {
	task, ok := t.(PullRequestTask)
	if !ok {
		return amerr.NewContractViolationError("approval processor received task of type %T, expected PullRequestTask", t)
	}

	if err := task.validate(); err != nil {
		return err
	}

	return a.security.WithPermission(ctx, security.PermissionAdmin, approvalCheckReason, func(ctx context.Context) error {
		return a.run(ctx, task, func(ctx context.Context) error {
			pr, err := a.prs.PullRequest(ctx, task.Repository, task.PullRequestNumber)
			if err != nil {
				return err
			}

			_, err = a.engine.Evaluate(ctx, pr)
			return err
		})
	})
}

func (a *Automerger) processBuildStatus(ctx context.Context, t dispatch.Task) error {
	task, ok := t.(CommitTask)
	if !ok {
		return amerr.NewContractViolationError("build status processor received task of type %T, expected CommitTask", t)
	}

	if err := task.validate(); err != nil {
		return err
	}

	return a.security.WithPermission(ctx, security.PermissionAdmin, buildCheckReason, func(ctx context.Context) error {
		return a.run(ctx, task, func(ctx context.Context) error {
			pr, err := a.resolver.FindPullRequestContainingCommit(ctx, task.CommitID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}

				return err
			}

			_, err = a.engine.Evaluate(ctx, pr)
			return err
		})
	})
}

func (a *Automerger) run(ctx context.Context, task Task, fn func(context.Context) error) error {
	if a.retryer == nil {
		return fn(ctx)
	}

	return a.retryer.Run(ctx, fn, task.LogFields())
}
