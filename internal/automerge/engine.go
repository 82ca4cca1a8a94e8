package automerge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/branchmatch"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/policy"
	"github.com/simplesurance/automerger/internal/security"
)

// Outcome is the result of evaluating a pull request.
type Outcome string

const (
	// OutcomeIneligible is returned when the policy of the repository
	// does not allow to automerge the pull request.
	OutcomeIneligible Outcome = "ineligible"
	// OutcomeNotMergeable is returned when the pull request is eligible
	// but the hosting platform vetoes the merge.
	OutcomeNotMergeable Outcome = "not_mergeable"
	OutcomeMerged       Outcome = "merged"
	// OutcomeClosed is returned for pull requests that are not open.
	OutcomeClosed Outcome = "closed"
)

// Eligible returns true if cfg allows to automerge a pull request from
// sourceBranch into targetBranch.
// A pull request is eligible when its target branch matches one of the
// automerge target patterns or its source branch matches one of the
// automerge source patterns, and the target branch matches none of the
// blocked target patterns.
// Branch names can be passed as short names or as refs.
func Eligible(cfg *policy.Config, targetBranch, sourceBranch string) bool {
	if !branchmatch.Match(cfg.AutomergeTargetPatterns, targetBranch) &&
		!branchmatch.Match(cfg.AutomergeFromSourcePatterns, sourceBranch) {
		return false
	}

	return !branchmatch.Match(cfg.BlockedTargetPatterns, targetBranch)
}

// Engine decides if a pull request is automerged and merges it.
type Engine struct {
	logger   *zap.Logger
	policies PolicyStore
	prs      PullRequestService
	security SecurityService
}

func NewEngine(policies PolicyStore, prs PullRequestService, sec SecurityService) *Engine {
	return &Engine{
		logger:   zap.L().Named(loggerName).Named("engine"),
		policies: policies,
		prs:      prs,
		security: sec,
	}
}

// Evaluate merges pr if the policy of its repository allows it and the
// hosting platform reports it as mergeable.
// The merge is done while impersonating the author of the pull request and
// only succeeds if pr.HeadCommit is still the head of the pull request.
// That a pull request is not merged is not an error, the reason is returned
// as Outcome.
func (e *Engine) Evaluate(ctx context.Context, pr *githubclt.PullRequest) (outcome Outcome, err error) {
	logger := e.logger.With(pr.LogFields()...)

	defer func() {
		if err != nil {
			metrics.evaluationFailureInc()
			return
		}

		metrics.evaluationInc(outcome)
	}()

	if pr.State != githubclt.StateOpen {
		logger.Debug(
			"pull request is not open, skipping it",
			logfields.Event("automerge_pull_request_closed"),
			zap.String("github.pull_request_state", pr.State),
		)

		return OutcomeClosed, nil
	}

	cfg, err := e.policies.ConfigForRepo(ctx, pr.Repository.Owner, pr.Repository.Name)
	if err != nil {
		return "", fmt.Errorf("retrieving automerge policy of repository %s failed: %w", pr.Repository, err)
	}

	targetBranch := branchmatch.NormalizeBranchName(pr.TargetBranch)
	sourceBranch := branchmatch.NormalizeBranchName(pr.SourceBranch)

	if !Eligible(cfg, targetBranch, sourceBranch) {
		logger.Debug(
			"pull request is not eligible for automerge",
			logfields.Event("automerge_pull_request_ineligible"),
		)

		return OutcomeIneligible, nil
	}

	capability, err := e.prs.CanMerge(ctx, pr.Repository, pr.Number)
	if err != nil {
		return "", fmt.Errorf("checking if pull request can be merged failed: %w", err)
	}

	if !capability.CanMerge {
		logger.Info(
			"pull request is eligible for automerge but can not be merged",
			logfields.Event("automerge_pull_request_not_mergeable"),
			zap.Strings("github.merge_vetoes", capability.Vetoes),
		)

		return OutcomeNotMergeable, nil
	}

	if capability.HeadCommit != "" && capability.HeadCommit != pr.HeadCommit {
		logger.Info(
			"head commit of pull request changed since it was retrieved, skipping merge",
			logfields.Event("automerge_pull_request_head_changed"),
			zap.String("github.current_head_commit", capability.HeadCommit),
		)

		return OutcomeNotMergeable, nil
	}

	mergeMethod := cfg.EffectiveMergeMethod()

	err = e.security.Impersonating(
		ctx,
		&security.Principal{Login: pr.Author},
		"Performing automerge on behalf of "+pr.Author,
		func(ctx context.Context) error {
			return e.prs.Merge(ctx, pr, string(mergeMethod))
		},
	)
	if err != nil {
		if errors.Is(err, githubclt.ErrPullRequestNotMergeable) {
			logger.Info(
				"merging pull request was rejected",
				logfields.Event("automerge_merge_rejected"),
				zap.Error(err),
			)

			return OutcomeNotMergeable, nil
		}

		return "", fmt.Errorf("merging pull request failed: %w", err)
	}

	logger.Info(
		"pull request automerged",
		logfields.Event("automerge_pull_request_merged"),
		zap.String("github.merge_method", string(mergeMethod)),
	)

	return OutcomeMerged, nil
}
