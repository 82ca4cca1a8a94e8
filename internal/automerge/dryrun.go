package automerge

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
)

// DryPullRequestService is a PullRequestService that does not do any
// changes on GitHub.
// Merges are simulated and always succeed, all other operations are
// forwarded to a wrapped PullRequestService.
type DryPullRequestService struct {
	PullRequestService
	logger *zap.Logger
}

func NewDryPullRequestService(prs PullRequestService, logger *zap.Logger) *DryPullRequestService {
	return &DryPullRequestService{
		PullRequestService: prs,
		logger:             logger.Named("dry_github_client"),
	}
}

func (c *DryPullRequestService) Merge(_ context.Context, pr *githubclt.PullRequest, method string) error {
	c.logger.Info(
		"simulated merging of pull request, pull request was not merged",
		append(
			pr.LogFields(),
			logfields.Event("github_pull_request_merge_simulated"),
			zap.String("github.merge_method", method),
		)...,
	)

	return nil
}
