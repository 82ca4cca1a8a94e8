package githubclt

import (
	"context"
	"errors"
	"fmt"

	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/security"
)

// ciStatus abstracts the multiple result values of GitHub check runs and
// commit statuses into a single value.
type ciStatus string

const (
	ciStatusSuccess ciStatus = "SUCCESS"
	ciStatusPending ciStatus = "PENDING"
	ciStatusFailure ciStatus = "FAILURE"
)

// mergeStateStatus is the value of the GraphQL MergeStateStatus enum.
type mergeStateStatus string

const (
	mergeStateStatusBehind  mergeStateStatus = "BEHIND"
	mergeStateStatusBlocked mergeStateStatus = "BLOCKED"
	mergeStateStatusUnknown mergeStateStatus = "UNKNOWN"
)

const (
	VetoNotOpen          = "pull request is not open"
	VetoDraft            = "pull request is a draft"
	VetoConflicts        = "pull request has merge conflicts"
	VetoChangesRequested = "changes have been requested by a reviewer"
	VetoReviewRequired   = "an approving review is required"
	VetoChecksPending    = "status checks are pending"
	VetoChecksFailed     = "required status checks failed"
	VetoBehind           = "head branch is not up to date with the base branch"
	VetoBlocked          = "merging is blocked by the branch protection"
)

// errMergeabilityUnknown is returned when GitHub did not finish computing
// if a pull request is mergeable.
var errMergeabilityUnknown = errors.New("mergeable state of pull request is not computed yet")

type ciJobStatus struct {
	Name     string
	Status   ciStatus
	Required bool
}

type queryCheckStatus struct {
	Name       string
	Conclusion githubv4.CheckConclusionState
	Status     githubv4.CheckStatusState
}

type queryStatusContext struct {
	State   githubv4.StatusState
	Context string
}

type mergeCapabilityQueryResult struct {
	State                       githubv4.PullRequestState
	IsDraft                     bool
	Mergeable                   githubv4.MergeableState
	MergeStateStatus            mergeStateStatus
	ReviewDecision              githubv4.PullRequestReviewDecision
	StatusCheckRollupState      githubv4.StatusState
	RequiredStatusCheckContexts []string
	CheckRuns                   []*queryCheckStatus
	StatusContexts              []*queryStatusContext
	Commit                      string
}

// CanMerge reports if the pull request can be merged.
// It evaluates the state, draft flag, mergeable state, [merge state status],
// [review decision] and the [status check rollup] of the pull request.
// When the pull request can not be merged, the returned MergeCapability
// contains the reasons in Vetoes.
// If GitHub did not finish computing the mergeable state yet, an
// amerr.RetryableError is returned.
//
// [status check rollup]: https://docs.github.com/en/graphql/reference/objects#statuscheckrollup
// [merge state status]: https://docs.github.com/en/graphql/reference/enums#mergestatestatus
// [review decision]: https://docs.github.com/en/graphql/reference/enums#pullrequestreviewdecision
func (clt *Client) CanMerge(ctx context.Context, repo Repository, number int) (*MergeCapability, error) {
	if err := security.Require(ctx, security.PermissionRead); err != nil {
		return nil, err
	}

	queryResult, err := clt.mergeCapability(ctx, repo, number)
	if err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	result, err := evaluateMergeCapability(queryResult)
	if err != nil {
		if errors.Is(err, errMergeabilityUnknown) {
			return nil, amerr.NewRetryableAnytimeError(err)
		}

		return nil, err
	}

	clt.logger.Debug(
		"evaluated if pull request can be merged",
		append(
			repo.LogFields(),
			logfields.PullRequest(number),
			logfields.Commit(result.HeadCommit),
			logfields.Event("github_merge_capability_evaluated"),
			zap.Bool("github.can_merge", result.CanMerge),
			zap.Strings("github.merge_vetoes", result.Vetoes),
		)...,
	)

	return result, nil
}

func evaluateMergeCapability(q *mergeCapabilityQueryResult) (*MergeCapability, error) {
	var vetoes []string

	if q.State != githubv4.PullRequestStateOpen {
		vetoes = append(vetoes, VetoNotOpen)
	}

	if q.IsDraft {
		vetoes = append(vetoes, VetoDraft)
	}

	switch q.Mergeable {
	case githubv4.MergeableStateMergeable:
	case githubv4.MergeableStateConflicting:
		vetoes = append(vetoes, VetoConflicts)
	case githubv4.MergeableStateUnknown:
		if len(vetoes) == 0 {
			return nil, errMergeabilityUnknown
		}
	default:
		return nil, fmt.Errorf("unsupported mergeable state: %q", q.Mergeable)
	}

	switch q.ReviewDecision {
	case githubv4.PullRequestReviewDecisionChangesRequested:
		vetoes = append(vetoes, VetoChangesRequested)
	case githubv4.PullRequestReviewDecisionReviewRequired:
		vetoes = append(vetoes, VetoReviewRequired)
	}

	statuses, err := toCIJobStatuses(q.RequiredStatusCheckContexts, q.CheckRuns, q.StatusContexts)
	if err != nil {
		return nil, err
	}

	switch overallCIStatus(q.StatusCheckRollupState, statuses) {
	case ciStatusPending:
		vetoes = append(vetoes, VetoChecksPending)
	case ciStatusFailure:
		vetoes = append(vetoes, VetoChecksFailed)
	}

	// BLOCKED is also reported for missing reviews and failed checks,
	// it only adds information when no other veto explains it.
	switch q.MergeStateStatus {
	case mergeStateStatusBehind:
		vetoes = append(vetoes, VetoBehind)
	case mergeStateStatusBlocked:
		if len(vetoes) == 0 {
			vetoes = append(vetoes, VetoBlocked)
		}
	case mergeStateStatusUnknown:
		if len(vetoes) == 0 {
			return nil, errMergeabilityUnknown
		}
	}

	return &MergeCapability{
		CanMerge:   len(vetoes) == 0,
		Vetoes:     vetoes,
		HeadCommit: q.Commit,
	}, nil
}

func overallCIStatus(statusCheckRollupState githubv4.StatusState, statuses []*ciJobStatus) ciStatus {
	if statusCheckRollupState == githubv4.StatusStatePending {
		return ciStatusPending
	}

	result := ciStatusSuccess
	for _, status := range statuses {
		if status.Status == ciStatusPending {
			result = ciStatusPending
			continue
		}

		if status.Required && status.Status == ciStatusFailure {
			return ciStatusFailure
		}
	}

	return result
}

func toCIJobStatuses(
	requiredChecks []string,
	checkRuns []*queryCheckStatus,
	commitStatuses []*queryStatusContext,
) ([]*ciJobStatus, error) {
	statusesByName := make(map[string]*ciJobStatus, len(checkRuns)+len(commitStatuses)+len(requiredChecks))
	for _, name := range requiredChecks {
		if _, exists := statusesByName[name]; exists {
			return nil, fmt.Errorf("found 2 required status with the same context values: %q, context values must be unique", name)
		}

		statusesByName[name] = &ciJobStatus{
			Name:     name,
			Status:   ciStatusPending,
			Required: true,
		}
	}

	set := func(name string, status ciStatus) {
		if entry, exists := statusesByName[name]; exists {
			entry.Status = status
			return
		}

		statusesByName[name] = &ciJobStatus{Name: name, Status: status}
	}

	for _, run := range checkRuns {
		status, err := checkRunResultToCIStatus(run.Status, run.Conclusion)
		if err != nil {
			return nil, fmt.Errorf("converting checkRun %q CIstatus failed: %w", run.Name, err)
		}

		set(run.Name, status)
	}

	for _, commitStatus := range commitStatuses {
		status, err := contextStatusStateToCIStatus(commitStatus.State)
		if err != nil {
			return nil, fmt.Errorf("converting %q status context to CIstatus failed: %w",
				commitStatus.Context, err)
		}

		set(commitStatus.Context, status)
	}

	result := make([]*ciJobStatus, 0, len(statusesByName))
	for _, status := range statusesByName {
		result = append(result, status)
	}

	return result, nil
}

func checkRunResultToCIStatus(status githubv4.CheckStatusState, conclusion githubv4.CheckConclusionState) (ciStatus, error) {
	switch status {
	case githubv4.CheckStatusStateInProgress,
		githubv4.CheckStatusStateQueued,
		githubv4.CheckStatusStateRequested,
		githubv4.CheckStatusState("PENDING"),
		githubv4.CheckStatusState("WAITING"):
		return ciStatusPending, nil

	case githubv4.CheckStatusStateCompleted:
		return checkConclusionToCIStatus(conclusion)

	default:
		return "", fmt.Errorf("unsupported status value: %q", status)
	}
}

func checkConclusionToCIStatus(conclusion githubv4.CheckConclusionState) (ciStatus, error) {
	switch conclusion {
	case githubv4.CheckConclusionStateCancelled,
		githubv4.CheckConclusionStateFailure,
		githubv4.CheckConclusionStateStale,
		githubv4.CheckConclusionState("STARTUP_FAILURE"),
		githubv4.CheckConclusionStateTimedOut:
		return ciStatusFailure, nil

	case githubv4.CheckConclusionStateActionRequired:
		return ciStatusPending, nil

	case githubv4.CheckConclusionStateNeutral,
		githubv4.CheckConclusionStateSkipped,
		githubv4.CheckConclusionStateSuccess:
		return ciStatusSuccess, nil

	default:
		return "", fmt.Errorf("unsupported conclusion value: %q", conclusion)
	}
}

func contextStatusStateToCIStatus(state githubv4.StatusState) (ciStatus, error) {
	switch state {
	case githubv4.StatusStateError,
		githubv4.StatusStateFailure:
		return ciStatusFailure, nil

	case githubv4.StatusStateExpected,
		githubv4.StatusStatePending:
		return ciStatusPending, nil

	case githubv4.StatusStateSuccess:
		return ciStatusSuccess, nil

	default:
		return "", fmt.Errorf("unsupported status state value: %q", state)
	}
}

func (clt *Client) mergeCapability(ctx context.Context, repo Repository, number int) (*mergeCapabilityQueryResult, error) {
	type graphQLQueryMergeCapability struct {
		Repository struct {
			PullRequest struct {
				State          githubv4.PullRequestState
				IsDraft        bool
				Mergeable        githubv4.MergeableState
				MergeStateStatus mergeStateStatus
				ReviewDecision   githubv4.PullRequestReviewDecision

				BaseRef struct {
					BranchProtectionRule struct {
						// RequiredStatusCheckContexts
						// contains required commit
						// statuses and checkRuns.
						RequiredStatusCheckContexts []string
					}
				}

				Commits struct {
					Nodes []struct {
						Commit struct {
							Oid               string
							StatusCheckRollup struct {
								State    githubv4.StatusState
								Contexts struct {
									PageInfo struct {
										EndCursor   string
										HasNextPage bool
									}
									Edges []struct {
										Node struct {
											CheckRun      queryCheckStatus   `graphql:"... on CheckRun"`
											StatusContext queryStatusContext `graphql:"... on StatusContext"`
										}
									}
								} `graphql:"contexts(first: $contextsFirst, after: $contextsAfter)"`
							}
						}
					}
				} `graphql:"commits(last: $commitsLast)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	var result mergeCapabilityQueryResult

	vars := map[string]any{
		"owner":         githubv4.String(repo.Owner),
		"name":          githubv4.String(repo.Name),
		"number":        githubv4.Int(number),
		"commitsLast":   githubv4.Int(1),
		"contextsFirst": githubv4.Int(100),
		"contextsAfter": (*githubv4.String)(nil),
	}

	for {
		var q graphQLQueryMergeCapability

		err := clt.graphQLClt.Query(ctx, &q, vars)
		if err != nil {
			return nil, err
		}

		if len(q.Repository.PullRequest.Commits.Nodes) == 0 {
			return nil, errors.New("pull request has no commits")
		}

		commitsNode := q.Repository.PullRequest.Commits.Nodes[0].Commit

		// the head changed while paginating through the status
		// contexts, start from the beginning
		if result.Commit != "" && result.Commit != commitsNode.Oid {
			vars["contextsAfter"] = (*githubv4.String)(nil)
			result = mergeCapabilityQueryResult{}

			continue
		}

		result.Commit = commitsNode.Oid

		for _, edge := range commitsNode.StatusCheckRollup.Contexts.Edges {
			node := edge.Node
			if node.CheckRun.Name != "" && node.StatusContext.Context != "" {
				return nil, errors.New("internal error: node contains checkRun and context, expecting only one")
			}

			if node.CheckRun.Name != "" {
				result.CheckRuns = append(result.CheckRuns, &node.CheckRun)
				continue
			}

			result.StatusContexts = append(result.StatusContexts, &node.StatusContext)
		}

		pageInfo := commitsNode.StatusCheckRollup.Contexts.PageInfo
		if !pageInfo.HasNextPage {
			pr := q.Repository.PullRequest
			result.State = pr.State
			result.IsDraft = pr.IsDraft
			result.Mergeable = pr.Mergeable
			result.MergeStateStatus = pr.MergeStateStatus
			result.ReviewDecision = pr.ReviewDecision
			result.StatusCheckRollupState = commitsNode.StatusCheckRollup.State
			result.RequiredStatusCheckContexts = pr.BaseRef.BranchProtectionRule.RequiredStatusCheckContexts

			return &result, nil
		}

		if pageInfo.EndCursor == "" {
			return nil, errors.New("retrieving all status contexts failed, HasNextPage is true, expected non-empty EndCursor")
		}

		vars["contextsAfter"] = githubv4.String(pageInfo.EndCursor)
	}
}
