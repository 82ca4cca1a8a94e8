package githubclt

import (
	"testing"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallCIStatus_optionalFailedChecksAreIgnored(t *testing.T) {
	status := overallCIStatus(
		githubv4.StatusStateError,
		[]*ciJobStatus{
			{
				Name:     "optional_check",
				Status:   ciStatusFailure,
				Required: false,
			},
			{
				Name:     "required_check",
				Status:   ciStatusSuccess,
				Required: true,
			},
		},
	)

	require.Equal(t, ciStatusSuccess, status)
}

func TestOverallCIStatus_optionalPendingChecksAreHonored(t *testing.T) {
	status := overallCIStatus(
		githubv4.StatusStateError,
		[]*ciJobStatus{
			{
				Name:     "optional_check",
				Status:   ciStatusPending,
				Required: false,
			},
			{
				Name:     "required_check",
				Status:   ciStatusSuccess,
				Required: true,
			},
		},
	)

	require.Equal(t, ciStatusPending, status)
}

func TestOverallCIStatus_requiredFailedCheck(t *testing.T) {
	status := overallCIStatus(
		githubv4.StatusStateError,
		[]*ciJobStatus{
			{
				Name:     "optional_check",
				Status:   ciStatusPending,
				Required: false,
			},
			{
				Name:     "required_check",
				Status:   ciStatusFailure,
				Required: true,
			},
			{
				Name:     "required_check1",
				Status:   ciStatusSuccess,
				Required: true,
			},
		},
	)

	require.Equal(t, ciStatusFailure, status)
}

func TestToCIJobStatuses_missingRequiredCheckIsPending(t *testing.T) {
	statuses, err := toCIJobStatuses(
		[]string{"ci/build", "ci/test"},
		[]*queryCheckStatus{
			{
				Name:       "ci/build",
				Status:     githubv4.CheckStatusStateCompleted,
				Conclusion: githubv4.CheckConclusionStateSuccess,
			},
		},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, ciStatusPending, overallCIStatus(githubv4.StatusStateSuccess, statuses))
}

func TestToCIJobStatuses_duplicateRequiredCheckFails(t *testing.T) {
	_, err := toCIJobStatuses([]string{"ci/build", "ci/build"}, nil, nil)
	require.Error(t, err)
}

func mergeableQueryResult() *mergeCapabilityQueryResult {
	return &mergeCapabilityQueryResult{
		State:                       githubv4.PullRequestStateOpen,
		Mergeable:                   githubv4.MergeableStateMergeable,
		MergeStateStatus:            "CLEAN",
		ReviewDecision:              githubv4.PullRequestReviewDecisionApproved,
		StatusCheckRollupState:      githubv4.StatusStateSuccess,
		RequiredStatusCheckContexts: []string{"ci"},
		StatusContexts: []*queryStatusContext{
			{Context: "ci", State: githubv4.StatusStateSuccess},
		},
		Commit: "8d3fd5fcd1c1b0e5d5c8c3c4f6a0d4cc4b3c1a07",
	}
}

func TestEvaluateMergeCapability(t *testing.T) {
	testcases := []struct {
		name   string
		modify func(*mergeCapabilityQueryResult)
		vetoes []string
	}{
		{
			name:   "mergeable",
			modify: func(*mergeCapabilityQueryResult) {},
		},
		{
			name: "no review required",
			modify: func(q *mergeCapabilityQueryResult) {
				q.ReviewDecision = ""
			},
		},
		{
			name: "closed",
			modify: func(q *mergeCapabilityQueryResult) {
				q.State = githubv4.PullRequestStateClosed
			},
			vetoes: []string{VetoNotOpen},
		},
		{
			name: "draft",
			modify: func(q *mergeCapabilityQueryResult) {
				q.IsDraft = true
			},
			vetoes: []string{VetoDraft},
		},
		{
			name: "conflicts",
			modify: func(q *mergeCapabilityQueryResult) {
				q.Mergeable = githubv4.MergeableStateConflicting
			},
			vetoes: []string{VetoConflicts},
		},
		{
			name: "changes requested",
			modify: func(q *mergeCapabilityQueryResult) {
				q.ReviewDecision = githubv4.PullRequestReviewDecisionChangesRequested
			},
			vetoes: []string{VetoChangesRequested},
		},
		{
			name: "review required",
			modify: func(q *mergeCapabilityQueryResult) {
				q.ReviewDecision = githubv4.PullRequestReviewDecisionReviewRequired
			},
			vetoes: []string{VetoReviewRequired},
		},
		{
			name: "pending checks",
			modify: func(q *mergeCapabilityQueryResult) {
				q.StatusCheckRollupState = githubv4.StatusStatePending
				q.StatusContexts[0].State = githubv4.StatusStatePending
			},
			vetoes: []string{VetoChecksPending},
		},
		{
			name: "failed required check",
			modify: func(q *mergeCapabilityQueryResult) {
				q.StatusCheckRollupState = githubv4.StatusStateFailure
				q.StatusContexts[0].State = githubv4.StatusStateFailure
			},
			vetoes: []string{VetoChecksFailed},
		},
		{
			name: "closed with unknown mergeable state",
			modify: func(q *mergeCapabilityQueryResult) {
				q.State = githubv4.PullRequestStateMerged
				q.Mergeable = githubv4.MergeableStateUnknown
			},
			vetoes: []string{VetoNotOpen},
		},
		{
			name: "behind base branch",
			modify: func(q *mergeCapabilityQueryResult) {
				q.MergeStateStatus = mergeStateStatusBehind
			},
			vetoes: []string{VetoBehind},
		},
		{
			name: "blocked by branch protection",
			modify: func(q *mergeCapabilityQueryResult) {
				q.MergeStateStatus = mergeStateStatusBlocked
			},
			vetoes: []string{VetoBlocked},
		},
		{
			name: "blocked because review is required",
			modify: func(q *mergeCapabilityQueryResult) {
				q.MergeStateStatus = mergeStateStatusBlocked
				q.ReviewDecision = githubv4.PullRequestReviewDecisionReviewRequired
			},
			vetoes: []string{VetoReviewRequired},
		},
		{
			name: "optional check failed",
			modify: func(q *mergeCapabilityQueryResult) {
				q.MergeStateStatus = "UNSTABLE"
			},
		},
		{
			name: "draft with review required",
			modify: func(q *mergeCapabilityQueryResult) {
				q.IsDraft = true
				q.ReviewDecision = githubv4.PullRequestReviewDecisionReviewRequired
			},
			vetoes: []string{VetoDraft, VetoReviewRequired},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			q := mergeableQueryResult()
			tc.modify(q)

			result, err := evaluateMergeCapability(q)
			require.NoError(t, err)

			assert.Equal(t, len(tc.vetoes) == 0, result.CanMerge)
			assert.Equal(t, tc.vetoes, result.Vetoes)
			assert.Equal(t, q.Commit, result.HeadCommit)
		})
	}
}

func TestEvaluateMergeCapability_unknownMergeableStateOfOpenPR(t *testing.T) {
	q := mergeableQueryResult()
	q.Mergeable = githubv4.MergeableStateUnknown

	_, err := evaluateMergeCapability(q)
	require.ErrorIs(t, err, errMergeabilityUnknown)
}

func TestEvaluateMergeCapability_unknownMergeStateStatusOfOpenPR(t *testing.T) {
	q := mergeableQueryResult()
	q.MergeStateStatus = mergeStateStatusUnknown

	_, err := evaluateMergeCapability(q)
	require.ErrorIs(t, err, errMergeabilityUnknown)
}
