package automerge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/dispatch"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
)

// Task is a unit of work of the automerger.
// It is implemented by PullRequestTask and CommitTask only.
type Task interface {
	dispatch.Task
	// bucketKey returns the dispatcher bucket the task is serialized in.
	bucketKey() string
	// validate returns an amerr.ContractViolationError if the task is
	// malformed.
	validate() error
}

// PullRequestTask requests the evaluation of a pull request, it is created
// when a reviewer changed their status.
type PullRequestTask struct {
	Repository        githubclt.Repository
	PullRequestNumber int
}

func (PullRequestTask) Kind() string {
	return "pull_request"
}

func (t PullRequestTask) LogFields() []zap.Field {
	return append(t.Repository.LogFields(), logfields.PullRequest(t.PullRequestNumber))
}

func (t PullRequestTask) bucketKey() string {
	return fmt.Sprintf("approval:%s#%d", t.Repository, t.PullRequestNumber)
}

func (t PullRequestTask) validate() error {
	if t.Repository.Owner == "" || t.Repository.Name == "" {
		return amerr.NewContractViolationError("pull request task has an incomplete repository: %q", t.Repository)
	}

	if t.PullRequestNumber <= 0 {
		return amerr.NewContractViolationError("pull request task has an invalid pull request number: %d", t.PullRequestNumber)
	}

	return nil
}

// CommitTask requests the evaluation of the open pull request that contains
// a commit, it is created when a build status was set for the commit.
type CommitTask struct {
	CommitID string
}

func (CommitTask) Kind() string {
	return "commit"
}

func (t CommitTask) LogFields() []zap.Field {
	return []zap.Field{logfields.Commit(t.CommitID)}
}

func (t CommitTask) bucketKey() string {
	return "build:" + t.CommitID
}

func (t CommitTask) validate() error {
	if t.CommitID == "" {
		return amerr.NewContractViolationError("commit task has an empty commit id")
	}

	return nil
}
