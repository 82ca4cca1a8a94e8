package githubclt

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
)

const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

func (r Repository) LogFields() []zap.Field {
	return []zap.Field{
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
	}
}

// PullRequestRef identifies a pull request.
type PullRequestRef struct {
	Repository Repository
	Number     int
}

func (p PullRequestRef) String() string {
	return fmt.Sprintf("%s#%d", p.Repository, p.Number)
}

// PullRequest is the state of a pull request at the time it was fetched.
type PullRequest struct {
	PullRequestRef

	State string
	// TargetBranch is the branch the pull request is merged into.
	TargetBranch string
	// SourceBranch is the branch containing the changes.
	SourceBranch string
	HeadCommit   string
	// Author is the login of the user that opened the pull request.
	Author string
}

func (p *PullRequest) LogFields() []zap.Field {
	return append(
		p.Repository.LogFields(),
		logfields.PullRequest(p.Number),
		logfields.TargetBranch(p.TargetBranch),
		logfields.SourceBranch(p.SourceBranch),
		logfields.Commit(p.HeadCommit),
		logfields.Author(p.Author),
	)
}

// PageRequest describes a page of a paginated result.
// Start is the 0-based index of the first element, Limit the max. number
// of elements in the page.
type PageRequest struct {
	Start int
	Limit int
}

// Page is a page of a paginated result.
type Page[T any] struct {
	Values []T
	Start  int
	// IsLastPage is true if no further elements exist after the page.
	IsLastPage bool
}

// Size returns the number of elements in the page.
func (p *Page[T]) Size() int {
	return len(p.Values)
}

// SearchFilter restricts the pull requests returned by SearchPullRequests.
type SearchFilter struct {
	// State is StateOpen or StateClosed, it is ignored when empty.
	State string
}

// MergeCapability is the result of checking if a pull request can be merged.
type MergeCapability struct {
	CanMerge bool
	// Vetoes contains the reasons why the pull request can not be merged.
	Vetoes     []string
	HeadCommit string
}
