package githubclt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/security"
)

const serviceToken = "service-token"

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()

	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clt, err := New(serviceToken, append(opts, WithAPIURLs(srv.URL+"/", srv.URL+"/graphql"))...)
	require.NoError(t, err)

	return clt
}

func readCtx() context.Context {
	return security.ContextWithAuthorization(
		context.Background(),
		&security.Authorization{Permission: security.PermissionRead, Reason: "test"},
	)
}

func impersonatingCtx(login string) context.Context {
	return security.ContextWithAuthorization(
		context.Background(),
		&security.Authorization{
			Permission:   security.PermissionAdmin,
			Impersonated: &security.Principal{Login: login},
			Reason:       "test",
		},
	)
}

const pullRequestJSON = `{
	"number": 42,
	"state": "open",
	"user": {"login": "alice"},
	"base": {"ref": "release/2", "sha": "b1"},
	"head": {"ref": "feature/x", "sha": "c0ffee"}
}`

func TestPullRequest(t *testing.T) {
	var authHeader string

	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		assert.Equal(t, "/repos/simplesurance/automerger/pulls/42", r.URL.Path)
		fmt.Fprint(w, pullRequestJSON)
	}))

	repo := Repository{Owner: "simplesurance", Name: "automerger"}
	pr, err := clt.PullRequest(readCtx(), repo, 42)
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+serviceToken, authHeader)
	assert.Equal(t, &PullRequest{
		PullRequestRef: PullRequestRef{Repository: repo, Number: 42},
		State:          StateOpen,
		TargetBranch:   "release/2",
		SourceBranch:   "feature/x",
		HeadCommit:     "c0ffee",
		Author:         "alice",
	}, pr)
}

func TestPullRequest_requiresReadPermission(t *testing.T) {
	var called bool
	clt := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	_, err := clt.PullRequest(context.Background(), Repository{Owner: "o", Name: "r"}, 1)
	require.ErrorIs(t, err, security.ErrPermissionDenied)
	assert.False(t, called)
}

func TestImpersonatedRequestsUseUserToken(t *testing.T) {
	var authHeader string

	clt := newTestClient(
		t,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader = r.Header.Get("Authorization")
			fmt.Fprint(w, pullRequestJSON)
		}),
		WithImpersonationTokens(map[string]string{"Alice": "alice-token"}),
	)

	_, err := clt.PullRequest(impersonatingCtx("alice"), Repository{Owner: "o", Name: "r"}, 42)
	require.NoError(t, err)
	assert.Equal(t, "Bearer alice-token", authHeader)
}

func TestImpersonationWithoutTokenFails(t *testing.T) {
	var called bool
	clt := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	_, err := clt.PullRequest(impersonatingCtx("bob"), Repository{Owner: "o", Name: "r"}, 42)
	require.ErrorIs(t, err, ErrNoImpersonationToken)
	assert.False(t, called)
}

func TestImpersonationFallsBackToServiceToken(t *testing.T) {
	var authHeader string

	clt := newTestClient(
		t,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader = r.Header.Get("Authorization")
			fmt.Fprint(w, pullRequestJSON)
		}),
		WithFallbackToServiceToken(true),
	)

	_, err := clt.PullRequest(impersonatingCtx("bob"), Repository{Owner: "o", Name: "r"}, 42)
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+serviceToken, authHeader)
}

func TestSearchPullRequests(t *testing.T) {
	var query, page, perPage string

	clt := newTestClient(
		t,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search/issues", r.URL.Path)
			query = r.URL.Query().Get("q")
			page = r.URL.Query().Get("page")
			perPage = r.URL.Query().Get("per_page")

			fmt.Fprint(w, `{
				"total_count": 3,
				"items": [
					{"number": 1, "repository_url": "https://api.github.com/repos/simplesurance/automerger", "pull_request": {}},
					{"number": 2, "repository_url": "https://api.github.com/repos/simplesurance/other"}
				]
			}`)
		}),
		WithSearchScope([]string{"org:simplesurance"}),
	)

	result, err := clt.SearchPullRequests(readCtx(), SearchFilter{State: StateOpen}, PageRequest{Start: 20, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, "is:pr org:simplesurance is:open", query)
	assert.Equal(t, "3", page)
	assert.Equal(t, "10", perPage)

	assert.Equal(t, 20, result.Start)
	assert.True(t, result.IsLastPage)
	assert.Equal(t, []PullRequestRef{
		{Repository: Repository{Owner: "simplesurance", Name: "automerger"}, Number: 1},
	}, result.Values)
}

func TestSearchPullRequests_invalidPageRequest(t *testing.T) {
	clt := newTestClient(t, http.NotFoundHandler())

	_, err := clt.SearchPullRequests(readCtx(), SearchFilter{}, PageRequest{Start: 5, Limit: 10})
	require.Error(t, err)

	_, err = clt.SearchPullRequests(readCtx(), SearchFilter{}, PageRequest{Start: 0, Limit: 101})
	require.Error(t, err)
}

func TestSearchPullRequests_resultLimitReturnsLastPage(t *testing.T) {
	var requests int

	clt := newTestClient(
		t,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++

			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{
				"message": "Only the first 1000 search results are available",
				"documentation_url": "https://docs.github.com/v3/search/"
			}`)
		}),
		WithSearchScope([]string{"org:simplesurance"}),
	)

	result, err := clt.SearchPullRequests(readCtx(), SearchFilter{State: StateOpen}, PageRequest{Start: 990, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
	assert.Equal(t, 990, result.Start)
	assert.Empty(t, result.Values)
	assert.True(t, result.IsLastPage)

	result, err = clt.SearchPullRequests(readCtx(), SearchFilter{State: StateOpen}, PageRequest{Start: 1000, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, requests, "pages after the search result limit must not be requested")
	assert.Empty(t, result.Values)
	assert.True(t, result.IsLastPage)
}

func TestSearchPullRequests_otherValidationErrorsAreReturned(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Validation Failed"}`)
	}))

	_, err := clt.SearchPullRequests(readCtx(), SearchFilter{State: StateOpen}, PageRequest{Start: 0, Limit: 10})
	require.Error(t, err)
}

func TestRepositoryFromAPIURL(t *testing.T) {
	repo, err := repositoryFromAPIURL("https://ghe.example.com/api/v3/repos/simplesurance/automerger")
	require.NoError(t, err)
	assert.Equal(t, Repository{Owner: "simplesurance", Name: "automerger"}, repo)

	_, err = repositoryFromAPIURL("https://api.github.com/users/simplesurance")
	require.Error(t, err)

	_, err = repositoryFromAPIURL("https://api.github.com/repos/simplesurance")
	require.Error(t, err)
}

func TestCommits(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/pulls/7/commits", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		fmt.Fprint(w, `[{"sha": "a"}, {"sha": "b"}, {"sha": "c"}, {"sha": "d"}]`)
	}))

	ctx := readCtx()
	repo := Repository{Owner: "o", Name: "r"}

	result, err := clt.Commits(ctx, repo, 7, PageRequest{Start: 0, Limit: 250})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, result.Values)
	assert.True(t, result.IsLastPage)

	result, err = clt.Commits(ctx, repo, 7, PageRequest{Start: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, result.Values)
	assert.False(t, result.IsLastPage)
}

func TestMerge(t *testing.T) {
	var reqBody map[string]any
	var authHeader string

	clt := newTestClient(
		t,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/repos/o/r/pulls/42/merge", r.URL.Path)
			authHeader = r.Header.Get("Authorization")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

			fmt.Fprint(w, `{"sha": "m1", "merged": true, "message": "Pull Request successfully merged"}`)
		}),
		WithImpersonationTokens(map[string]string{"alice": "alice-token"}),
	)

	pr := PullRequest{
		PullRequestRef: PullRequestRef{Repository: Repository{Owner: "o", Name: "r"}, Number: 42},
		HeadCommit:     "c0ffee",
		Author:         "alice",
	}

	err := clt.Merge(impersonatingCtx("alice"), &pr, "squash")
	require.NoError(t, err)

	assert.Equal(t, "Bearer alice-token", authHeader)
	assert.Equal(t, "c0ffee", reqBody["sha"])
	assert.Equal(t, "squash", reqBody["merge_method"])
}

func TestMerge_requiresWritePermission(t *testing.T) {
	clt := newTestClient(t, http.NotFoundHandler())

	err := clt.Merge(readCtx(), &PullRequest{}, "merge")
	require.ErrorIs(t, err, security.ErrPermissionDenied)
}

func TestMerge_headChanged(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message": "Head branch was modified. Review and try the merge again."}`)
	}))

	pr := PullRequest{
		PullRequestRef: PullRequestRef{Repository: Repository{Owner: "o", Name: "r"}, Number: 42},
		HeadCommit:     "c0ffee",
	}

	ctx := security.ContextWithAuthorization(
		context.Background(),
		&security.Authorization{Permission: security.PermissionWrite, Reason: "test"},
	)

	err := clt.Merge(ctx, &pr, "merge")
	require.ErrorIs(t, err, ErrPullRequestNotMergeable)
}

func TestWrapRetryableErrors_serverError(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := clt.PullRequest(readCtx(), Repository{Owner: "o", Name: "r"}, 1)
	require.Error(t, err)

	var retryableErr *amerr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapRetryableErrors_rateLimit(t *testing.T) {
	reset := time.Now().Add(time.Hour).Truncate(time.Second)

	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded for xxx.xxx.xxx.xxx."}`)
	}))

	_, err := clt.PullRequest(readCtx(), Repository{Owner: "o", Name: "r"}, 1)
	require.Error(t, err)

	var retryableErr *amerr.RetryableError
	require.ErrorAs(t, err, &retryableErr)
	assert.True(t, reset.Equal(retryableErr.After), "retry after: %s, expected: %s", retryableErr.After, reset)
}

func TestWrapRetryableErrors_notFoundIsNotRetryable(t *testing.T) {
	clt := newTestClient(t, http.NotFoundHandler())

	_, err := clt.PullRequest(readCtx(), Repository{Owner: "o", Name: "r"}, 1)
	require.Error(t, err)

	var retryableErr *amerr.RetryableError
	assert.False(t, errors.As(err, &retryableErr))
}

func TestWrapRetryableErrorsGraphql(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	// is the same then in github.com/shurcooL/graphql/graphql.go do()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(503)
	}))

	t.Cleanup(srv.Close)

	clt := Client{
		logger:     zap.L(),
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL, srv.Client()),
	}

	s, err := clt.CanMerge(readCtx(), Repository{Owner: "test", Name: "test"}, 123)
	require.Error(t, err)
	assert.Nil(t, s)

	var retryableErr *amerr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapRetryableErrorsGraphqlWithNonStatusErr(t *testing.T) {
	err := errors.New("error")
	wrappedErr := (&Client{}).wrapGraphQLRetryableErrors(err)
	assert.Equal(t, err, wrappedErr)
}

func graphQLPullRequestResponse(mergeable, mergeStateStatus string) string {
	return `{"data": {"repository": {"pullRequest": {
		"state": "OPEN",
		"isDraft": false,
		"mergeable": "` + mergeable + `",
		"mergeStateStatus": "` + mergeStateStatus + `",
		"reviewDecision": "APPROVED",
		"baseRef": {"branchProtectionRule": {"requiredStatusCheckContexts": ["build"]}},
		"commits": {"nodes": [{"commit": {
			"oid": "c0ffee",
			"statusCheckRollup": {
				"state": "SUCCESS",
				"contexts": {
					"pageInfo": {"endCursor": "Y3Vyc29y", "hasNextPage": false},
					"edges": [
						{"node": {"name": "build", "status": "COMPLETED", "conclusion": "SUCCESS"}},
						{"node": {"context": "lint", "state": "SUCCESS"}}
					]
				}
			}
		}}]}
	}}}}`
}

func TestCanMerge(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		fmt.Fprint(w, graphQLPullRequestResponse("MERGEABLE", "CLEAN"))
	}))

	result, err := clt.CanMerge(readCtx(), Repository{Owner: "o", Name: "r"}, 42)
	require.NoError(t, err)

	assert.True(t, result.CanMerge)
	assert.Empty(t, result.Vetoes)
	assert.Equal(t, "c0ffee", result.HeadCommit)
}

func TestCanMerge_behindBaseBranch(t *testing.T) {
	var query string

	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		query = string(body)

		fmt.Fprint(w, graphQLPullRequestResponse("MERGEABLE", "BEHIND"))
	}))

	result, err := clt.CanMerge(readCtx(), Repository{Owner: "o", Name: "r"}, 42)
	require.NoError(t, err)

	assert.Contains(t, query, "mergeStateStatus")
	assert.False(t, result.CanMerge)
	assert.Equal(t, []string{VetoBehind}, result.Vetoes)
}

func TestCanMerge_unknownMergeableStateIsRetryable(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, graphQLPullRequestResponse("UNKNOWN", "UNKNOWN"))
	}))

	_, err := clt.CanMerge(readCtx(), Repository{Owner: "o", Name: "r"}, 42)

	var retryableErr *amerr.RetryableError
	require.ErrorAs(t, err, &retryableErr)
}
