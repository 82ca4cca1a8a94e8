// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v43/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/security"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// maxPerPage is the max. page size the GitHub REST API supports.
const maxPerPage = 100

// maxSearchResults is the number of results the GitHub search API returns at
// most for a query, requesting pages after it fails with 422.
const maxSearchResults = 1000

var ErrPullRequestNotMergeable = errors.New("pull request is not mergeable")

// Option configures a Client.
type Option func(*options)

type options struct {
	userTokens             map[string]string
	fallbackToServiceToken bool
	searchScope            []string
	restURL                string
	graphQLURL             string
}

// WithImpersonationTokens sets the API tokens that are used when a request is
// done while impersonating a user. The map key is the user's login.
func WithImpersonationTokens(tokens map[string]string) Option {
	return func(o *options) {
		o.userTokens = tokens
	}
}

// WithFallbackToServiceToken enables using the service token for
// requests done on behalf of users that have no configured token.
func WithFallbackToServiceToken(enabled bool) Option {
	return func(o *options) {
		o.fallbackToServiceToken = enabled
	}
}

// WithSearchScope sets search qualifiers (e.g. "org:simplesurance",
// "repo:simplesurance/automerger") that restrict SearchPullRequests.
func WithSearchScope(qualifiers []string) Option {
	return func(o *options) {
		o.searchScope = qualifiers
	}
}

// WithAPIURLs sets the URLs of the REST and GraphQL API, e.g. of a GitHub
// Enterprise server.
func WithAPIURLs(restURL, graphQLURL string) Option {
	return func(o *options) {
		o.restURL = restURL
		o.graphQLURL = graphQLURL
	}
}

// Client is an github API client.
// All methods return an amerr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
// Methods require an authorization context (see package security): reads
// need security.PermissionRead, merges security.PermissionWrite or an
// impersonated user.
type Client struct {
	restClt     *github.Client
	graphQLClt  *githubv4.Client
	logger      *zap.Logger
	searchScope []string
}

// New returns a new github api client.
func New(oauthAPItoken string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	transport := authTransport{
		base:                   http.DefaultTransport,
		serviceToken:           staticTokenSource(oauthAPItoken),
		userTokens:             make(map[string]oauth2.TokenSource, len(o.userTokens)),
		fallbackToServiceToken: o.fallbackToServiceToken,
	}

	for login, token := range o.userTokens {
		transport.userTokens[userTokenKey(login)] = staticTokenSource(token)
	}

	httpClient := &http.Client{
		Transport: &transport,
		Timeout:   DefaultHTTPClientTimeout,
	}

	restClt := github.NewClient(httpClient)
	graphQLClt := githubv4.NewClient(httpClient)

	if o.restURL != "" {
		u, err := url.Parse(o.restURL)
		if err != nil {
			return nil, fmt.Errorf("parsing rest api url failed: %w", err)
		}

		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}

		restClt.BaseURL = u
	}

	if o.graphQLURL != "" {
		graphQLClt = githubv4.NewEnterpriseClient(o.graphQLURL, httpClient)
	}

	return &Client{
		restClt:     restClt,
		graphQLClt:  graphQLClt,
		logger:      zap.L().Named(loggerName),
		searchScope: o.searchScope,
	}, nil
}

// PullRequest fetches a pull request.
func (clt *Client) PullRequest(ctx context.Context, repo Repository, number int) (*PullRequest, error) {
	if err := security.Require(ctx, security.PermissionRead); err != nil {
		return nil, err
	}

	pr, _, err := clt.restClt.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	if pr.GetBase().GetRef() == "" {
		return nil, errors.New("got pull request object with empty base ref field")
	}

	if pr.GetHead().GetSHA() == "" {
		return nil, errors.New("got pull request object with empty head sha")
	}

	return &PullRequest{
		PullRequestRef: PullRequestRef{Repository: repo, Number: number},
		State:          pr.GetState(),
		TargetBranch:   pr.GetBase().GetRef(),
		SourceBranch:   pr.GetHead().GetRef(),
		HeadCommit:     pr.GetHead().GetSHA(),
		Author:         pr.GetUser().GetLogin(),
	}, nil
}

func (clt *Client) searchQuery(filter SearchFilter) string {
	terms := append([]string{"is:pr"}, clt.searchScope...)

	if filter.State != "" {
		terms = append(terms, "is:"+filter.State)
	}

	return strings.Join(terms, " ")
}

// repositoryFromAPIURL extracts the repository from an API url like
// https://api.github.com/repos/<owner>/<name>.
func repositoryFromAPIURL(apiURL string) (Repository, error) {
	_, path, found := strings.Cut(apiURL, "/repos/")
	if !found {
		return Repository{}, fmt.Errorf("url %q does not contain /repos/", apiURL)
	}

	owner, name, found := strings.Cut(strings.Trim(path, "/"), "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("url %q does not contain a repository path", apiURL)
	}

	return Repository{Owner: owner, Name: name}, nil
}

// SearchPullRequests returns a page of pull requests matching filter in the
// search scope of the client.
// page.Start must be a multiple of page.Limit, page.Limit must be in the range
// 1-100.
// GitHub only returns the first 1000 results of a search, pages after them
// are returned empty and marked as last page.
func (clt *Client) SearchPullRequests(ctx context.Context, filter SearchFilter, page PageRequest) (*Page[PullRequestRef], error) {
	if err := security.Require(ctx, security.PermissionRead); err != nil {
		return nil, err
	}

	if page.Limit < 1 || page.Limit > maxPerPage {
		return nil, fmt.Errorf("page limit is %d, must be in range 1-%d", page.Limit, maxPerPage)
	}

	if page.Start%page.Limit != 0 {
		return nil, fmt.Errorf("page start %d is not a multiple of the limit %d", page.Start, page.Limit)
	}

	query := clt.searchQuery(filter)

	if page.Start >= maxSearchResults {
		clt.logSearchResultLimitReached(query, page)
		return &Page[PullRequestRef]{Start: page.Start, IsLastPage: true}, nil
	}

	result, resp, err := clt.restClt.Search.Issues(ctx, query, &github.SearchOptions{
		Sort:  "created",
		Order: "asc",
		ListOptions: github.ListOptions{
			Page:    page.Start/page.Limit + 1,
			PerPage: page.Limit,
		},
	})
	if err != nil {
		if isSearchResultLimitError(err) {
			clt.logSearchResultLimitReached(query, page)
			return &Page[PullRequestRef]{Start: page.Start, IsLastPage: true}, nil
		}

		return nil, clt.wrapRetryableErrors(err)
	}

	values := make([]PullRequestRef, 0, len(result.Issues))
	for _, issue := range result.Issues {
		if !issue.IsPullRequest() {
			continue
		}

		repo, err := repositoryFromAPIURL(issue.GetRepositoryURL())
		if err != nil {
			return nil, fmt.Errorf("search result for #%d: %w", issue.GetNumber(), err)
		}

		values = append(values, PullRequestRef{Repository: repo, Number: issue.GetNumber()})
	}

	clt.logger.Debug(
		"searched pull requests",
		logfields.Event("github_pull_requests_searched"),
		zap.String("github.search_query", query),
		zap.Int("github.search_page_start", page.Start),
		zap.Int("github.search_results", len(values)),
	)

	return &Page[PullRequestRef]{
		Values:     values,
		Start:      page.Start,
		IsLastPage: resp.NextPage == 0,
	}, nil
}

func isSearchResultLimitError(err error) bool {
	var respErr *github.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return false
	}

	return respErr.Response.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(respErr.Message), "first 1000 search results")
}

func (clt *Client) logSearchResultLimitReached(query string, page PageRequest) {
	clt.logger.Info(
		"github search result limit reached, remaining pull requests are not searched",
		logfields.Event("github_search_result_limit_reached"),
		zap.String("github.search_query", query),
		zap.Int("github.search_page_start", page.Start),
		zap.Int("github.search_result_limit", maxSearchResults),
	)
}

// Commits returns the ids of the commits of a pull request.
// GitHub returns at most 250 commits of a pull request.
func (clt *Client) Commits(ctx context.Context, repo Repository, number int, page PageRequest) (*Page[string], error) {
	if err := security.Require(ctx, security.PermissionRead); err != nil {
		return nil, err
	}

	if page.Start < 0 || page.Limit < 1 {
		return nil, fmt.Errorf("invalid page request, start: %d, limit: %d", page.Start, page.Limit)
	}

	result := Page[string]{Start: page.Start}
	skip := page.Start
	opts := github.ListOptions{Page: 1, PerPage: maxPerPage}

	for {
		commits, resp, err := clt.restClt.PullRequests.ListCommits(ctx, repo.Owner, repo.Name, number, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, c := range commits {
			if skip > 0 {
				skip--
				continue
			}

			if len(result.Values) == page.Limit {
				return &result, nil
			}

			result.Values = append(result.Values, c.GetSHA())
		}

		if resp.NextPage == 0 || len(commits) == 0 {
			result.IsLastPage = true
			return &result, nil
		}

		opts.Page = resp.NextPage
	}
}

// Merge merges the pull request with the given merge method ("merge",
// "squash" or "rebase").
// The merge only succeeds if the head of the pull request is still
// pr.HeadCommit.
func (clt *Client) Merge(ctx context.Context, pr *PullRequest, method string) error {
	if err := security.Require(ctx, security.PermissionWrite); err != nil {
		return err
	}

	result, _, err := clt.restClt.PullRequests.Merge(
		ctx,
		pr.Repository.Owner,
		pr.Repository.Name,
		pr.Number,
		"",
		&github.PullRequestOptions{
			SHA:         pr.HeadCommit,
			MergeMethod: method,
		},
	)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil {
			switch respErr.Response.StatusCode {
			case http.StatusMethodNotAllowed, http.StatusConflict:
				return fmt.Errorf("%w: %s", ErrPullRequestNotMergeable, respErr.Message)
			}
		}

		return clt.wrapRetryableErrors(err)
	}

	if !result.GetMerged() {
		return fmt.Errorf("%w: %s", ErrPullRequestNotMergeable, result.GetMessage())
	}

	clt.logger.Info(
		"pull request merged",
		append(
			pr.LogFields(),
			logfields.Event("github_pull_request_merged"),
			zap.String("github.merge_method", method),
			zap.String("github.merge_commit", result.GetSHA()),
		)...,
	)

	return nil
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return amerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.AbuseRateLimitError:
		if v.RetryAfter != nil {
			return amerr.NewRetryableError(err, time.Now().Add(*v.RetryAfter))
		}

		return amerr.NewRetryableAnytimeError(err)

	case *github.ErrorResponse:
		if v.Response != nil && v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return amerr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return amerr.NewRetryableAnytimeError(err)
	}

	return err
}
