// Package cfg loads the automerger configuration file.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	PolicyStoreTypeFile   = "file"
	PolicyStoreTypeSQLite = "sqlite"
)

const (
	DefHTTPGithubWebhookEndpoint  = "/listener/github"
	DefPrometheusMetricsEndpoint  = "/metrics"
	DefLogFormat                  = "logfmt"
	DefLogTimeKey                 = "time_iso8601"
	DefLogLevel                   = "info"
	DefDispatcherWorkers          = 4
	DefSearchPageSize             = 10
	DefMaxCommitsPerPullRequest   = 250
	DefRetryTimeout               = "1m"
	maxSearchPageSize             = 100
	defPolicyStoreType            = PolicyStoreTypeFile
	supportedLogFormatDescription = "logfmt, console or json"
)

type Config struct {
	HTTPListenAddr            string `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string `toml:"https_server_listen_addr"`
	HTTPSCertFile             string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string `toml:"github_webhook_endpoint"`
	GithubWebHookSecret       string `toml:"github_webhook_secret"`
	GithubAPIToken            string `toml:"github_api_token"`
	// GithubAPIURL and GithubGraphQLAPIURL are only set for GitHub
	// Enterprise servers.
	GithubAPIURL              string `toml:"github_api_url"`
	GithubGraphQLAPIURL       string `toml:"github_graphql_api_url"`
	PrometheusMetricsEndpoint string `toml:"prometheus_metrics_endpoint"`
	LogFormat                 string `toml:"log_format"`
	LogTimeKey                string `toml:"log_time_key"`
	LogLevel                  string `toml:"log_level"`
	DryRun                    bool   `toml:"dry_run"`

	Dispatcher    Dispatcher        `toml:"dispatcher"`
	Automerge     Automerge         `toml:"automerge"`
	PolicyStore   PolicyStore       `toml:"policy_store"`
	Impersonation Impersonation     `toml:"impersonation"`
	EventFilters  map[string]string `toml:"event_filters"`
}

type Dispatcher struct {
	Workers int `toml:"workers"`
}

type Automerge struct {
	// SearchScope are GitHub search qualifiers that restrict the pull
	// requests that are searched for a commit, e.g. "org:simplesurance".
	SearchScope              []string `toml:"search_scope"`
	SearchPageSize           int      `toml:"search_page_size"`
	MaxCommitsPerPullRequest int      `toml:"max_commits_per_pull_request"`
	RetryTimeout             string   `toml:"retry_timeout"`
}

type PolicyStore struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

type Impersonation struct {
	FallbackToServiceToken bool    `toml:"fallback_to_service_token"`
	Users                  []*User `toml:"user"`
}

type User struct {
	Login    string `toml:"login"`
	APIToken string `toml:"api_token"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.applyDefaults()

	return &result, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.HTTPGithubWebhookEndpoint, DefHTTPGithubWebhookEndpoint)
	setDefault(&c.PrometheusMetricsEndpoint, DefPrometheusMetricsEndpoint)
	setDefault(&c.LogFormat, DefLogFormat)
	setDefault(&c.LogTimeKey, DefLogTimeKey)
	setDefault(&c.LogLevel, DefLogLevel)
	setDefault(&c.Automerge.RetryTimeout, DefRetryTimeout)
	setDefault(&c.PolicyStore.Type, defPolicyStoreType)

	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = DefDispatcherWorkers
	}

	if c.Automerge.SearchPageSize == 0 {
		c.Automerge.SearchPageSize = DefSearchPageSize
	}

	if c.Automerge.MaxCommitsPerPullRequest == 0 {
		c.Automerge.MaxCommitsPerPullRequest = DefMaxCommitsPerPullRequest
	}
}

func setDefault(val *string, def string) {
	if *val == "" {
		*val = def
	}
}

// Validate returns an error describing all invalid settings of the
// configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPListenAddr == "" && c.HTTPSListenAddr == "" {
		errs = append(errs, errors.New("https_server_listen_addr or http_server_listen_addr must be defined, both are unset"))
	}

	if c.HTTPSListenAddr != "" && (c.HTTPSCertFile == "" || c.HTTPSKeyFile == "") {
		errs = append(errs, errors.New("https_ssl_cert_file and https_ssl_key_file must be defined when https_server_listen_addr is set"))
	}

	if !strings.HasPrefix(c.HTTPGithubWebhookEndpoint, "/") {
		errs = append(errs, fmt.Errorf("github_webhook_endpoint %q must start with a slash", c.HTTPGithubWebhookEndpoint))
	}

	if c.GithubAPIToken == "" {
		errs = append(errs, errors.New("github_api_token is unset"))
	}

	if (c.GithubAPIURL == "") != (c.GithubGraphQLAPIURL == "") {
		errs = append(errs, errors.New("github_api_url and github_graphql_api_url must be set both or none"))
	}

	switch c.LogFormat {
	case "logfmt", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log_format: %q, supported are %s", c.LogFormat, supportedLogFormatDescription))
	}

	if c.Dispatcher.Workers < 1 {
		errs = append(errs, fmt.Errorf("dispatcher.workers must be positive, is %d", c.Dispatcher.Workers))
	}

	if len(c.Automerge.SearchScope) == 0 {
		errs = append(errs, errors.New("automerge.search_scope is unset, it must restrict the searched pull requests, e.g. to an organization"))
	}

	for i, qualifier := range c.Automerge.SearchScope {
		if strings.TrimSpace(qualifier) == "" {
			errs = append(errs, fmt.Errorf("automerge.search_scope #%d is empty", i+1))
		}
	}

	if c.Automerge.SearchPageSize < 1 || c.Automerge.SearchPageSize > maxSearchPageSize {
		errs = append(errs, fmt.Errorf("automerge.search_page_size must be in the range 1-%d, is %d", maxSearchPageSize, c.Automerge.SearchPageSize))
	}

	if c.Automerge.MaxCommitsPerPullRequest < 1 {
		errs = append(errs, fmt.Errorf("automerge.max_commits_per_pull_request must be positive, is %d", c.Automerge.MaxCommitsPerPullRequest))
	}

	if _, err := c.RetryTimeout(); err != nil {
		errs = append(errs, err)
	}

	if err := c.PolicyStore.Validate(); err != nil {
		errs = append(errs, err)
	}

	seenLogins := make(map[string]struct{}, len(c.Impersonation.Users))
	for i, user := range c.Impersonation.Users {
		if user.Login == "" || user.APIToken == "" {
			errs = append(errs, fmt.Errorf("impersonation.user #%d: login and api_token must be set", i+1))
			continue
		}

		login := strings.ToLower(user.Login)
		if _, exists := seenLogins[login]; exists {
			errs = append(errs, fmt.Errorf("impersonation.user %q is defined multiple times", user.Login))
		}
		seenLogins[login] = struct{}{}
	}

	return errors.Join(errs...)
}

// Validate returns an error if the policy store settings are invalid.
func (p *PolicyStore) Validate() error {
	var errs []error

	switch p.Type {
	case PolicyStoreTypeFile, PolicyStoreTypeSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported policy_store.type: %q", p.Type))
	}

	if p.Path == "" {
		errs = append(errs, errors.New("policy_store.path is unset"))
	}

	return errors.Join(errs...)
}

// RetryTimeout returns the parsed automerge.retry_timeout setting.
func (c *Config) RetryTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Automerge.RetryTimeout)
	if err != nil {
		return 0, fmt.Errorf("automerge.retry_timeout: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("automerge.retry_timeout must be positive, is %s", d)
	}

	return d, nil
}

// ImpersonationTokens returns the configured API tokens of users, indexed
// by their login.
func (c *Config) ImpersonationTokens() map[string]string {
	result := make(map[string]string, len(c.Impersonation.Users))

	for _, user := range c.Impersonation.Users {
		result[user.Login] = user.APIToken
	}

	return result
}
