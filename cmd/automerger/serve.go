package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/automerge"
	"github.com/simplesurance/automerger/internal/cfg"
	"github.com/simplesurance/automerger/internal/dispatch"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/policy"
	"github.com/simplesurance/automerger/internal/provider/github"
	"github.com/simplesurance/automerger/internal/retry"
	"github.com/simplesurance/automerger/internal/security"
)

const policyStoreOpenTimeout = 30 * time.Second

func newServeCmd(args *arguments) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive GitHub webhook events and automerge pull requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, args)
		},
	}
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func impersonatedLogins(config *cfg.Config) []string {
	result := make([]string, 0, len(config.Impersonation.Users))
	for _, u := range config.Impersonation.Users {
		result = append(result, u.Login)
	}

	return result
}

type closablePolicyStore interface {
	automerge.PolicyStore
	Close() error
}

type nopCloser struct {
	automerge.PolicyStore
}

func (nopCloser) Close() error {
	return nil
}

func openPolicyStore(ctx context.Context, config *cfg.PolicyStore) (closablePolicyStore, error) {
	switch config.Type {
	case cfg.PolicyStoreTypeFile:
		store := policy.NewFileStore(config.Path)
		if err := store.Validate(); err != nil {
			return nil, fmt.Errorf("validating policy file %s failed: %w", config.Path, err)
		}

		return nopCloser{store}, nil

	case cfg.PolicyStoreTypeSQLite:
		return policy.OpenSQLiteStore(ctx, config.Path)

	default:
		return nil, fmt.Errorf("unsupported policy store type: %q", config.Type)
	}
}

func newGithubClient(config *cfg.Config) (*githubclt.Client, error) {
	opts := []githubclt.Option{
		githubclt.WithImpersonationTokens(config.ImpersonationTokens()),
		githubclt.WithFallbackToServiceToken(config.Impersonation.FallbackToServiceToken),
		githubclt.WithSearchScope(config.Automerge.SearchScope),
	}

	if config.GithubAPIURL != "" {
		opts = append(opts, githubclt.WithAPIURLs(config.GithubAPIURL, config.GithubGraphQLAPIURL))
	}

	return githubclt.New(config.GithubAPIToken, opts...)
}

func serve(cmd *cobra.Command, args *arguments) error {
	config := mustParseCfg(args.ConfigFile)
	exitOnErr(fmt.Sprintf("invalid configuration file: %s", args.ConfigFile), config.Validate())

	mustInitLogger(cmd, config)

	retryTimeout, err := config.RetryTimeout()
	if err != nil {
		return err
	}

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("github_api_url", config.GithubAPIURL),
		zap.String("prometheus_metrics_endpoint", config.PrometheusMetricsEndpoint),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.Bool("dry_run", config.DryRun),
		zap.Int("dispatcher.workers", config.Dispatcher.Workers),
		zap.Strings("automerge.search_scope", config.Automerge.SearchScope),
		zap.Int("automerge.search_page_size", config.Automerge.SearchPageSize),
		zap.Int("automerge.max_commits_per_pull_request", config.Automerge.MaxCommitsPerPullRequest),
		zap.Duration("automerge.retry_timeout", retryTimeout),
		zap.String("policy_store.type", config.PolicyStore.Type),
		zap.String("policy_store.path", config.PolicyStore.Path),
		zap.Bool("impersonation.fallback_to_service_token", config.Impersonation.FallbackToServiceToken),
		zap.Strings("impersonation.users", impersonatedLogins(config)),
		zap.Any("event_filters", config.EventFilters),
	)

	ctx, cancelFn := context.WithTimeout(context.Background(), policyStoreOpenTimeout)
	policies, err := openPolicyStore(ctx, &config.PolicyStore)
	cancelFn()
	if err != nil {
		return fmt.Errorf("opening policy store failed: %w", err)
	}

	githubClient, err := newGithubClient(config)
	if err != nil {
		return fmt.Errorf("creating github client failed: %w", err)
	}

	var prService automerge.PullRequestService = githubClient
	if config.DryRun {
		prService = automerge.NewDryPullRequestService(githubClient, logger)
		logger.Info("dry run enabled, pull requests are not merged")
	}

	retryer := retry.NewRetryer(retry.WithTimeout(retryTimeout))
	dispatcher := dispatch.New(config.Dispatcher.Workers)

	automerger := automerge.New(
		dispatcher,
		policies,
		prService,
		security.NewService(),
		automerge.WithRetryer(retryer),
		automerge.WithSearchPageSize(config.Automerge.SearchPageSize),
		automerge.WithMaxCommitsPerPullRequest(config.Automerge.MaxCommitsPerPullRequest),
	)

	providerOpts := []github.Option{github.WithPayloadSecret(config.GithubWebHookSecret)}
	for eventType, query := range config.EventFilters {
		providerOpts = append(providerOpts, github.WithEventFilter(eventType, query))
	}

	gh, err := github.New(automerger, providerOpts...)
	if err != nil {
		return fmt.Errorf("creating github webhook provider failed: %w", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	mux.Handle(config.PrometheusMetricsEndpoint, promhttp.Handler())
	logger.Info(
		"registered prometheus metrics http endpoint",
		logfields.Event("metrics_http_handler_registered"),
		zap.String("endpoint", config.PrometheusMetricsEndpoint),
	)

	var servers []*http.Server

	if config.HTTPListenAddr != "" {
		srv := &http.Server{Addr: config.HTTPListenAddr, Handler: mux, ReadHeaderTimeout: time.Minute}
		servers = append(servers, srv)
		startHTTPServer(srv, "", "")
	}

	if config.HTTPSListenAddr != "" {
		srv := &http.Server{Addr: config.HTTPSListenAddr, Handler: mux, ReadHeaderTimeout: time.Minute}
		servers = append(servers, srv)
		startHTTPServer(srv, config.HTTPSCertFile, config.HTTPSKeyFile)
	}

	// the components are stopped in the order in that events flow through
	// them, servers first, the policy store last
	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))

		for _, srv := range servers {
			shutdownHTTPServer(srv)
		}

		retryer.Stop()

		logger.Debug("stopping dispatcher", logfields.Event("dispatcher_stopping"))
		dispatcher.Stop()

		if err := policies.Close(); err != nil {
			logger.Warn(
				"closing policy store failed",
				logfields.Event("policy_store_close_failed"),
				zap.Error(err),
			)
		}
	})

	select {}
}
