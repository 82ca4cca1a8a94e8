// Package github receives GitHub webhook events and converts them to
// automerge triggers.
package github

import (
	"fmt"
	"net/http"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
)

const loggerName = "github-event-provider"

const (
	checkSuiteActionCompleted = "completed"
	reviewActionSubmitted     = "submitted"
	reviewActionDismissed     = "dismissed"
)

const (
	logFieldDeliveryID         = "github.delivery_id"
	logFieldWebhookType        = "github.webhook_type"
	logFieldWebhookEventAction = "github.webhook_action"
)

// Sink receives the events that can cause a pull request to become
// mergeable.
// The methods must not block.
type Sink interface {
	ParticipantStatusUpdated(repo githubclt.Repository, pullRequestNumber int)
	BuildStatusSet(commitID string)
}

// Provider listens for github-webhook http-requests at a http-server handler,
// validates them, converts supported events and forwards them to a Sink.
type Provider struct {
	logging       *zap.Logger
	webhookSecret []byte
	sink          Sink
	filters       map[string]*eventFilter

	err error
}

type Option func(*Provider)

func WithPayloadSecret(secret string) Option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

// WithEventFilter sets a jq query that is evaluated on the payload of
// webhook events of type eventType. Only events for that the query returns
// true are forwarded to the sink.
func WithEventFilter(eventType, jqQuery string) Option {
	return func(p *Provider) {
		f, err := newEventFilter(jqQuery)
		if err != nil {
			p.err = fmt.Errorf("parsing filter query for %q events failed: %w", eventType, err)
			return
		}

		p.filters[eventType] = f
	}
}

func New(sink Sink, opts ...Option) (*Provider, error) {
	p := Provider{
		sink:    sink,
		filters: map[string]*eventFilter{},
	}

	for _, o := range opts {
		o(&p)
		if p.err != nil {
			return nil, p.err
		}
	}

	if p.logging == nil {
		p.logging = zap.L().Named(loggerName)
	}

	return &p, nil
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logFields := []zap.Field{
		logfields.EventProvider("github"),
		zap.String(logFieldDeliveryID, deliveryID),
		zap.String(logFieldWebhookType, hookType),
	}

	logger := p.logging.With(logFields...)

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Debug(
		"received http request",
		logfields.Event("github_event_received"),
		zap.ByteString("http_body", payload),
	)

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	if filter, exists := p.filters[hookType]; exists {
		match, err := filter.Match(req.Context(), payload)
		if err != nil {
			logger.Error(
				"evaluating event filter failed",
				logfields.Event("github_event_filter_failed"),
				zap.String("github.event_filter", filter.String()),
				zap.Error(err),
			)
			http.Error(resp, "evaluating event filter failed", http.StatusInternalServerError)
			return
		}

		if !match {
			logger.Debug(
				"ignoring event, filter query evaluated to false",
				logfields.Event("github_event_filtered"),
				zap.String("github.event_filter", filter.String()),
			)
			return
		}
	}

	p.forward(logger, event)
}

// forward passes the pull request or commit that an event refers to to the
// sink. Events that do not affect the mergeability of a pull request are
// ignored.
func (p *Provider) forward(logger *zap.Logger, event any) {
	switch event := event.(type) {
	case *github.PullRequestReviewEvent:
		logger = logger.With(zap.String(logFieldWebhookEventAction, event.GetAction()))

		if event.GetAction() != reviewActionSubmitted && event.GetAction() != reviewActionDismissed {
			logger.Debug(
				"ignoring pull request review event, action does not change the review status",
				logfields.Event("github_event_ignored"),
			)
			return
		}

		repo := githubclt.Repository{
			Owner: event.GetRepo().GetOwner().GetLogin(),
			Name:  event.GetRepo().GetName(),
		}
		prNumber := event.GetPullRequest().GetNumber()

		logger.Debug(
			"forwarding review status change",
			append(
				repo.LogFields(),
				logfields.PullRequest(prNumber),
				logfields.Event("github_event_forwarded"),
			)...,
		)

		p.sink.ParticipantStatusUpdated(repo, prNumber)

	case *github.StatusEvent:
		logger.Debug(
			"forwarding commit status",
			logfields.Commit(event.GetSHA()),
			logfields.Event("github_event_forwarded"),
			zap.String("github.status_context", event.GetContext()),
			zap.String("github.status_state", event.GetState()),
		)

		p.sink.BuildStatusSet(event.GetSHA())

	case *github.CheckSuiteEvent:
		logger = logger.With(zap.String(logFieldWebhookEventAction, event.GetAction()))

		if event.GetAction() != checkSuiteActionCompleted {
			logger.Debug(
				"ignoring check suite event, check suite is not completed",
				logfields.Event("github_event_ignored"),
			)
			return
		}

		commitID := event.GetCheckSuite().GetHeadSHA()

		logger.Debug(
			"forwarding completed check suite",
			logfields.Commit(commitID),
			logfields.Event("github_event_forwarded"),
			zap.String("github.check_suite_conclusion", event.GetCheckSuite().GetConclusion()),
		)

		p.sink.BuildStatusSet(commitID)

	default:
		logger.Debug(
			"ignoring event, event type is unsupported",
			logfields.Event("github_unsupported_event_received"),
		)
	}
}
