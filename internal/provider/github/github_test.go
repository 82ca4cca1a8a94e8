package github

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/automerger/internal/githubclt"
)

const testSecret = "s3cr3t"

const pullRequestReviewSubmittedPayload = `{
  "action": "submitted",
  "review": {"id": 1, "state": "approved", "user": {"login": "bob"}},
  "pull_request": {"number": 42, "head": {"ref": "feature/x", "sha": "c0ffee"}, "base": {"ref": "release/2"}},
  "repository": {"name": "automerger", "owner": {"login": "simplesurance"}}
}`

const pullRequestReviewEditedPayload = `{
  "action": "edited",
  "review": {"id": 1, "state": "commented"},
  "pull_request": {"number": 42},
  "repository": {"name": "automerger", "owner": {"login": "simplesurance"}}
}`

const statusPayload = `{
  "sha": "8ad9dec4298f6b8f020997373cf4fe22005f2c06",
  "state": "success",
  "context": "ci/build",
  "repository": {"name": "automerger", "owner": {"login": "simplesurance"}}
}`

const checkSuiteCompletedPayload = `{
  "action": "completed",
  "check_suite": {"id": 5, "head_sha": "4b825dc642cb6eb9a060e54bf8d69288fbee4904", "status": "completed", "conclusion": "success"},
  "repository": {"name": "automerger", "owner": {"login": "simplesurance"}}
}`

const checkSuiteRequestedPayload = `{
  "action": "requested",
  "check_suite": {"id": 5, "head_sha": "4b825dc642cb6eb9a060e54bf8d69288fbee4904", "status": "queued"},
  "repository": {"name": "automerger", "owner": {"login": "simplesurance"}}
}`

const pushPayload = `{"ref": "refs/heads/main", "after": "c0ffee"}`

type participantStatusUpdate struct {
	repo     githubclt.Repository
	prNumber int
}

type recordingSink struct {
	statusUpdates []participantStatusUpdate
	commits       []string
}

func (s *recordingSink) ParticipantStatusUpdated(repo githubclt.Repository, pullRequestNumber int) {
	s.statusUpdates = append(s.statusUpdates, participantStatusUpdate{repo: repo, prNumber: pullRequestNumber})
}

func (s *recordingSink) BuildStatusSet(commitID string) {
	s.commits = append(s.commits, commitID)
}

func sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newWebhookReq(eventType, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/listener/github", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "3355fab0-b22c-11eb-9936-51d9540c0cdc")
	req.Header.Set("X-Hub-Signature-256", sign(payload))

	return req
}

func newTestProvider(t *testing.T, opts ...Option) (*Provider, *recordingSink) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t)))

	sink := recordingSink{}
	p, err := New(&sink, append([]Option{WithPayloadSecret(testSecret)}, opts...)...)
	require.NoError(t, err)

	return p, &sink
}

func TestHTTPHandlerEventConversion(t *testing.T) {
	testcases := []struct {
		name                  string
		eventType             string
		payload               string
		expectedStatusUpdates []participantStatusUpdate
		expectedCommits       []string
	}{
		{
			name:      "review submitted",
			eventType: "pull_request_review",
			payload:   pullRequestReviewSubmittedPayload,
			expectedStatusUpdates: []participantStatusUpdate{
				{
					repo:     githubclt.Repository{Owner: "simplesurance", Name: "automerger"},
					prNumber: 42,
				},
			},
		},
		{
			name:      "review edited",
			eventType: "pull_request_review",
			payload:   pullRequestReviewEditedPayload,
		},
		{
			name:            "status",
			eventType:       "status",
			payload:         statusPayload,
			expectedCommits: []string{"8ad9dec4298f6b8f020997373cf4fe22005f2c06"},
		},
		{
			name:            "check suite completed",
			eventType:       "check_suite",
			payload:         checkSuiteCompletedPayload,
			expectedCommits: []string{"4b825dc642cb6eb9a060e54bf8d69288fbee4904"},
		},
		{
			name:      "check suite requested",
			eventType: "check_suite",
			payload:   checkSuiteRequestedPayload,
		},
		{
			name:      "unsupported event",
			eventType: "push",
			payload:   pushPayload,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p, sink := newTestProvider(t)

			respRecorder := httptest.NewRecorder()
			p.HTTPHandler(respRecorder, newWebhookReq(tc.eventType, tc.payload))
			require.Equal(t, http.StatusOK, respRecorder.Code)

			assert.Equal(t, tc.expectedStatusUpdates, sink.statusUpdates)
			assert.Equal(t, tc.expectedCommits, sink.commits)
		})
	}
}

func TestHTTPHandlerRejectsInvalidSignature(t *testing.T) {
	p, sink := newTestProvider(t)

	req := newWebhookReq("status", statusPayload)
	req.Header.Set("X-Hub-Signature-256", "sha256=0000")

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, req)

	assert.Equal(t, http.StatusBadRequest, respRecorder.Code)
	assert.Empty(t, sink.commits)
}

func TestHTTPHandlerAppliesEventFilter(t *testing.T) {
	p, sink := newTestProvider(t, WithEventFilter("status", `.state == "success"`))

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("status", statusPayload))
	require.Equal(t, http.StatusOK, respRecorder.Code)
	assert.Len(t, sink.commits, 1)

	p, sink = newTestProvider(t, WithEventFilter("status", `.state == "pending"`))

	respRecorder = httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("status", statusPayload))
	require.Equal(t, http.StatusOK, respRecorder.Code)
	assert.Empty(t, sink.commits)
}

func TestHTTPHandlerFilterErrorReturnsInternalServerError(t *testing.T) {
	p, sink := newTestProvider(t, WithEventFilter("status", `.state`))

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq("status", statusPayload))

	assert.Equal(t, http.StatusInternalServerError, respRecorder.Code)
	assert.Empty(t, sink.commits)
}

func TestNewFailsOnInvalidFilter(t *testing.T) {
	_, err := New(&recordingSink{}, WithEventFilter("status", `.state ==`))
	require.Error(t, err)
}
