package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/simplesurance/automerger/internal/security"
)

// ErrNoImpersonationToken is returned when a request is done while
// impersonating a user for that no API token is configured.
var ErrNoImpersonationToken = errors.New("no api token configured for impersonated user")

// authTransport authenticates requests with the API token of the principal
// that is impersonated in the request context.
// Requests that are not done on behalf of a user are authenticated with the
// service token.
type authTransport struct {
	base                   http.RoundTripper
	serviceToken           oauth2.TokenSource
	userTokens             map[string]oauth2.TokenSource
	fallbackToServiceToken bool
}

func staticTokenSource(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}

	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

func userTokenKey(login string) string {
	return strings.ToLower(login)
}

func (t *authTransport) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	auth := security.FromContext(ctx)
	if auth.Impersonated == nil {
		return t.serviceToken, nil
	}

	if src, exists := t.userTokens[userTokenKey(auth.Impersonated.Login)]; exists {
		return src, nil
	}

	if t.fallbackToServiceToken {
		return t.serviceToken, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoImpersonationToken, auth.Impersonated.Login)
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	src, err := t.tokenSource(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}

		return nil, err
	}

	if src == nil {
		return t.base.RoundTrip(req)
	}

	return (&oauth2.Transport{Source: src, Base: t.base}).RoundTrip(req)
}
