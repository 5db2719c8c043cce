package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgellow/rest-api-import/internal/ioutil"
	"github.com/dgellow/rest-api-import/internal/log"
)

const (
	// maxTokenResponseSize bounds how much of the token endpoint's answer is read
	maxTokenResponseSize = 1 << 20

	// maxExpiresIn is the largest expires_in that still fits a time.Duration
	maxExpiresIn = math.MaxInt64 / int64(time.Second)

	defaultExchangeTimeout = 30 * time.Second
)

// HTTPClient is the one method of *http.Client the Authorizer needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AccessToken is the result of a successful code exchange
type AccessToken struct {
	Value     string
	ExpiresIn int64 // seconds
}

// TTL returns the lifetime of the token
func (t AccessToken) TTL() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}

// Authorizer exchanges an authorization code for an access token.
//
// Each call issues at most one POST; nothing is retried. Concurrent calls for
// the same code share the single upstream request.
type Authorizer struct {
	client       HTTPClient
	tokenURL     string
	clientID     string
	clientSecret string
	timeout      time.Duration
	group        singleflight.Group
}

// AuthorizerOption configures an Authorizer
type AuthorizerOption func(*Authorizer)

// WithExchangeTimeout bounds a single shared exchange
func WithExchangeTimeout(d time.Duration) AuthorizerOption {
	return func(a *Authorizer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthorizer creates an Authorizer for the given token endpoint
func NewAuthorizer(client HTTPClient, tokenURL, clientID, clientSecret string, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		client:       client,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		timeout:      defaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize exchanges code for an access token. redirectURL must be the
// redirect_uri used when the code was requested.
//
// The shared exchange does not inherit cancellation from whichever caller
// started it: a caller whose ctx ends stops waiting, the others still get
// the result.
func (a *Authorizer) Authorize(ctx context.Context, code, redirectURL string) (*AccessToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Err: err}
	}

	ch := a.group.DoChan(code+"\n"+redirectURL, func() (any, error) {
		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		return a.exchange(exchangeCtx, code, redirectURL)
	})

	select {
	case <-ctx.Done():
		return nil, &TransportError{Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			log.LogDebugWithFields("linkedin", "Shared in-flight code exchange", nil)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		token := *res.Val.(*AccessToken)
		return &token, nil
	}
}

func (a *Authorizer) exchange(ctx context.Context, code, redirectURL string) (*AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURL)
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	log.LogTrace("Exchanging authorization code at %s", a.tokenURL)

	resp, err := a.client.Do(req)
	if err != nil {
		log.LogErrorWithFields("linkedin", "Token request failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAllLimited(resp.Body, maxTokenResponseSize)
	if err != nil {
		if errors.Is(err, ioutil.ErrTooLarge) {
			return nil, &MalformedResponseError{Err: err}
		}
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &errResp)

		log.LogErrorWithFields("linkedin", "Token endpoint returned error status", map[string]any{
			"status": resp.StatusCode,
			"body":   ioutil.Snippet(body, 256),
		})
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode, Description: errResp.ErrorDescription}
	}

	return parseTokenResponse(body)
}

// parseTokenResponse requires a non-empty access_token and a positive
// integer expires_in small enough to be a time.Duration.
func parseTokenResponse(body []byte) (*AccessToken, error) {
	var payload struct {
		AccessToken *string `json:"access_token"`
		ExpiresIn   *int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedResponseError{Err: err}
	}
	if payload.AccessToken == nil || *payload.AccessToken == "" {
		return nil, &MalformedResponseError{Err: errors.New("missing access_token")}
	}
	if payload.ExpiresIn == nil {
		return nil, &MalformedResponseError{Err: errors.New("missing expires_in")}
	}
	if *payload.ExpiresIn <= 0 {
		return nil, &MalformedResponseError{Err: errors.New("expires_in must be positive")}
	}
	if *payload.ExpiresIn > maxExpiresIn {
		return nil, &MalformedResponseError{Err: fmt.Errorf("expires_in %d out of range", *payload.ExpiresIn)}
	}

	return &AccessToken{Value: *payload.AccessToken, ExpiresIn: *payload.ExpiresIn}, nil
}
