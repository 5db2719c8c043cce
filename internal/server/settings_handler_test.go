package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/rest-api-import/internal/linkedin"
	"github.com/dgellow/rest-api-import/internal/log"
	"github.com/dgellow/rest-api-import/internal/storage"
)

const (
	testSettingsURL = "https://wp.example.com/settings"
	testCSRF        = "csrf-token"
)

type mockAuthRequestHandler struct {
	mock.Mock
}

func (m *mockAuthRequestHandler) Handle(ctx context.Context, req linkedin.AuthRequest, redirectURL string) error {
	return m.Called(ctx, req, redirectURL).Error(0)
}

type mockLinkStatus struct {
	mock.Mock
}

func (m *mockLinkStatus) IsLinked(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

type staticURLs struct{}

func (staticURLs) LinkURL() string     { return "https://www.linkedin.com/oauth/v2/authorization?state=n1" }
func (staticURLs) UnlinkURL() string   { return testSettingsURL + "?is_link=false" }
func (staticURLs) RedirectURL() string { return testSettingsURL }

type staticNonce string

func (n staticNonce) Current() string { return string(n) }

func newTestSettingsHandlers(auth AuthRequestHandler, status LinkStatus) *SettingsHandlers {
	return NewSettingsHandlers(auth, status, staticURLs{}, staticNonce(testCSRF), SettingsConfig{
		LoggingURL:  "/settings/logging",
		UnlinkKey:   "is_link",
		UnlinkValue: "false",
	})
}

func getSettings(h *SettingsHandlers, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/settings?"+query, nil)
	w := httptest.NewRecorder()
	h.SettingsPageHandler(w, req)
	return w
}

func TestSettingsPage_PlainLoad(t *testing.T) {
	auth := &mockAuthRequestHandler{}
	auth.On("Handle", mock.Anything, linkedin.AuthRequest{IsLinking: true}, testSettingsURL).Return(nil)
	status := &mockLinkStatus{}
	status.On("IsLinked", mock.Anything).Return(false, nil)

	w := getSettings(newTestSettingsHandlers(auth, status), "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))

	body := w.Body.String()
	assert.Contains(t, body, `id="linkedin-authorize"`)
	assert.Contains(t, body, ">Link</a>")
	assert.Contains(t, body, "https://www.linkedin.com/oauth/v2/authorization?state=n1")
	assert.NotContains(t, body, "linkedin-notice")
	assert.Contains(t, body, `value="`+testCSRF+`"`)
	auth.AssertExpectations(t)
}

func TestSettingsPage_Authorized(t *testing.T) {
	auth := &mockAuthRequestHandler{}
	auth.On("Handle", mock.Anything, mock.MatchedBy(func(req linkedin.AuthRequest) bool {
		return req.IsLinking && req.Code != nil && *req.Code == "abc" && req.State != nil && *req.State == "n1"
	}), testSettingsURL).Return(nil)
	status := &mockLinkStatus{}
	status.On("IsLinked", mock.Anything).Return(true, nil)

	w := getSettings(newTestSettingsHandlers(auth, status), "code=abc&state=n1")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Authorized!")
	assert.Contains(t, body, ">Unlink</a>")
	assert.Contains(t, body, testSettingsURL+"?is_link=false")
}

func TestSettingsPage_Unlinked(t *testing.T) {
	auth := &mockAuthRequestHandler{}
	auth.On("Handle", mock.Anything, linkedin.AuthRequest{IsLinking: false}, testSettingsURL).Return(nil)
	status := &mockLinkStatus{}
	status.On("IsLinked", mock.Anything).Return(false, nil)

	w := getSettings(newTestSettingsHandlers(auth, status), "is_link=false")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Unlinked!")
	assert.NotContains(t, body, "Authorized!")
	assert.Contains(t, body, ">Link</a>")
}

func TestSettingsPage_ErrorsAreRendered(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "state mismatch",
			err:     linkedin.ErrStateMismatch,
			message: "could not handle LinkedIn authentication: state code did not match",
		},
		{
			name:    "upstream error",
			err:     &linkedin.UpstreamError{Message: "The user cancelled LinkedIn login"},
			message: "The user cancelled LinkedIn login",
		},
		{
			name:    "status error",
			err:     &linkedin.UpstreamStatusError{StatusCode: 403, Description: "invalid_grant"},
			message: "authentication server responded with code &#34;403&#34;: invalid_grant",
		},
		{
			name:    "transport error",
			err:     &linkedin.TransportError{Err: errors.New("connection refused")},
			message: "connection refused",
		},
		{
			name:    "malformed response",
			err:     &linkedin.MalformedResponseError{},
			message: "authentication server responded with unexpected format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuthRequestHandler{}
			auth.On("Handle", mock.Anything, mock.Anything, testSettingsURL).Return(tt.err)
			status := &mockLinkStatus{}
			status.On("IsLinked", mock.Anything).Return(false, nil)

			w := getSettings(newTestSettingsHandlers(auth, status), "code=abc&state=n1")

			assert.Equal(t, http.StatusOK, w.Code)
			body := w.Body.String()
			assert.Contains(t, body, "notice-error")
			assert.Contains(t, body, tt.message)
			assert.NotContains(t, body, "Authorized!")
		})
	}
}

func TestSettingsPage_ErrorMessageIsEscaped(t *testing.T) {
	auth := &mockAuthRequestHandler{}
	auth.On("Handle", mock.Anything, mock.Anything, testSettingsURL).
		Return(&linkedin.UpstreamError{Message: "<script>alert(1)</script>"})
	status := &mockLinkStatus{}
	status.On("IsLinked", mock.Anything).Return(false, nil)

	w := getSettings(newTestSettingsHandlers(auth, status), "error_description=x&state=n1")

	assert.NotContains(t, w.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, w.Body.String(), "&lt;script&gt;")
}

func TestSettingsPage_StorageReadFailure(t *testing.T) {
	auth := &mockAuthRequestHandler{}
	auth.On("Handle", mock.Anything, mock.Anything, testSettingsURL).Return(nil)
	status := &mockLinkStatus{}
	status.On("IsLinked", mock.Anything).Return(false, errors.New("database is locked"))

	w := getSettings(newTestSettingsHandlers(auth, status), "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to read LinkedIn link status")
	assert.NotContains(t, w.Body.String(), "database is locked")
}

func TestSettingsPage_MethodNotAllowed(t *testing.T) {
	h := newTestSettingsHandlers(&mockAuthRequestHandler{}, &mockLinkStatus{})

	w := httptest.NewRecorder()
	h.SettingsPageHandler(w, httptest.NewRequest(http.MethodPost, "/settings?is_link=false", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSettingsPage_Head(t *testing.T) {
	auth := &mockAuthRequestHandler{}
	auth.On("Handle", mock.Anything, mock.Anything, testSettingsURL).Return(nil)
	status := &mockLinkStatus{}
	status.On("IsLinked", mock.Anything).Return(false, nil)

	w := httptest.NewRecorder()
	newTestSettingsHandlers(auth, status).SettingsPageHandler(w, httptest.NewRequest(http.MethodHead, "/settings", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestStatusHandler(t *testing.T) {
	t.Run("linked", func(t *testing.T) {
		status := &mockLinkStatus{}
		status.On("IsLinked", mock.Anything).Return(true, nil)

		w := httptest.NewRecorder()
		newTestSettingsHandlers(&mockAuthRequestHandler{}, status).StatusHandler(w, httptest.NewRequest(http.MethodGet, "/settings/status", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"linked":true}`, w.Body.String())
	})

	t.Run("storage failure", func(t *testing.T) {
		status := &mockLinkStatus{}
		status.On("IsLinked", mock.Anything).Return(false, errors.New("unavailable"))

		w := httptest.NewRecorder()
		newTestSettingsHandlers(&mockAuthRequestHandler{}, status).StatusHandler(w, httptest.NewRequest(http.MethodGet, "/settings/status", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func postLogging(h *SettingsHandlers, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/settings/logging", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.LoggingHandler(w, req)
	return w
}

func TestLoggingHandler(t *testing.T) {
	original := log.GetLogLevel()
	t.Cleanup(func() { _ = log.SetLogLevel(original) })

	h := newTestSettingsHandlers(&mockAuthRequestHandler{}, &mockLinkStatus{})

	t.Run("updates level", func(t *testing.T) {
		w := postLogging(h, url.Values{"csrf_token": {testCSRF}, "log_level": {"debug"}})
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, testSettingsURL, w.Header().Get("Location"))
		assert.Equal(t, "debug", log.GetLogLevel())
	})

	t.Run("bad csrf", func(t *testing.T) {
		w := postLogging(h, url.Values{"csrf_token": {"forged"}, "log_level": {"trace"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "debug", log.GetLogLevel())
	})

	t.Run("missing csrf", func(t *testing.T) {
		w := postLogging(h, url.Values{"log_level": {"trace"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("invalid level", func(t *testing.T) {
		w := postLogging(h, url.Values{"csrf_token": {testCSRF}, "log_level": {"loud"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing level", func(t *testing.T) {
		w := postLogging(h, url.Values{"csrf_token": {testCSRF}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.LoggingHandler(w, httptest.NewRequest(http.MethodGet, "/settings/logging", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

// Settings page wired to the real LinkedIn flow and a fake token endpoint
func TestSettingsPage_LinkAndUnlink(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "abc-code", r.PostForm.Get("code"))
		assert.Equal(t, testSettingsURL, r.PostForm.Get("redirect_uri"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"abc","expires_in":5184000}`)
	}))
	defer tokenServer.Close()

	ctx := context.Background()
	store := storage.NewMemoryStorage()
	nonce := staticNonce("n1")

	authorizer := linkedin.NewAuthorizer(tokenServer.Client(), tokenServer.URL, "client-id", "client-secret")
	authHandler := linkedin.NewAuthHandler(authorizer, store, "rai_auth_key", nonce)
	urls, err := linkedin.NewLinkURLs(linkedin.LinkURLsConfig{
		ClientID:    "client-id",
		AuthURL:     "https://www.linkedin.com/oauth/v2/authorization",
		TokenURL:    tokenServer.URL,
		SettingsURL: testSettingsURL,
		UnlinkKey:   "is_link",
		UnlinkValue: "false",
	}, nonce)
	require.NoError(t, err)
	tokens := linkedin.NewTokenSource(store, "rai_auth_key")

	h := NewSettingsHandlers(authHandler, tokens, urls, staticNonce(testCSRF), SettingsConfig{
		LoggingURL:  "/settings/logging",
		UnlinkKey:   "is_link",
		UnlinkValue: "false",
	})

	w := getSettings(h, "code=abc-code&state=n1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Authorized!")
	assert.Contains(t, w.Body.String(), ">Unlink</a>")

	value, err := store.Get(ctx, "rai_auth_key")
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	w = getSettings(h, "is_link=false")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Unlinked!")
	assert.Contains(t, w.Body.String(), ">Link</a>")

	_, err = store.Get(ctx, "rai_auth_key")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// A forged state never reaches the token endpoint
	w = getSettings(h, "code=abc-code&state=forged")
	assert.Contains(t, w.Body.String(), "state code did not match")
	_, err = store.Get(ctx, "rai_auth_key")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Expired tokens read as unlinked
	require.NoError(t, store.Set(ctx, "rai_auth_key", "abc", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	linked, err := tokens.IsLinked(ctx)
	require.NoError(t, err)
	assert.False(t, linked)
}
