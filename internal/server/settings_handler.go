package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	jsonwriter "github.com/dgellow/rest-api-import/internal/json"
	"github.com/dgellow/rest-api-import/internal/linkedin"
	"github.com/dgellow/rest-api-import/internal/log"
)

var logLevels = []string{"error", "warn", "info", "debug", "trace"}

// AuthRequestHandler applies a parsed settings page request to the token store
type AuthRequestHandler interface {
	Handle(ctx context.Context, req linkedin.AuthRequest, redirectURL string) error
}

// LinkStatus reports whether a LinkedIn token is stored
type LinkStatus interface {
	IsLinked(ctx context.Context) (bool, error)
}

// SettingsURLs provides the URLs rendered on the settings page
type SettingsURLs interface {
	LinkURL() string
	UnlinkURL() string
	RedirectURL() string
}

// SettingsHandlers serves the LinkedIn settings page and its actions
type SettingsHandlers struct {
	auth        AuthRequestHandler
	status      LinkStatus
	urls        SettingsURLs
	csrf        linkedin.NonceSource
	loggingURL  string
	unlinkKey   string
	unlinkValue string
}

// SettingsConfig holds the static values the settings page needs
type SettingsConfig struct {
	LoggingURL  string
	UnlinkKey   string
	UnlinkValue string
}

// NewSettingsHandlers creates the settings page handlers. csrf provides the
// token embedded in page forms.
func NewSettingsHandlers(auth AuthRequestHandler, status LinkStatus, urls SettingsURLs, csrf linkedin.NonceSource, cfg SettingsConfig) *SettingsHandlers {
	return &SettingsHandlers{
		auth:        auth,
		status:      status,
		urls:        urls,
		csrf:        csrf,
		loggingURL:  cfg.LoggingURL,
		unlinkKey:   cfg.UnlinkKey,
		unlinkValue: cfg.UnlinkValue,
	}
}

// SettingsPageHandler handles every settings page load. A load may be a
// plain visit, an unlink request, or LinkedIn redirecting back with a code
// or an error; all of them are processed before the page renders.
func (h *SettingsHandlers) SettingsPageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}

	ctx := r.Context()
	req := linkedin.ParseAuthRequest(r.URL.Query(), h.unlinkKey, h.unlinkValue)

	data := SettingsPageData{
		IsLinking:  req.IsLinking,
		LoggingURL: h.loggingURL,
		LogLevel:   log.GetLogLevel(),
		LogLevels:  logLevels,
		CSRFToken:  h.csrf.Current(),
	}

	if err := h.auth.Handle(ctx, req, h.urls.RedirectURL()); err != nil {
		logAuthError(err)
		data.ErrorMessage = err.Error()
	} else {
		data.IsAuthorized = req.IsLinking && req.Code != nil
	}

	linked, err := h.status.IsLinked(ctx)
	if err != nil {
		log.LogErrorWithFields("settings", "Failed to read LinkedIn link status", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to read LinkedIn link status")
		return
	}
	data.IsLinked = linked
	if linked {
		data.UnlinkURL = h.urls.UnlinkURL()
	} else {
		data.LinkURL = h.urls.LinkURL()
	}

	var buf bytes.Buffer
	if err := settingsPageTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("settings", "Failed to render settings page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	setPageHeaders(w.Header())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(buf.Bytes())
	}
}

// StatusHandler reports the link status as JSON
func (h *SettingsHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}

	linked, err := h.status.IsLinked(r.Context())
	if err != nil {
		log.LogErrorWithFields("settings", "Failed to read LinkedIn link status", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Token storage unavailable")
		return
	}

	_ = jsonwriter.Write(w, map[string]any{"linked": linked})
}

// LoggingHandler changes the log level at runtime
func (h *SettingsHandlers) LoggingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseForm(); err != nil {
		jsonwriter.WriteBadRequest(w, "Bad request")
		return
	}

	token := r.PostFormValue("csrf_token")
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.csrf.Current())) != 1 {
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	level := r.PostFormValue("log_level")
	if level == "" {
		jsonwriter.WriteBadRequest(w, "Missing log_level")
		return
	}

	if err := log.SetLogLevel(level); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid log_level")
		return
	}

	http.Redirect(w, r, h.urls.RedirectURL(), http.StatusSeeOther)
}

func logAuthError(err error) {
	fields := map[string]any{"error": err.Error()}

	var statusErr *linkedin.UpstreamStatusError
	var transportErr *linkedin.TransportError
	var malformedErr *linkedin.MalformedResponseError
	switch {
	case errors.As(err, &statusErr):
		fields["status"] = statusErr.StatusCode
		log.LogWarnWithFields("settings", "LinkedIn rejected the authorization code", fields)
	case errors.As(err, &transportErr):
		log.LogErrorWithFields("settings", "Could not reach LinkedIn token endpoint", fields)
	case errors.As(err, &malformedErr):
		log.LogErrorWithFields("settings", "LinkedIn token response was malformed", fields)
	default:
		log.LogDebugWithFields("settings", "Settings request failed", fields)
	}
}
