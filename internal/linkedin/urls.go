package linkedin

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/dgellow/rest-api-import/internal/urlutil"
)

// LinkURLs builds the Link and Unlink targets shown on the settings page
type LinkURLs struct {
	oauth2Config *oauth2.Config
	nonce        NonceSource
	unlinkURL    string
}

// LinkURLsConfig holds what LinkURLs needs to build both URLs.
// SettingsURL is the absolute URL of the settings page, used as redirect_uri.
type LinkURLsConfig struct {
	ClientID    string
	AuthURL     string
	TokenURL    string
	Scopes      []string
	SettingsURL string
	UnlinkKey   string
	UnlinkValue string
}

// NewLinkURLs validates cfg and precomputes the unlink URL
func NewLinkURLs(cfg LinkURLsConfig, nonce NonceSource) (*LinkURLs, error) {
	unlinkURL, err := urlutil.WithQuery(cfg.SettingsURL, cfg.UnlinkKey, cfg.UnlinkValue)
	if err != nil {
		return nil, fmt.Errorf("building unlink URL: %w", err)
	}

	return &LinkURLs{
		oauth2Config: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.SettingsURL,
			Scopes:      cfg.Scopes,
		},
		nonce:     nonce,
		unlinkURL: unlinkURL,
	}, nil
}

// LinkURL returns the LinkedIn authorization URL carrying the current nonce
// as state.
func (u *LinkURLs) LinkURL() string {
	return u.oauth2Config.AuthCodeURL(u.nonce.Current())
}

// UnlinkURL returns the settings page URL with the unlink flag set
func (u *LinkURLs) UnlinkURL() string {
	return u.unlinkURL
}

// RedirectURL returns the redirect_uri registered for the exchange
func (u *LinkURLs) RedirectURL() string {
	return u.oauth2Config.RedirectURL
}
