package linkedin

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/dgellow/rest-api-import/internal/log"
)

// TokenStore is the part of storage.Storage the LinkedIn flow uses
type TokenStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// NonceSource yields the state value expected on the OAuth callback
type NonceSource interface {
	Current() string
}

// CodeExchanger turns an authorization code into an access token
type CodeExchanger interface {
	Authorize(ctx context.Context, code, redirectURL string) (*AccessToken, error)
}

// AuthHandler applies one settings page request to the token store:
// it clears the token, stores a freshly exchanged one, or does nothing.
type AuthHandler struct {
	authorizer CodeExchanger
	store      TokenStore
	tokenKey   string
	nonce      NonceSource
}

// NewAuthHandler creates an AuthHandler storing the token under tokenKey
func NewAuthHandler(authorizer CodeExchanger, store TokenStore, tokenKey string, nonce NonceSource) *AuthHandler {
	return &AuthHandler{
		authorizer: authorizer,
		store:      store,
		tokenKey:   tokenKey,
		nonce:      nonce,
	}
}

// Handle processes req. redirectURL is passed to the Authorizer as the
// redirect_uri of the exchange. Authorizer errors are returned unchanged.
func (h *AuthHandler) Handle(ctx context.Context, req AuthRequest, redirectURL string) error {
	if !req.IsLinking {
		if err := h.store.Delete(ctx, h.tokenKey); err != nil {
			return fmt.Errorf("failed to clear token: %w", err)
		}
		log.LogInfoWithFields("linkedin", "Unlinked LinkedIn account", map[string]any{
			"key": h.tokenKey,
		})
		return nil
	}

	// Plain page load, not a redirect back from LinkedIn
	if req.Code == nil && req.ErrorMessage == nil {
		return nil
	}

	if req.State == nil || subtle.ConstantTimeCompare([]byte(*req.State), []byte(h.nonce.Current())) != 1 {
		log.LogWarnWithFields("linkedin", "Rejected callback with mismatched state", map[string]any{
			"has_state": req.State != nil,
		})
		return ErrStateMismatch
	}

	if req.ErrorMessage != nil {
		log.LogWarnWithFields("linkedin", "LinkedIn returned an authorization error", map[string]any{
			"error_description": *req.ErrorMessage,
		})
		return &UpstreamError{Message: *req.ErrorMessage}
	}

	token, err := h.authorizer.Authorize(ctx, *req.Code, redirectURL)
	if err != nil {
		return err
	}

	if err := h.store.Set(ctx, h.tokenKey, token.Value, token.TTL()); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	log.LogInfoWithFields("linkedin", "Linked LinkedIn account", map[string]any{
		"key":        h.tokenKey,
		"expires_in": token.ExpiresIn,
	})
	return nil
}
