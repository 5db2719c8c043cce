package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/dgellow/rest-api-import/internal/storage"
)

// TokenSource serves the stored access token to LinkedIn API callers.
// Every call reads the store, so an unlink takes effect immediately.
type TokenSource struct {
	store TokenStore
	key   string
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource creates a TokenSource reading key from store
func NewTokenSource(store TokenStore, key string) *TokenSource {
	return &TokenSource{store: store, key: key}
}

// Token implements oauth2.TokenSource. It returns ErrNotLinked when no
// unexpired token is stored. Callers holding a context should use
// TokenContext or Client instead.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext is Token with the store read bound to ctx
func (s *TokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	value, err := s.store.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return &oauth2.Token{AccessToken: value, TokenType: "Bearer"}, nil
}

// IsLinked reports whether a token is currently stored
func (s *TokenSource) IsLinked(ctx context.Context) (bool, error) {
	_, err := s.TokenContext(ctx)
	if errors.Is(err, ErrNotLinked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Client returns an HTTP client that authorizes requests with the stored
// token. Store reads made by the client are bound to ctx.
func (s *TokenSource) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, contextTokenSource{ctx: ctx, src: s})
}

type contextTokenSource struct {
	ctx context.Context
	src *TokenSource
}

func (c contextTokenSource) Token() (*oauth2.Token, error) {
	return c.src.TokenContext(c.ctx)
}
