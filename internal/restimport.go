package internal

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgellow/rest-api-import/internal/config"
	"github.com/dgellow/rest-api-import/internal/crypto"
	"github.com/dgellow/rest-api-import/internal/linkedin"
	"github.com/dgellow/rest-api-import/internal/log"
	"github.com/dgellow/rest-api-import/internal/server"
	"github.com/dgellow/rest-api-import/internal/storage"
	"github.com/dgellow/rest-api-import/internal/urlutil"
)

const (
	linkNonceAction = "linkedin-auth"
	csrfNonceAction = "settings-form"
	csrfNonceTick   = time.Hour
	adminRealm      = "rest-api-import"
	shutdownTimeout = 30 * time.Second
)

// RestImport is the LinkedIn link/unlink service with all collaborators built
type RestImport struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	storage    storage.Storage
	cleanup    *storage.CleanupManager
	tokens     *linkedin.TokenSource
}

// NewRestImport builds every collaborator from cfg. Nothing is started.
func NewRestImport(ctx context.Context, cfg config.Config) (*RestImport, error) {
	log.LogInfoWithFields("restimport", "Building application", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"storage": string(cfg.Storage.Kind),
	})

	settingsURL, err := urlutil.JoinPath(cfg.Server.BaseURL, cfg.Server.BasePath, "settings")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	store, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	linkNonce, err := crypto.NewNonceGenerator([]byte(cfg.LinkedIn.NonceSecret), linkNonceAction, cfg.LinkedIn.NonceTTL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create link nonce: %w", err)
	}
	csrfNonce, err := crypto.NewNonceGenerator([]byte(cfg.LinkedIn.NonceSecret), csrfNonceAction, csrfNonceTick)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create CSRF nonce: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.LinkedIn.HTTPTimeout}
	authorizer := linkedin.NewAuthorizer(httpClient, cfg.LinkedIn.TokenURL, cfg.LinkedIn.ClientID, string(cfg.LinkedIn.ClientSecret),
		linkedin.WithExchangeTimeout(cfg.LinkedIn.HTTPTimeout))
	authHandler := linkedin.NewAuthHandler(authorizer, store, cfg.Storage.TokenKey, linkNonce)

	urls, err := linkedin.NewLinkURLs(linkedin.LinkURLsConfig{
		ClientID:    cfg.LinkedIn.ClientID,
		AuthURL:     cfg.LinkedIn.AuthURL,
		TokenURL:    cfg.LinkedIn.TokenURL,
		Scopes:      cfg.LinkedIn.Scopes,
		SettingsURL: settingsURL,
		UnlinkKey:   cfg.LinkedIn.UnlinkKey,
		UnlinkValue: cfg.LinkedIn.UnlinkValue,
	}, linkNonce)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build link URLs: %w", err)
	}

	tokens := linkedin.NewTokenSource(store, cfg.Storage.TokenKey)

	settings := server.NewSettingsHandlers(authHandler, tokens, urls, csrfNonce, server.SettingsConfig{
		LoggingURL:  route(cfg.Server.BasePath, "/settings/logging"),
		UnlinkKey:   cfg.LinkedIn.UnlinkKey,
		UnlinkValue: cfg.LinkedIn.UnlinkValue,
	})

	handler := buildHTTPHandler(cfg, settings, tokens)

	return &RestImport{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr, settingsURL),
		storage:    store,
		cleanup:    storage.NewCleanupManager(store, cfg.Storage.CleanupInterval),
		tokens:     tokens,
	}, nil
}

// Handler returns the routed HTTP handler
func (a *RestImport) Handler() http.Handler {
	return a.handler
}

// TokenSource returns the source import features use to call LinkedIn
func (a *RestImport) TokenSource() *linkedin.TokenSource {
	return a.tokens
}

// Run serves HTTP and purges expired entries until ctx is cancelled, a
// termination signal arrives, or either of them fails. Storage is closed
// before returning.
func (a *RestImport) Run(ctx context.Context) error {
	log.LogInfoWithFields("restimport", "Starting application", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.cleanup.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("restimport", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()

	if closeErr := a.storage.Close(); closeErr != nil {
		log.LogErrorWithFields("restimport", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}

	if err != nil {
		log.LogErrorWithFields("restimport", "Application stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("restimport", "Application shutdown complete", nil)
	return nil
}

// setupStorage creates the token store selected by cfg.Kind
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Kind {
	case config.StorageKindSQLite:
		log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
			"path": cfg.SQLitePath,
		})
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		sqliteStorage, err := storage.NewSQLiteStorage(cfg.SQLitePath, encryptor)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		return sqliteStorage, nil

	case config.StorageKindFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		firestoreStorage, err := storage.NewFirestoreStorage(
			ctx,
			cfg.GCPProject,
			cfg.FirestoreDatabase,
			cfg.FirestoreCollection,
			encryptor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil

	case config.StorageKindMemory, "":
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStorage(), nil

	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

func route(basePath, path string) string {
	return strings.TrimSuffix(basePath, "/") + path
}

func buildHTTPHandler(cfg config.Config, settings *server.SettingsHandlers, status server.LinkStatus) http.Handler {
	mux := http.NewServeMux()
	basePath := cfg.Server.BasePath

	settingsMiddleware := []server.MiddlewareFunc{
		server.NewAdminAuthMiddleware(cfg.Server.Admin, adminRealm),
		server.NewLoggerMiddleware("settings"),
		server.NewRecoverMiddleware("settings"),
	}

	mux.Handle("/health", server.NewHealthHandler(status))
	mux.Handle(route(basePath, "/settings"), server.ChainMiddleware(http.HandlerFunc(settings.SettingsPageHandler), settingsMiddleware...))
	mux.Handle(route(basePath, "/settings/status"), server.ChainMiddleware(http.HandlerFunc(settings.StatusHandler), settingsMiddleware...))
	mux.Handle(route(basePath, "/settings/logging"), server.ChainMiddleware(http.HandlerFunc(settings.LoggingHandler), settingsMiddleware...))

	log.LogInfoWithFields("server", "Routes registered", map[string]any{
		"basePath": basePath,
		"admin":    cfg.Server.Admin != nil,
	})
	return mux
}
