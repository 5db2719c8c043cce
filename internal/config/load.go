package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/rest-api-import/internal/envutil"
	"github.com/dgellow/rest-api-import/internal/log"
)

const versionPrefix = "v0.0.1-DEV_EDITION"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse processes raw config JSON the same way Load does
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, versionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	// storage is optional, its UnmarshalJSON only runs when present
	if _, ok := rawConfig["storage"]; !ok {
		config.Storage = StorageConfig{
			Kind:            StorageKindMemory,
			TokenKey:        DefaultTokenKey,
			CleanupInterval: DefaultCleanupInterval,
		}
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields lists the fields that must never hold a literal value
var secretFields = []struct {
	section string
	name    string
}{
	{"linkedin", "clientSecret"},
	{"linkedin", "nonceSecret"},
	{"storage", "encryptionKey"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, secret := range secretFields {
		section, ok := rawConfig[secret.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[secret.name]
		if !exists {
			continue
		}
		if err := requireEnvRef(secret.section+"."+secret.name, value); err != nil {
			return err
		}
	}

	if server, ok := rawConfig["server"].(map[string]any); ok {
		if admin, ok := server["admin"].(map[string]any); ok {
			if password, exists := admin["password"]; exists {
				if err := requireEnvRef("server.admin.password", password); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func requireEnvRef(name string, value any) error {
	if _, isString := value.(string); isString {
		return fmt.Errorf("%s must use environment variable reference for security", name)
	}
	refMap, isMap := value.(map[string]any)
	if !isMap {
		return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
	}
	if _, hasEnv := refMap["$env"]; !hasEnv {
		return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	baseURL, err := url.Parse(config.Server.BaseURL)
	if err != nil || baseURL.Host == "" {
		return fmt.Errorf("server.baseURL must be an absolute URL")
	}
	if baseURL.Scheme != "https" {
		if !envutil.IsDev() {
			return fmt.Errorf("server.baseURL must use https (set RAI_ENV=dev to allow %s)", baseURL.Scheme)
		}
		log.LogWarn("server.baseURL uses %s, only acceptable in development", baseURL.Scheme)
	}
	if !strings.HasPrefix(config.Server.BasePath, "/") {
		return fmt.Errorf("server.basePath must start with /")
	}

	if err := validateLinkedInConfig(&config.LinkedIn); err != nil {
		return fmt.Errorf("linkedin config: %w", err)
	}
	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if config.Server.Admin == nil {
		log.LogWarn("server.admin is not configured - the settings page is unauthenticated")
	}

	return nil
}

func validateLinkedInConfig(l *LinkedInConfig) error {
	if l.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if l.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if len(l.NonceSecret) < 32 {
		return fmt.Errorf("nonceSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(l.NonceSecret))
	}
	for name, raw := range map[string]string{"authUrl": l.AuthURL, "tokenUrl": l.TokenURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", name)
		}
	}
	if l.NonceTTL <= 0 {
		return fmt.Errorf("nonceTtl must be positive")
	}
	if l.HTTPTimeout <= 0 {
		return fmt.Errorf("httpTimeout must be positive")
	}
	return nil
}

func validateStorageConfig(s *StorageConfig) error {
	if s.TokenKey == "" {
		return fmt.Errorf("tokenKey is required")
	}
	if s.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}

	switch s.Kind {
	case StorageKindMemory:
		return nil
	case StorageKindSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlitePath is required when using sqlite storage")
		}
	case StorageKindFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s (must be memory, sqlite or firestore)", s.Kind)
	}

	if len(s.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(s.EncryptionKey))
	}
	return nil
}
