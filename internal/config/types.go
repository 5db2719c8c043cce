package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the token store backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindSQLite    StorageKind = "sqlite"
	StorageKindFirestore StorageKind = "firestore"
)

const (
	DefaultAuthURL             = "https://www.linkedin.com/oauth/v2/authorization"
	DefaultTokenURL            = "https://www.linkedin.com/oauth/v2/accessToken"
	DefaultUnlinkKey           = "is_link"
	DefaultUnlinkValue         = "false"
	DefaultTokenKey            = "rai_auth_key"
	DefaultNonceTTL            = 24 * time.Hour
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultCleanupInterval     = 10 * time.Minute
	DefaultFirestoreDatabase   = "(default)"
	DefaultFirestoreCollection = "rest_api_import_tokens"
)

// AdminConfig protects the settings page with HTTP basic auth.
// The password is only kept as a bcrypt hash.
type AdminConfig struct {
	Username    string          `json:"username"`
	PasswordRaw json.RawMessage `json:"password,omitempty"`

	// Computed fields
	HashedPassword Secret `json:"-"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	BaseURL  string       `json:"baseURL"`
	Addr     string       `json:"addr"`
	BasePath string       `json:"basePath"`
	Admin    *AdminConfig `json:"admin,omitempty"`
}

// LinkedInConfig holds the OAuth client registration and the values
// used to build link/unlink URLs and validate callbacks.
//
// clientSecret and nonceSecret must be {"$env": "VAR"} references; a literal
// string is rejected at load time.
type LinkedInConfig struct {
	ClientID     string        `json:"clientId"`
	ClientSecret Secret        `json:"clientSecret"`
	AuthURL      string        `json:"authUrl"`
	TokenURL     string        `json:"tokenUrl"`
	Scopes       []string      `json:"scopes,omitempty"`
	UnlinkKey    string        `json:"unlinkKey"`
	UnlinkValue  string        `json:"unlinkValue"`
	NonceSecret  Secret        `json:"nonceSecret"`
	NonceTTL     time.Duration `json:"nonceTtl"`
	HTTPTimeout  time.Duration `json:"httpTimeout"`
}

// StorageConfig selects and configures the token store
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	TokenKey            string        `json:"tokenKey"`
	SQLitePath          string        `json:"sqlitePath,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	EncryptionKey       Secret        `json:"encryptionKey,omitempty"`
	CleanupInterval     time.Duration `json:"cleanupInterval"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version  string         `json:"version"`
	Server   ServerConfig   `json:"server"`
	LinkedIn LinkedInConfig `json:"linkedin"`
	Storage  StorageConfig  `json:"storage"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference resolved from the environment.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
