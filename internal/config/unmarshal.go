package config

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dgellow/rest-api-import/internal/log"
)

// UnmarshalJSON implements custom unmarshaling for AdminConfig
func (a *AdminConfig) UnmarshalJSON(data []byte) error {
	// Use type alias to avoid recursion
	type rawAdmin AdminConfig
	var raw rawAdmin

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = AdminConfig(raw)

	if a.Username == "" {
		return fmt.Errorf("username is required for admin auth")
	}
	if a.PasswordRaw == nil {
		return fmt.Errorf("password is required for admin auth")
	}

	password, err := ParseConfigValue(a.PasswordRaw)
	if err != nil {
		return fmt.Errorf("parsing password: %w", err)
	}

	log.LogTraceWithFields("config", "Hashing password for admin auth", map[string]any{
		"username": a.Username,
	})
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	a.HashedPassword = Secret(hashed)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BaseURL  json.RawMessage `json:"baseURL"`
		Addr     json.RawMessage `json:"addr"`
		BasePath string          `json:"basePath"`
		Admin    *AdminConfig    `json:"admin,omitempty"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.BaseURL != nil {
		value, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseURL: %w", err)
		}
		s.BaseURL = value
	}

	if raw.Addr != nil {
		value, err := ParseConfigValue(raw.Addr)
		if err != nil {
			return fmt.Errorf("parsing addr: %w", err)
		}
		s.Addr = value
	}

	s.BasePath = raw.BasePath
	if s.BasePath == "" {
		s.BasePath = "/"
	}
	s.Admin = raw.Admin

	return nil
}

// UnmarshalJSON implements custom unmarshaling for LinkedInConfig
func (l *LinkedInConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		AuthURL      string          `json:"authUrl"`
		TokenURL     string          `json:"tokenUrl"`
		Scopes       []string        `json:"scopes"`
		UnlinkKey    string          `json:"unlinkKey"`
		UnlinkValue  string          `json:"unlinkValue"`
		NonceSecret  json.RawMessage `json:"nonceSecret"`
		NonceTTL     string          `json:"nonceTtl"`
		HTTPTimeout  string          `json:"httpTimeout"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.ClientID != nil {
		value, err := ParseConfigValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		l.ClientID = value
	}

	if raw.ClientSecret != nil {
		value, err := ParseConfigValue(raw.ClientSecret)
		if err != nil {
			return fmt.Errorf("parsing clientSecret: %w", err)
		}
		l.ClientSecret = Secret(value)
	}

	if raw.NonceSecret != nil {
		value, err := ParseConfigValue(raw.NonceSecret)
		if err != nil {
			return fmt.Errorf("parsing nonceSecret: %w", err)
		}
		l.NonceSecret = Secret(value)
	}

	l.AuthURL = raw.AuthURL
	if l.AuthURL == "" {
		l.AuthURL = DefaultAuthURL
	}
	l.TokenURL = raw.TokenURL
	if l.TokenURL == "" {
		l.TokenURL = DefaultTokenURL
	}
	l.Scopes = raw.Scopes
	l.UnlinkKey = raw.UnlinkKey
	if l.UnlinkKey == "" {
		l.UnlinkKey = DefaultUnlinkKey
	}
	l.UnlinkValue = raw.UnlinkValue
	if l.UnlinkValue == "" {
		l.UnlinkValue = DefaultUnlinkValue
	}

	var err error
	if l.NonceTTL, err = parseDuration("nonceTtl", raw.NonceTTL, DefaultNonceTTL); err != nil {
		return err
	}
	if l.HTTPTimeout, err = parseDuration("httpTimeout", raw.HTTPTimeout, DefaultHTTPTimeout); err != nil {
		return err
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind                StorageKind     `json:"kind"`
		TokenKey            string          `json:"tokenKey"`
		SQLitePath          string          `json:"sqlitePath"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		EncryptionKey       json.RawMessage `json:"encryptionKey"`
		CleanupInterval     string          `json:"cleanupInterval"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	if s.Kind == "" {
		s.Kind = StorageKindMemory
	}
	s.TokenKey = raw.TokenKey
	if s.TokenKey == "" {
		s.TokenKey = DefaultTokenKey
	}
	s.SQLitePath = raw.SQLitePath

	if raw.GCPProject != nil {
		value, err := ParseConfigValue(raw.GCPProject)
		if err != nil {
			return fmt.Errorf("parsing gcpProject: %w", err)
		}
		s.GCPProject = value
	}

	if raw.EncryptionKey != nil {
		value, err := ParseConfigValue(raw.EncryptionKey)
		if err != nil {
			return fmt.Errorf("parsing encryptionKey: %w", err)
		}
		s.EncryptionKey = Secret(value)
	}

	// Apply defaults for Firestore configuration
	if s.Kind == StorageKindFirestore {
		s.FirestoreDatabase = raw.FirestoreDatabase
		if s.FirestoreDatabase == "" {
			s.FirestoreDatabase = DefaultFirestoreDatabase
		}
		s.FirestoreCollection = raw.FirestoreCollection
		if s.FirestoreCollection == "" {
			s.FirestoreCollection = DefaultFirestoreCollection
		}
	}

	var err error
	if s.CleanupInterval, err = parseDuration("cleanupInterval", raw.CleanupInterval, DefaultCleanupInterval); err != nil {
		return err
	}

	return nil
}
