package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes validates raw config JSON without resolving env vars
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", versionPrefix)
	} else if !strings.HasPrefix(version, versionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, versionPrefix, versionPrefix)
	}

	validateServerStructure(rawConfig, result)
	validateLinkedInStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}

	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://wp.example.com\"")
	}
	if _, ok := server["addr"]; !ok {
		result.addError("server.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
	if basePath, ok := server["basePath"].(string); ok && !strings.HasPrefix(basePath, "/") {
		result.addError("server.basePath", "basePath must start with / (got '%s')", basePath)
	}

	admin, ok := server["admin"].(map[string]any)
	if !ok {
		result.addWarning("server.admin", "admin is not configured - the settings page will be reachable without authentication")
		return
	}
	if _, ok := admin["username"].(string); !ok {
		result.addError("server.admin.username", "username is required for admin auth")
	}
	if password, ok := admin["password"]; ok {
		validateEnvVarReference(password, "password", "server.admin.password", result)
	} else {
		result.addError("server.admin.password", "password is required for admin auth")
	}
}

func validateLinkedInStructure(rawConfig map[string]any, result *ValidationResult) {
	linkedin, ok := rawConfig["linkedin"].(map[string]any)
	if !ok {
		result.addError("linkedin", "linkedin field is required and must be an object")
		return
	}

	if _, ok := linkedin["clientId"]; !ok {
		result.addError("linkedin.clientId", "clientId is required. Find it in the LinkedIn developer portal under Auth")
	}
	for _, name := range []string{"clientSecret", "nonceSecret"} {
		path := "linkedin." + name
		if value, ok := linkedin[name]; ok {
			validateEnvVarReference(value, name, path, result)
		} else {
			result.addError(path, "%s is required", name)
		}
	}

	if scopes, ok := linkedin["scopes"]; ok {
		if list, ok := scopes.([]any); !ok {
			result.addError("linkedin.scopes", "scopes must be an array")
		} else if len(list) == 0 {
			result.addWarning("linkedin.scopes", "scopes is empty - LinkedIn will grant the application defaults")
		}
	}

	for _, name := range []string{"nonceTtl", "httpTimeout"} {
		validateDuration(linkedin, name, "linkedin."+name, result)
	}

	if unlinkValue, ok := linkedin["unlinkValue"].(string); ok && unlinkValue == "" {
		result.addError("linkedin.unlinkValue", "unlinkValue cannot be empty")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, present := rawConfig["storage"]
	if !present {
		return
	}
	storage, ok := raw.(map[string]any)
	if !ok {
		result.addError("storage", "storage must be an object")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
		result.addWarning("storage.kind", "memory storage loses the linked token on restart")
	case StorageKindSQLite:
		if _, ok := storage["sqlitePath"].(string); !ok {
			result.addError("storage.sqlitePath", "sqlitePath is required when using sqlite storage")
		}
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "invalid storage kind '%s' - must be 'memory', 'sqlite' or 'firestore'", kind)
	}

	if key, ok := storage["encryptionKey"]; ok {
		validateEnvVarReference(key, "encryptionKey", "storage.encryptionKey", result)
	} else if StorageKind(kind) == StorageKindSQLite || StorageKind(kind) == StorageKindFirestore {
		result.addError("storage.encryptionKey", "encryptionKey is required when using %s storage", kind)
	}

	validateDuration(storage, "cleanupInterval", "storage.cleanupInterval", result)
}

func validateDuration(section map[string]any, name, path string, result *ValidationResult) {
	raw, ok := section[name]
	if !ok {
		return
	}
	s, ok := raw.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"30s\"", name)
		return
	}
	if _, err := time.ParseDuration(s); err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			result.addError(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1])
			return
		}
		result.addError(path, "%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName)
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			result.addError(path, "%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName)
		}
	default:
		result.addError(path, "%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value)
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
