package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/rest-api-import/internal"
	"github.com/dgellow/rest-api-import/internal/config"
	"github.com/dgellow/rest-api-import/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v0.0.1-DEV_EDITION_EXPECT_CHANGES",
		"server": map[string]any{
			"baseURL":  "https://wp.yourcompany.com",
			"addr":     ":8080",
			"basePath": "/",
			"admin": map[string]any{
				"username": "admin",
				"password": map[string]string{"$env": "ADMIN_PASSWORD"},
			},
		},
		"linkedin": map[string]any{
			"clientId":     map[string]string{"$env": "LINKEDIN_CLIENT_ID"},
			"clientSecret": map[string]string{"$env": "LINKEDIN_CLIENT_SECRET"},
			"authUrl":      config.DefaultAuthURL,
			"tokenUrl":     config.DefaultTokenURL,
			"scopes":       []string{"r_liteprofile"},
			"unlinkKey":    config.DefaultUnlinkKey,
			"unlinkValue":  config.DefaultUnlinkValue,
			"nonceSecret":  map[string]string{"$env": "NONCE_SECRET"},
			"nonceTtl":     "24h",
			"httpTimeout":  "30s",
		},
		"storage": map[string]any{
			"kind":            "sqlite",
			"tokenKey":        config.DefaultTokenKey,
			"sqlitePath":      "rest-api-import.db",
			"encryptionKey":   map[string]string{"$env": "ENCRYPTION_KEY"},
			"cleanupInterval": "10m",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func printIssues(title string, issues []config.ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		if issue.Path != "" {
			fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Printf("  - %s\n", issue.Message)
		}
	}
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Println()
	switch {
	case len(result.Errors) > 0:
		fmt.Println("Result: FAIL")
	case len(result.Warnings) > 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: PASS")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting rest-api-import", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	app, err := internal.NewRestImport(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Application error: %v", err)
		os.Exit(1)
	}
}
