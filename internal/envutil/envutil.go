package envutil

import (
	"os"
	"strings"
)

// IsDev reports whether RAI_ENV selects development mode, where
// plain-http base URLs and short secrets are tolerated.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("RAI_ENV"))
	return env == "development" || env == "dev"
}
