package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/settings.html
var settingsPageTemplateHTML string

var settingsPageTemplate = template.Must(template.New("settings").Parse(settingsPageTemplateHTML))

// SettingsPageData represents the data for the LinkedIn settings page
type SettingsPageData struct {
	ErrorMessage string
	IsAuthorized bool // callback exchanged a code successfully
	IsLinking    bool
	IsLinked     bool
	LinkURL      string
	UnlinkURL    string
	LoggingURL   string
	LogLevel     string
	LogLevels    []string
	CSRFToken    string
}
