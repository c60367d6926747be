package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	baseURLVar     = "BASE_URL"
	frontendURLVar = "FRONTEND_URL"
	databaseVar    = "DATABASE_PATH"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "GHL OAuth Service")
}

// GetBaseURL returns the public base URL of this service (e.g.
// "https://dir.engageautomations.com"). It is used to build the OAuth
// redirect URI and the links on the install guide page.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

// GetFrontendURL is where a completed installation is redirected to, with
// the installation id appended. Empty means serve a plain success page.
func (EnvVars) GetFrontendURL() string {
	return GetEnv(frontendURLVar, "")
}

func (EnvVars) GetDatabasePath() string {
	return GetEnv(databaseVar, "./oauth_service.db")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
