package config

import "time"

type SecurityConfig interface {
	GetSessionSecret() string
	GetSessionExpiry() time.Duration
	GetSecureCookies() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "dev-session-secret-change-me")
}

// GetSessionExpiry matches the embedded CRM tab lifetime; sessions live a
// week so a pinned tab survives without re-entering through the marketplace.
func (Security) GetSessionExpiry() time.Duration {
	return 7 * 24 * time.Hour
}

func (s Security) GetSecureCookies() bool {
	return EnvVars{}.GetEnv() != "DEV"
}
