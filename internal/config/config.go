package config

type Config interface {
	EnvConfig
	OAuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetFrontendURL() string
	GetDatabasePath() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Security
}

func New() Config {
	return mainConfig{}
}
