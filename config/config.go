package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and dedup store configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, worker, and pipeline configuration
type AppConfig struct {
	// IsDev controls development mode behavior (relaxed guardrails, debug logging).
	IsDev bool `env:"DEV" envDefault:"false"`

	// CredentialsEncryptionKey decrypts tenant backend credentials at rest.
	// Required for production, optional for development.
	CredentialsEncryptionKey string `env:"CREDENTIALS_ENCRYPTION_KEY"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services.
	// Valid values: http, worker, reaper
	Services string `env:"SERVICES" envDefault:"http"`

	// Worker pipeline configuration
	Worker      WorkerConfig
	Gatherer    GathererConfig
	Synthesizer SynthesizerConfig
	Updater     UpdaterConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Worker.Sanitize()
	c.Gatherer.Sanitize()
	c.Synthesizer.Sanitize()
	c.Updater.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsWorkerEnabled returns true if the enhancement worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}
