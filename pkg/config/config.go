package config

// Config is the umbrella configuration object for the whole service.
// This is the primary object returned by Initialize() and used throughout
// the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Request-level defaults
	Defaults *Defaults

	// Broker and worker pool configuration
	Queue *QueueConfig

	// Upstream AI providers (text, image, audio) and the mock switch
	Providers *ProvidersConfig

	// Blob storage for scene artifacts
	Storage *StorageConfig

	// Redis broker connection
	Redis *RedisConfig

	// Ingress listener
	HTTP *HTTPConfig

	// Data retention for terminal stories and dead-lettered jobs
	Retention *RetentionConfig
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// MockEnabled reports whether all providers are replaced by mocks.
func (c *Config) MockEnabled() bool {
	return c.Providers != nil && c.Providers.Mock != nil && c.Providers.Mock.Enabled
}
