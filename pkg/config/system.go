package config

// StorageConfig holds blob storage settings: a Supabase-storage-compatible
// object endpoint plus the two artifact buckets.
type StorageConfig struct {
	// Endpoint is the storage API base, e.g. https://xyz.supabase.co/storage/v1
	Endpoint string `yaml:"endpoint"`

	// Environment variable name for the service key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	BucketImages string `yaml:"bucket_images"`
	BucketAudio  string `yaml:"bucket_audio"`
}

// DefaultStorageConfig returns the built-in storage defaults.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		APIKeyEnv:    "SUPABASE_SERVICE_KEY",
		BucketImages: "story-images",
		BucketAudio:  "story-audio",
	}
}

// RedisConfig holds broker connection settings.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	DB          int    `yaml:"db,omitempty"`
}

// DefaultRedisConfig returns the built-in Redis defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:        "localhost:6379",
		PasswordEnv: "REDIS_PASSWORD",
	}
}

// HTTPConfig holds the ingress listener settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// DefaultHTTPConfig returns the built-in HTTP defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{Port: 8080}
}
