package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// StoryloomYAMLConfig represents the complete storyloom.yaml file structure
type StoryloomYAMLConfig struct {
	Queue     *QueueConfig     `yaml:"queue"`
	Providers *ProvidersConfig `yaml:"providers"`
	Storage   *StorageConfig   `yaml:"storage"`
	Redis     *RedisConfig     `yaml:"redis"`
	Defaults  *Defaults        `yaml:"defaults"`
	HTTP      *HTTPConfig      `yaml:"http"`
	Retention *RetentionConfig `yaml:"retention"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load storyloom.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"queue", cfg.Queue.Name,
		"job_parallelism", cfg.Queue.JobParallelism,
		"scene_parallelism", cfg.Queue.SceneParallelism,
		"mock_ai", cfg.MockEnabled())

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	userCfg, err := loader.loadStoryloomYAML()
	if err != nil {
		return nil, NewLoadError("storyloom.yaml", err)
	}

	// Resolve each section: start with defaults, then merge user config on
	// top so unset fields keep their built-in values.
	queueCfg := DefaultQueueConfig()
	if userCfg.Queue != nil {
		if err := mergo.Merge(queueCfg, userCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	providersCfg, err := resolveProvidersConfig(userCfg.Providers)
	if err != nil {
		return nil, err
	}

	storageCfg := DefaultStorageConfig()
	if userCfg.Storage != nil {
		if err := mergo.Merge(storageCfg, userCfg.Storage, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge storage config: %w", err)
		}
	}

	redisCfg := DefaultRedisConfig()
	if userCfg.Redis != nil {
		if err := mergo.Merge(redisCfg, userCfg.Redis, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge redis config: %w", err)
		}
	}

	defaults := DefaultDefaults()
	if userCfg.Defaults != nil {
		if err := mergo.Merge(defaults, userCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}

	httpCfg := DefaultHTTPConfig()
	if userCfg.HTTP != nil {
		if err := mergo.Merge(httpCfg, userCfg.HTTP, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge http config: %w", err)
		}
	}

	retentionCfg := DefaultRetentionConfig()
	if userCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, userCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	return &Config{
		configDir: configDir,
		Defaults:  defaults,
		Queue:     queueCfg,
		Providers: providersCfg,
		Storage:   storageCfg,
		Redis:     redisCfg,
		HTTP:      httpCfg,
		Retention: retentionCfg,
	}, nil
}

// resolveProvidersConfig merges user provider settings over the built-in
// defaults, per provider so a partial override keeps sibling defaults.
func resolveProvidersConfig(user *ProvidersConfig) (*ProvidersConfig, error) {
	cfg := DefaultProvidersConfig()
	if user == nil {
		return cfg, nil
	}

	if user.Text != nil {
		if err := mergo.Merge(cfg.Text, user.Text, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge text provider config: %w", err)
		}
	}
	if user.Image != nil {
		if err := mergo.Merge(cfg.Image, user.Image, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge image provider config: %w", err)
		}
	}
	if user.Audio != nil {
		if err := mergo.Merge(cfg.Audio, user.Audio, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge audio provider config: %w", err)
		}
	}
	if user.Mock != nil {
		// Enabled is a plain bool the merge would treat as zero-value, so
		// copy the mock block wholesale.
		cfg.Mock = user.Mock
	}

	return cfg, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadStoryloomYAML() (*StoryloomYAMLConfig, error) {
	var config StoryloomYAMLConfig

	if err := l.loadYAML("storyloom.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}
