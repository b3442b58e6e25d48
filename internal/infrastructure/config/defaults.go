package config

import (
	"fmt"
	"time"
)

// DefaultConfig returns a complete configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		ServiceName: "kidney-web",
		LogLevel:    "info",
		LogFormat:   "console",
		Version:     "1.0.0",

		Adapters: DefaultAdapterConfig(),
		HTTP:     DefaultHTTPConfig(),
		Lambda:   DefaultLambdaConfig(),
		Storage:  DefaultStorageConfig(),
		Auth:     DefaultAuthConfig(),
		Retry:    DefaultRetryConfig(),
	}
}

// DefaultAdapterConfig returns default adapter selection
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Runtime: "http",
		Storage: "filesystem",
		Logger:  "stdout",
		Metrics: "prometheus",
	}
}

// DefaultHTTPConfig returns sensible defaults for HTTP configuration
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:          ":8080",
		Timeout:       60 * time.Second,
		MaxUploadSize: 100 * 1024 * 1024, // 100MB
	}
}

// DefaultLambdaConfig returns sensible defaults for Lambda configuration
func DefaultLambdaConfig() LambdaConfig {
	return LambdaConfig{
		Timeout: 30 * time.Second,
	}
}

// DefaultStorageConfig returns sensible defaults for storage configuration
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		BucketOrPath: "/tmp/storage",
		MaxRetries:   3,
		Timeout:      30 * time.Second,
		S3:           DefaultS3Config(),
		Cargo:        CargoConfig{Timeout: 10 * time.Second},
	}
}

// DefaultS3Config returns sensible defaults for S3 configuration
func DefaultS3Config() S3Config {
	return S3Config{
		// Region must be set for the SDK even when the backend is MinIO
		Region: "us-east-1",
	}
}

// DefaultRetryConfig returns the retry policy for command requests
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultAuthConfig returns the header names set by the auth gateway
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		UserHeader:  "X-Auth-User-Id",
		EmailHeader: "X-Auth-User-Email",
		NameHeader:  "X-Auth-User-Name",
		RoleHeader:  "X-Auth-User-Role",
	}
}

// applyDefaults applies environment-specific defaults
func applyDefaults(cfg *Config) {
	if cfg.IsLocal() || cfg.IsTest() {
		if cfg.Adapters.Runtime == "" {
			cfg.Adapters.Runtime = "http"
		}
		if cfg.Adapters.Storage == "" {
			if cfg.IsTest() {
				cfg.Adapters.Storage = "memory"
			} else {
				cfg.Adapters.Storage = "filesystem"
			}
		}
	} else if cfg.IsProduction() {
		if cfg.Adapters.Runtime == "" {
			cfg.Adapters.Runtime = "http"
		}
		if cfg.Adapters.Storage == "" {
			cfg.Adapters.Storage = "s3"
		}
		if cfg.LogFormat == "" {
			cfg.LogFormat = "json"
		}
	}

	if cfg.Adapters.Runtime == "" {
		cfg.Adapters.Runtime = "http"
	}
	if cfg.Adapters.Storage == "" {
		cfg.Adapters.Storage = "s3"
	}
	if cfg.Adapters.Logger == "" {
		cfg.Adapters.Logger = "stdout"
	}
	if cfg.Adapters.Metrics == "" {
		cfg.Adapters.Metrics = "prometheus"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	// Set bucket/path default if still empty
	if cfg.Storage.BucketOrPath == "" {
		switch cfg.Adapters.Storage {
		case "s3":
			cfg.Storage.BucketOrPath = fmt.Sprintf("%s-storage", cfg.ServiceName)
		case "filesystem":
			cfg.Storage.BucketOrPath = "/tmp/storage"
		}
	}

	// MinIO only serves path-style requests
	if cfg.Storage.S3.Endpoint != "" {
		cfg.Storage.S3.ForcePathStyle = true
	}
}
