package config

// parse reads configuration from environment variables
func parse() (*Config, error) {
	cfg := &Config{
		// Core
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", "kidney-web"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", ""),
		Version:     getEnv("SERVICE_VERSION", "1.0.0"),

		// Adapter selection
		Adapters: AdapterConfig{
			Runtime: getEnv("ADAPTER_RUNTIME", ""),
			Storage: getEnv("ADAPTER_STORAGE", ""),
			Logger:  getEnv("ADAPTER_LOGGER", ""),
			Metrics: getEnv("ADAPTER_METRICS", ""),
		},

		// HTTP Configuration
		HTTP: HTTPConfig{
			Addr:          getEnv("HTTP_ADDR", ":8080"),
			Timeout:       getDuration("HTTP_TIMEOUT", "60s"),
			MaxUploadSize: getInt64("HTTP_MAX_UPLOAD_SIZE", 100*1024*1024),
		},

		// Lambda Configuration
		Lambda: LambdaConfig{
			Timeout: getDuration("LAMBDA_TIMEOUT", "30s"),
		},

		// Storage Configuration
		Storage: StorageConfig{
			BucketOrPath: getEnv("STORAGE_BUCKET_OR_PATH", getEnv("S3_BUCKET_NAME", "")),
			MaxRetries:   getInt("STORAGE_MAX_RETRIES", 3),
			Timeout:      getDuration("STORAGE_TIMEOUT", "30s"),
			S3: S3Config{
				Region:          getEnv("S3_REGION", "us-east-1"),
				AccessKeyID:     getEnv("S3_ACCESS_KEY", ""),
				SecretAccessKey: getEnv("S3_SECRET_KEY", ""),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				ForcePathStyle:  getBool("S3_FORCE_PATH_STYLE", false),
			},
			Cargo: CargoConfig{
				Endpoint: getEnv("CARGO_ENDPOINT", ""),
				Token:    getEnv("CARGO_TOKEN", ""),
				Timeout:  getDuration("CARGO_TIMEOUT", "10s"),
			},
		},

		// Retry Configuration
		Retry: RetryConfig{
			MaxAttempts:       getInt("RETRY_MAX_ATTEMPTS", 2),
			InitialBackoff:    getDuration("RETRY_INITIAL_BACKOFF", "100ms"),
			MaxBackoff:        getDuration("RETRY_MAX_BACKOFF", "2s"),
			BackoffMultiplier: getFloat64("RETRY_BACKOFF_MULTIPLIER", 2.0),
		},

		// Auth gateway headers
		Auth: AuthConfig{
			UserHeader:  getEnv("AUTH_USER_HEADER", "X-Auth-User-Id"),
			EmailHeader: getEnv("AUTH_EMAIL_HEADER", "X-Auth-User-Email"),
			NameHeader:  getEnv("AUTH_NAME_HEADER", "X-Auth-User-Name"),
			RoleHeader:  getEnv("AUTH_ROLE_HEADER", "X-Auth-User-Role"),
		},
	}

	return cfg, nil
}
