package config

import (
	"fmt"
	"strings"
)

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	if err := c.Adapters.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	switch c.Adapters.Runtime {
	case "http":
		if err := c.HTTP.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	case "lambda":
		if err := c.Lambda.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if err := c.Storage.Validate(c.Adapters); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.Auth.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.Retry.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Validate validates adapter configuration
func (a *AdapterConfig) Validate() error {
	validRuntimes := map[string]bool{"http": true, "lambda": true}
	if !validRuntimes[a.Runtime] {
		return fmt.Errorf("invalid runtime adapter: %s (must be http or lambda)", a.Runtime)
	}

	validStorage := map[string]bool{"s3": true, "filesystem": true, "memory": true}
	if !validStorage[a.Storage] {
		return fmt.Errorf("invalid storage adapter: %s (must be s3, filesystem or memory)", a.Storage)
	}

	if a.Logger != "stdout" {
		return fmt.Errorf("invalid logger adapter: %s (must be stdout)", a.Logger)
	}

	validMetrics := map[string]bool{"prometheus": true, "noop": true}
	if !validMetrics[a.Metrics] {
		return fmt.Errorf("invalid metrics adapter: %s (must be prometheus or noop)", a.Metrics)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Addr == "" {
		return fmt.Errorf("HTTP_ADDR is required for HTTP adapter")
	}
	if h.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if h.MaxUploadSize <= 0 {
		return fmt.Errorf("HTTP_MAX_UPLOAD_SIZE must be positive")
	}
	return nil
}

// Validate validates Lambda configuration
func (l *LambdaConfig) Validate() error {
	if l.Timeout <= 0 {
		return fmt.Errorf("LAMBDA_TIMEOUT must be positive")
	}
	return nil
}

// Validate validates Storage configuration
func (s *StorageConfig) Validate(adapters AdapterConfig) error {
	if s.MaxRetries < 0 {
		return fmt.Errorf("STORAGE_MAX_RETRIES cannot be negative")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive")
	}

	switch adapters.Storage {
	case "s3":
		if s.BucketOrPath == "" {
			return fmt.Errorf("STORAGE_BUCKET_OR_PATH (bucket) is required for S3 storage")
		}
		if s.S3.Region == "" {
			return fmt.Errorf("S3_REGION is required for S3 storage")
		}
		if (s.S3.AccessKeyID == "") != (s.S3.SecretAccessKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
		if s.Cargo.Endpoint != "" && s.Cargo.Token == "" {
			return fmt.Errorf("CARGO_TOKEN is required when CARGO_ENDPOINT is set")
		}
	case "filesystem":
		if s.BucketOrPath == "" {
			return fmt.Errorf("STORAGE_BUCKET_OR_PATH (path) is required for filesystem storage")
		}
	}

	return nil
}

// Validate validates auth gateway header configuration
func (a *AuthConfig) Validate() error {
	if a.UserHeader == "" {
		return fmt.Errorf("AUTH_USER_HEADER is required")
	}
	return nil
}

// Validate validates the retry policy
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts < 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS cannot be negative")
	}
	if r.MaxAttempts > 0 && r.BackoffMultiplier < 1 {
		return fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be at least 1")
	}
	return nil
}
