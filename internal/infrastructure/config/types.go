package config

import (
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	LogFormat   string
	Version     string

	// Adapter selection
	Adapters AdapterConfig

	// Component configurations
	HTTP    HTTPConfig
	Lambda  LambdaConfig
	Storage StorageConfig
	Auth    AuthConfig
	Retry   RetryConfig
}

// AdapterConfig specifies which implementations to use
type AdapterConfig struct {
	Runtime string // "http", "lambda"
	Storage string // "s3", "filesystem", "memory"
	Logger  string // "stdout"
	Metrics string // "prometheus", "noop"
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr          string
	Timeout       time.Duration
	MaxUploadSize int64
}

// LambdaConfig holds Lambda-specific configuration
type LambdaConfig struct {
	Timeout time.Duration
}

type StorageConfig struct {
	// Bucket name for s3, base directory for filesystem
	BucketOrPath string
	MaxRetries   int
	Timeout      time.Duration

	S3    S3Config
	Cargo CargoConfig
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // For MinIO or S3-compatible services
	ForcePathStyle  bool
}

// CargoConfig points the S3 client at a Cargo signing service. When Endpoint
// is set, every S3 request is re-signed by Cargo after the SDK signs it.
type CargoConfig struct {
	Endpoint string // GraphQL endpoint
	Token    string // bearer JWT presented to Cargo
	Timeout  time.Duration
}

// RetryConfig is the backoff policy for command requests that fail with a
// retryable error
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// AuthConfig names the headers the upstream auth gateway sets on every
// authenticated request.
type AuthConfig struct {
	UserHeader  string
	EmailHeader string
	NameHeader  string
	RoleHeader  string
}
