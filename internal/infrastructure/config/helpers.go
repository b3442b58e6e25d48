package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// lookup parses the named variable, falling back to def when it is unset or
// does not parse.
func lookup[T any](key string, def T, parseValue func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parseValue(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, defaultValue string) string {
	return lookup(key, defaultValue, func(s string) (string, error) { return s, nil })
}

func getInt(key string, defaultValue int) int {
	return lookup(key, defaultValue, strconv.Atoi)
}

func getInt64(key string, defaultValue int64) int64 {
	return lookup(key, defaultValue, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func getFloat64(key string, defaultValue float64) float64 {
	return lookup(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func getBool(key string, defaultValue bool) bool {
	return lookup(key, defaultValue, strconv.ParseBool)
}

// getDuration takes its default as a string so defaults read like env values.
// An unparseable default yields 30s.
func getDuration(key, defaultValue string) time.Duration {
	def, err := time.ParseDuration(defaultValue)
	if err != nil {
		def = 30 * time.Second
	}
	return lookup(key, def, time.ParseDuration)
}

func (c *Config) environmentIs(names ...string) bool {
	return slices.Contains(names, strings.ToLower(c.Environment))
}

// IsLocal reports a developer machine
func (c *Config) IsLocal() bool {
	return c.environmentIs("local", "development", "dev")
}

func (c *Config) IsProduction() bool {
	return c.environmentIs("production", "prod")
}

func (c *Config) IsTest() bool {
	return c.environmentIs("test", "testing")
}

// IsLambda detects the AWS Lambda execution environment
func IsLambda() bool {
	for _, key := range []string{"AWS_LAMBDA_FUNCTION_NAME", "LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}
