package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles lists the dotenv files read from dir, lowest precedence first.
// The base .env never overrides the process environment; the later files do.
func envFiles(dir, environment string) []string {
	files := []string{filepath.Join(dir, ".env")}
	if environment != "" {
		files = append(files, filepath.Join(dir, ".env."+environment))
	}
	return append(files, filepath.Join(dir, ".env.local"))
}

// loadEnvFiles reads the dotenv files in CONFIG_DIR (default ".").
// Missing files are skipped. Lambda functions are configured through the
// function environment only.
func loadEnvFiles() error {
	if IsLambda() {
		return nil
	}

	dir := getEnv("CONFIG_DIR", ".")
	for i, file := range envFiles(dir, os.Getenv("ENVIRONMENT")) {
		load := godotenv.Overload
		if i == 0 {
			load = godotenv.Load
		}
		if err := load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}
