// Package config loads the process environment from an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnv reads files (default ".env") into the environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("env file not found", "file", f)
				continue
			}
			return err
		}
	}
	return nil
}
