package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads environment variables from dotenv files if present.
// Files are tried in order and existing environment variables always win,
// so a real deployment environment overrides anything in the files.
//
//	.env.local  developer overrides, never committed
//	.env        shared defaults
func LoadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			slog.Warn("Failed to load env file", "file", file, "error", err)
			continue
		}
		slog.Debug("Loaded env file", "file", file)
	}
}
