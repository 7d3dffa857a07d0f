package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file when one exists.
// Variables already set in the environment take precedence, so production
// secrets injected by the platform are never overridden by a stray file.
func LoadDotEnv() error {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			return godotenv.Load(path)
		}
	}
	return nil
}
