package util

import (
	"os"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already set in the process win.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

// GetEnv returns the value of key, or "" when unset.
func GetEnv(key string) string {
	return os.Getenv(key)
}

func GetEnvString(key string, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvAs parses key with parse. Unset keys and unparseable values yield
// defaultValue; the latter are logged since they usually are typos.
func getEnvAs[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		logger.Warn("Ignoring invalid environment value", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return parsed
}

// GetEnvInt reads a whole number. Values like "10.0" are accepted.
func GetEnvInt(key string, defaultValue int) int {
	return getEnvAs(key, defaultValue, func(s string) (int, error) {
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		return int(f), err
	})
}

// GetEnvFloat reads a floating point value such as a similarity threshold.
func GetEnvFloat(key string, defaultValue float64) float64 {
	return getEnvAs(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvBool accepts the spellings of strconv.ParseBool.
func GetEnvBool(key string, defaultValue bool) bool {
	return getEnvAs(key, defaultValue, strconv.ParseBool)
}

// GetEnvDuration reads a Go duration string like "30s".
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return getEnvAs(key, defaultValue, time.ParseDuration)
}
