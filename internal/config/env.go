package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// parseEnvInt parses an integer from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString copies a non-empty environment variable into dest
func parseEnvString(key string, dest *string) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return // Use default
	}
	*dest = value
}
