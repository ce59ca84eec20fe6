package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

// DefaultRepository is the analysis target when GITHUB_REPO is unset.
const DefaultRepository = "NiloticNetwork/NiloticNetworkBlockchain"

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// Config holds everything the pipeline needs from its environment.
// Secrets are only held in memory; nothing here is ever persisted.
type Config struct {
	// Repository is the analysis target in "owner/name" form
	Repository string

	// APIURL is the REST API base URL (override for GitHub Enterprise or tests)
	APIURL string

	// App holds the installation (GitHub App) credential, highest priority
	App AppConfig

	// BotToken is the dedicated assistant bot token, second priority
	BotToken string

	// UserToken is the generic user token, lowest priority
	UserToken string

	// DBPath is where the published-issue ledger lives
	// Default: ".atim/atim.db"
	DBPath string

	// RulesFile is an optional YAML rule catalog appended to the built-ins
	RulesFile string

	// RequestTimeoutSeconds bounds each remote call
	// Default: 15, Range: 1-300
	RequestTimeoutSeconds int

	// HistorySize is the capacity of the in-memory operation history
	// Default: 100, Range: 1-10000
	HistorySize int

	// Scan limits
	ScanExtensions   []string
	ScanMaxFiles     int // 0 = unlimited
	ScanMaxFileBytes int
}

// AppConfig is the GitHub App installation credential.
type AppConfig struct {
	ID             string
	PrivateKeyPEM  string
	PrivateKeyPath string
	InstallationID string
}

// Configured reports whether every piece of the installation credential is present.
func (a AppConfig) Configured() bool {
	return a.ID != "" && a.InstallationID != "" && (a.PrivateKeyPEM != "" || a.PrivateKeyPath != "")
}

// Partial reports whether some but not all installation fields are set.
func (a AppConfig) Partial() bool {
	set := a.ID != "" || a.InstallationID != "" || a.PrivateKeyPEM != "" || a.PrivateKeyPath != ""
	return set && !a.Configured()
}

// PrivateKey returns the PEM material, reading PrivateKeyPath when no inline key is set.
func (a AppConfig) PrivateKey() ([]byte, error) {
	if a.PrivateKeyPEM != "" {
		// Env files often carry the key with literal \n sequences.
		return []byte(strings.ReplaceAll(a.PrivateKeyPEM, `\n`, "\n")), nil
	}
	if a.PrivateKeyPath == "" {
		return nil, errors.New("no private key configured")
	}
	data, err := os.ReadFile(a.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return data, nil
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Repository:            DefaultRepository,
		APIURL:                DefaultAPIURL,
		DBPath:                ".atim/atim.db",
		RequestTimeoutSeconds: 15,
		HistorySize:           100,
		ScanExtensions:        []string{".cpp", ".c", ".h", ".hpp"},
		ScanMaxFiles:          0,
		ScanMaxFileBytes:      1 << 20,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if _, _, err := SplitRepository(c.Repository); err != nil {
		return err
	}
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	if c.RequestTimeoutSeconds < 1 || c.RequestTimeoutSeconds > 300 {
		return fmt.Errorf("request_timeout_seconds must be between 1 and 300 (got %d)", c.RequestTimeoutSeconds)
	}
	if c.HistorySize < 1 || c.HistorySize > 10000 {
		return fmt.Errorf("history_size must be between 1 and 10000 (got %d)", c.HistorySize)
	}
	if c.ScanMaxFiles < 0 {
		return fmt.Errorf("scan_max_files cannot be negative (got %d)", c.ScanMaxFiles)
	}
	if c.ScanMaxFileBytes < 1 {
		return fmt.Errorf("scan_max_file_bytes must be positive (got %d)", c.ScanMaxFileBytes)
	}
	for _, ext := range c.ScanExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("scan extension %q must start with a dot", ext)
		}
	}

	// Only the shape of the key is checked; whether the platform accepts it
	// is discovered at exchange time.
	if c.App.PrivateKeyPEM != "" || c.App.PrivateKeyPath != "" {
		pemBytes, err := c.App.PrivateKey()
		if err != nil {
			return fmt.Errorf("app private key: %w", err)
		}
		if _, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes); err != nil {
			return fmt.Errorf("app private key is not a recognizable PEM-encoded RSA key: %w", err)
		}
	}

	return nil
}

// RequestTimeout returns the per-call timeout as a time.Duration
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// String returns a human-readable representation with secrets redacted
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Repository: %s, APIURL: %s, App: %s, BotToken: %s, UserToken: %s, DBPath: %s, RulesFile: %q, Timeout: %ds}",
		c.Repository, c.APIURL, presence(c.App.Configured()), presence(c.BotToken != ""),
		presence(c.UserToken != ""), c.DBPath, c.RulesFile, c.RequestTimeoutSeconds,
	)
}

func presence(set bool) string {
	if set {
		return "set"
	}
	return "not set"
}

// SplitRepository splits "owner/name" into its parts.
func SplitRepository(repo string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(repo), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be in owner/name form (got %q)", repo)
	}
	return parts[0], parts[1], nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - GITHUB_REPO: target repository, owner/name
//   - GITHUB_API_URL: REST API base URL
//   - GITHUB_APP_ID, GITHUB_APP_INSTALLATION_ID: installation credential ids
//   - GITHUB_APP_PRIVATE_KEY or GITHUB_APP_PRIVATE_KEY_PATH: PEM key material
//   - ATIM_GITHUB_TOKEN: dedicated bot token
//   - GITHUB_TOKEN: user token
//   - ATIM_DB_PATH, ATIM_RULES_FILE
//   - ATIM_REQUEST_TIMEOUT_SECONDS, ATIM_HISTORY_SIZE
//   - ATIM_SCAN_MAX_FILES, ATIM_SCAN_MAX_FILE_BYTES, ATIM_SCAN_EXTENSIONS (comma-separated)
//
// Returns an error if any environment variable has an invalid value.
func FromEnv() (Config, error) {
	cfg := Default()

	parseEnvString("GITHUB_REPO", &cfg.Repository)
	parseEnvString("GITHUB_API_URL", &cfg.APIURL)
	parseEnvString("GITHUB_APP_ID", &cfg.App.ID)
	parseEnvString("GITHUB_APP_INSTALLATION_ID", &cfg.App.InstallationID)
	parseEnvString("GITHUB_APP_PRIVATE_KEY", &cfg.App.PrivateKeyPEM)
	parseEnvString("GITHUB_APP_PRIVATE_KEY_PATH", &cfg.App.PrivateKeyPath)
	parseEnvString("ATIM_GITHUB_TOKEN", &cfg.BotToken)
	parseEnvString("GITHUB_TOKEN", &cfg.UserToken)
	parseEnvString("ATIM_DB_PATH", &cfg.DBPath)
	parseEnvString("ATIM_RULES_FILE", &cfg.RulesFile)

	if err := parseEnvInt("ATIM_REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeoutSeconds); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("ATIM_HISTORY_SIZE", &cfg.HistorySize); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("ATIM_SCAN_MAX_FILES", &cfg.ScanMaxFiles); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("ATIM_SCAN_MAX_FILE_BYTES", &cfg.ScanMaxFileBytes); err != nil {
		return cfg, err
	}
	if v := os.Getenv("ATIM_SCAN_EXTENSIONS"); v != "" {
		cfg.ScanExtensions = splitList(v)
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}
