// Package config provides application configuration management with support for command-line flags, environment variables, .env files and a TOML roots file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/validation"
)

// Backend names accepted for Catalog.Backend.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Catalog CatalogConfig
	Library LibraryConfig
	Scanner ScannerConfig
	Server  ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// CatalogConfig holds catalog storage configuration.
type CatalogConfig struct {
	// DataPath holds the catalog database and the scan lock.
	DataPath string `validate:"required"`
	Backend  string `validate:"oneof=badger sqlite"`
}

// LibraryConfig holds the scanned roots.
type LibraryConfig struct {
	// RootsFile is a TOML file with [[roots]] tables. Optional.
	RootsFile string
	// AudiobookPath adds a collection root named "default" when set.
	AudiobookPath string
	Roots         []domain.Root `validate:"unique=ID,dive"`
}

// ScannerConfig holds scan pass configuration.
type ScannerConfig struct {
	// Languages orders Matroska chapter display languages, ISO 639-2.
	Languages []string
	// FFprobePath overrides auto-detection of ffprobe (default: PATH lookup).
	FFprobePath string
	Workers     int           `validate:"gte=0,lte=64"`
	Debounce    time.Duration `validate:"gte=0"`
	Watch       bool
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string        `validate:"required,hostname_port"`
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
	// ScanRateLimit caps scan triggers per client and minute. 0 disables it.
	ScanRateLimit int `validate:"gte=0"`
}

// CatalogPath returns the catalog location for the configured backend.
func (c *Config) CatalogPath() string {
	if c.Catalog.Backend == BackendSQLite {
		return filepath.Join(c.Catalog.DataPath, "catalog.db")
	}
	return filepath.Join(c.Catalog.DataPath, "catalog")
}

// LockPath returns the path of the file locked during scan passes.
func (c *Config) LockPath() string {
	return filepath.Join(c.Catalog.DataPath, "scan.lock")
}

// RegisterFlags defines every configuration flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env", "", "Environment (development, staging, production)")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("env-file", ".env", "Path to .env file")

	fs.String("data-path", "", "Directory holding the catalog (default: ~/.voicescan)")
	fs.String("backend", "", "Catalog backend: badger or sqlite (default: badger)")

	fs.String("roots-file", "", "TOML file declaring the library roots")
	fs.String("audiobook-path", "", "Scan this folder as a collection root")

	fs.String("workers", "", "Parallel file parsers (default: number of CPUs)")
	fs.String("languages", "", "Comma separated preferred chapter languages (e.g. eng,ger)")
	fs.String("ffprobe-path", "", "Path to ffprobe binary (default: auto-detect)")
	fs.String("watch", "", "Rescan when files below the roots change (default: true)")
	fs.String("debounce", "", "Quiet period before a watched change triggers a scan (default: 2s)")

	fs.String("addr", "", "HTTP listen address (default: 127.0.0.1:8080)")
	fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	fs.String("cors-origins", "", "Comma separated origins allowed to call the API")
	fs.String("scan-rate-limit", "", "Scan triggers allowed per client and minute, 0 disables (default: 6)")
}

// Load builds the configuration from sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// fs must have been set up by RegisterFlags and parsed. A nil fs reads
// environment and defaults only.
func Load(fs *pflag.FlagSet) (*Config, error) {
	flag := func(name string) string {
		if fs == nil {
			return ""
		}
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			return ""
		}
		return f.Value.String()
	}

	envFile := ".env"
	if v := flag("env-file"); v != "" {
		envFile = v
	}
	// A missing .env file is fine.
	if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flag("env"), "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: strings.ToLower(getConfigValue(flag("log-level"), "LOG_LEVEL", "info")),
		},
		Catalog: CatalogConfig{
			DataPath: getConfigValue(flag("data-path"), "DATA_PATH", ""),
			Backend:  strings.ToLower(getConfigValue(flag("backend"), "CATALOG_BACKEND", BackendBadger)),
		},
		Library: LibraryConfig{
			RootsFile:     getConfigValue(flag("roots-file"), "ROOTS_FILE", ""),
			AudiobookPath: getConfigValue(flag("audiobook-path"), "AUDIOBOOK_PATH", ""),
		},
		Scanner: ScannerConfig{
			Workers:     getIntConfigValue(flag("workers"), "SCAN_WORKERS", 0),
			Languages:   splitList(getConfigValue(flag("languages"), "CHAPTER_LANGUAGES", "")),
			FFprobePath: getConfigValue(flag("ffprobe-path"), "FFPROBE_PATH", ""),
			Watch:       getBoolConfigValue(flag("watch"), "SCAN_WATCH", true),
		},
		Server: ServerConfig{
			Addr:          getConfigValue(flag("addr"), "SERVER_ADDR", "127.0.0.1:8080"),
			CORSOrigins:   splitList(getConfigValue(flag("cors-origins"), "SERVER_CORS_ORIGINS", "")),
			ScanRateLimit: getIntConfigValue(flag("scan-rate-limit"), "SERVER_SCAN_RATE_LIMIT", 6),
		},
	}

	durations := []struct {
		dest              *time.Duration
		flag, env, defval string
	}{
		{&cfg.Scanner.Debounce, "debounce", "SCAN_DEBOUNCE", "2s"},
		{&cfg.Server.ReadTimeout, "read-timeout", "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, "write-timeout", "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, "idle-timeout", "SERVER_IDLE_TIMEOUT", "60s"},
	}
	for _, d := range durations {
		s := getConfigValue(flag(d.flag), d.env, d.defval)
		v, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.flag, s, err)
		}
		*d.dest = v
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.loadRoots(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	return validation.New().Validate(c)
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	paths := []struct {
		dest   *string
		name   string
		defval string
	}{
		{&c.Catalog.DataPath, "data path", filepath.Join(homeDir, ".voicescan")},
		{&c.Library.RootsFile, "roots file", ""},
		{&c.Library.AudiobookPath, "audiobook path", ""},
	}
	for _, p := range paths {
		expanded, err := expandPath(*p.dest, p.defval)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", p.name, err)
		}
		*p.dest = expanded
	}
	return nil
}

// rootsDocument is the layout of the roots file.
type rootsDocument struct {
	Roots []domain.Root `toml:"roots"`
}

// loadRoots reads the roots file and the audiobook path into Library.Roots.
func (c *Config) loadRoots() error {
	if c.Library.RootsFile != "" {
		roots, err := ReadRootsFile(c.Library.RootsFile)
		if err != nil {
			return err
		}
		c.Library.Roots = append(c.Library.Roots, roots...)
	}
	if c.Library.AudiobookPath != "" {
		c.Library.Roots = append(c.Library.Roots, domain.Root{
			ID:   "default",
			Path: c.Library.AudiobookPath,
			Kind: domain.RootCollection,
		})
	}
	return nil
}

// ReadRootsFile parses a TOML roots file:
//
//	[[roots]]
//	id = "main"
//	path = "~/Audiobooks"
//	kind = "collection"
//
// Paths are expanded relative to the file's directory.
func ReadRootsFile(path string) ([]domain.Root, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return nil, fmt.Errorf("read roots file: %w", err)
	}

	var doc rootsDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse roots file %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range doc.Roots {
		p := doc.Roots[i].Path
		if p != "" && !strings.HasPrefix(p, "~/") && !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		expanded, err := expandPath(p, "")
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", doc.Roots[i].ID, err)
		}
		doc.Roots[i].Path = expanded
	}
	return doc.Roots, nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
