// Package config loads the pathchain configuration file.
//
// The file is YAML, versioned, and strict: unknown keys are rejected.
// Default supplies every value, Load overlays a file and environment
// overrides on top, and Validate checks the result.
package config

import (
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/pathchain/internal/record"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// Config is the full configuration.
type Config struct {
	// Version is the config file format version (optional, currently always 1).
	Version int `yaml:"version,omitempty"`

	// DataDir anchors relative ledger and projection paths.
	DataDir string `yaml:"data_dir"`

	Ledger       LedgerSection       `yaml:"ledger"`
	Projection   ProjectionSection   `yaml:"projection"`
	Registration RegistrationSection `yaml:"registration"`
	Credentials  CredentialsSection  `yaml:"credentials"`
	HTTP         HTTPSection         `yaml:"http"`
	Log          LogSection          `yaml:"log"`
}

// LedgerSection configures the content-addressed object store.
type LedgerSection struct {
	// Backend is "localfs", "leveldb" or "memory".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	// CacheTTL bounds how long decoded moments and entities stay cached.
	// Use Go duration format; "0s" disables the cache.
	CacheTTL string `yaml:"cache_ttl"`

	// Lat and Lon, when both set, stamp every new moment with a coordinate.
	// Decimal degrees as strings.
	Lat string `yaml:"lat,omitempty"`
	Lon string `yaml:"lon,omitempty"`
}

// ProjectionSection configures the SQLite projection.
type ProjectionSection struct {
	Path string `yaml:"path"`

	// PoolTimeout bounds how long an operation waits for the connection.
	PoolTimeout string `yaml:"pool_timeout"`

	// ConnectRetries is how many times startup retries the first connection.
	ConnectRetries int    `yaml:"connect_retries"`
	RetryDelay     string `yaml:"retry_delay"`
}

// RegistrationSection configures the registration coordinator.
type RegistrationSection struct {
	MaxUsernameLength int `yaml:"max_username_length"`
}

// Argon2Section holds the password hashing cost.
type Argon2Section struct {
	Time      uint32 `yaml:"time"`
	MemoryKiB uint32 `yaml:"memory_kib"`
	Threads   uint8  `yaml:"threads"`
}

// CredentialsSection configures password hashing and capability tokens.
type CredentialsSection struct {
	Argon2 Argon2Section `yaml:"argon2"`

	// SigningSeed is the hex-encoded 32-byte ed25519 seed. When empty the
	// server generates an ephemeral key and tokens do not survive a restart.
	SigningSeed string `yaml:"signing_seed"`

	TokenTTL string `yaml:"token_ttl"`
}

// HTTPSection configures the HTTP adapter.
type HTTPSection struct {
	ListenAddr string `yaml:"listen_addr"`

	// RateLimit is the sustained requests per second allowed per client on
	// register and login; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	ReadHeaderTimeout string `yaml:"read_header_timeout"`
}

// LogSection configures the slog handler.
type LogSection struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns a complete configuration.
func Default() Config {
	return Config{
		Version: CurrentVersion,
		DataDir: "./pathchain-data",
		Ledger: LedgerSection{
			Backend:  "localfs",
			Path:     "ledger",
			CacheTTL: "10m",
		},
		Projection: ProjectionSection{
			Path:           "projection.db",
			PoolTimeout:    "5s",
			ConnectRetries: 3,
			RetryDelay:     "200ms",
		},
		Registration: RegistrationSection{
			MaxUsernameLength: 255,
		},
		Credentials: CredentialsSection{
			Argon2: Argon2Section{
				Time:      3,
				MemoryKiB: 64 * 1024,
				Threads:   4,
			},
			TokenTTL: "24h",
		},
		HTTP: HTTPSection{
			ListenAddr:        "127.0.0.1:8080",
			RateLimit:         5,
			Burst:             10,
			ReadHeaderTimeout: "5s",
		},
		Log: LogSection{
			Level:  "info",
			Format: "text",
		},
	}
}

// LedgerPath resolves the ledger path against DataDir.
func (c Config) LedgerPath() string { return c.resolve(c.Ledger.Path) }

// ProjectionPath resolves the projection path against DataDir. The
// special path ":memory:" is returned unchanged.
func (c Config) ProjectionPath() string {
	if c.Projection.Path == ":memory:" {
		return c.Projection.Path
	}
	return c.resolve(c.Projection.Path)
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// The accessors below assume Validate has passed.

func (c Config) CacheTTL() time.Duration          { return mustDuration(c.Ledger.CacheTTL) }
func (c Config) PoolTimeout() time.Duration       { return mustDuration(c.Projection.PoolTimeout) }
func (c Config) RetryDelay() time.Duration        { return mustDuration(c.Projection.RetryDelay) }
func (c Config) TokenTTL() time.Duration          { return mustDuration(c.Credentials.TokenTTL) }
func (c Config) ReadHeaderTimeout() time.Duration { return mustDuration(c.HTTP.ReadHeaderTimeout) }

// SigningSeed decodes the token signing seed; nil when unset.
func (c Config) SigningSeed() []byte {
	if c.Credentials.SigningSeed == "" {
		return nil
	}
	seed, _ := hex.DecodeString(c.Credentials.SigningSeed)
	return seed
}

// Place returns the configured moment coordinate, or nil.
func (c Config) Place() *record.Coordinate {
	if c.Ledger.Lat == "" {
		return nil
	}
	return &record.Coordinate{Lat: c.Ledger.Lat, Lon: c.Ledger.Lon}
}

// LogLevel maps Log.Level to a slog level.
func (c Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
