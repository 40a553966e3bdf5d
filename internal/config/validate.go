package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Validate checks a configuration.
//
// Ensures:
//   - version is 0 (unset) or CurrentVersion
//   - ledger.backend is localfs, leveldb or memory; ledger.lat and ledger.lon are set together
//   - every duration parses; timeouts and token_ttl are positive
//   - argon2 cost is usable and signing_seed is empty or 32 hex-encoded bytes
//   - log level and format are known
func Validate(cfg Config) error {
	if cfg.Version != 0 && cfg.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	if cfg.DataDir == "" {
		return errors.New("data_dir must be set")
	}

	switch cfg.Ledger.Backend {
	case "localfs", "leveldb", "memory":
	default:
		return fmt.Errorf("ledger.backend must be localfs, leveldb or memory, got %q", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Backend != "memory" && cfg.Ledger.Path == "" {
		return errors.New("ledger.path must be set")
	}
	if (cfg.Ledger.Lat == "") != (cfg.Ledger.Lon == "") {
		return errors.New("ledger.lat and ledger.lon must be set together")
	}
	if err := checkDuration("ledger.cache_ttl", cfg.Ledger.CacheTTL, true); err != nil {
		return err
	}

	if cfg.Projection.Path == "" {
		return errors.New("projection.path must be set")
	}
	if err := checkDuration("projection.pool_timeout", cfg.Projection.PoolTimeout, false); err != nil {
		return err
	}
	if cfg.Projection.ConnectRetries < 0 {
		return fmt.Errorf("projection.connect_retries must be >= 0, got %d", cfg.Projection.ConnectRetries)
	}
	if err := checkDuration("projection.retry_delay", cfg.Projection.RetryDelay, true); err != nil {
		return err
	}

	if n := cfg.Registration.MaxUsernameLength; n < 1 || n > 4096 {
		return fmt.Errorf("registration.max_username_length must be in [1, 4096], got %d", n)
	}

	a := cfg.Credentials.Argon2
	if a.Time < 1 || a.Threads < 1 {
		return errors.New("credentials.argon2 time and threads must be >= 1")
	}
	if a.MemoryKiB < 8*uint32(a.Threads) {
		return fmt.Errorf("credentials.argon2.memory_kib must be >= 8*threads (%d)", 8*uint32(a.Threads))
	}
	if seed := cfg.Credentials.SigningSeed; seed != "" {
		b, err := hex.DecodeString(seed)
		if err != nil || len(b) != 32 {
			return errors.New("credentials.signing_seed must be 64 hex characters")
		}
	}
	if err := checkDuration("credentials.token_ttl", cfg.Credentials.TokenTTL, false); err != nil {
		return err
	}

	if cfg.HTTP.ListenAddr == "" {
		return errors.New("http.listen_addr must be set")
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("http.rate_limit must be >= 0")
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.Burst < 1 {
		return errors.New("http.burst must be >= 1 when rate limiting is enabled")
	}
	if err := checkDuration("http.read_header_timeout", cfg.HTTP.ReadHeaderTimeout, false); err != nil {
		return err
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

func checkDuration(field, value string, allowZero bool) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d < 0 || (!allowZero && d == 0) {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}
