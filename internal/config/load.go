package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a configuration file over Default and applies environment
// overrides. It does not validate; call Validate after any flag overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - config path comes from the operator
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv returns Default with environment overrides applied.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables if set.
func applyEnvOverrides(cfg *Config) error {
	if dir := os.Getenv("PATHCHAIN_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if backend := os.Getenv("PATHCHAIN_LEDGER_BACKEND"); backend != "" {
		cfg.Ledger.Backend = backend
	}
	if seed := os.Getenv("PATHCHAIN_SIGNING_SEED"); seed != "" {
		cfg.Credentials.SigningSeed = seed
	}
	if addr := os.Getenv("PATHCHAIN_LISTEN_ADDR"); addr != "" {
		cfg.HTTP.ListenAddr = addr
	}
	if level := os.Getenv("PATHCHAIN_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	return nil
}

// Marshal renders cfg as YAML, for `pathchain config` style dumps.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
