package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces corpusd environment variables.
const envPrefix = "CORPUSD_"

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CORPUSD_STORAGE_PROVIDER, CORPUSD_SERVER_PORT, ...)
//  2. YAML config file (configPath, skipped when empty or missing)
//  3. Hardcoded defaults
//
// A .env file in the working directory is loaded into the process environment
// first, so deployments can keep secrets out of the YAML file.
//
// Environment variables map to config keys by stripping the prefix, lowering,
// and splitting on the first underscore:
//
//	CORPUSD_SERVER_PORT          -> server.port
//	CORPUSD_STORAGE_PROVIDER     -> storage.provider
//	CORPUSD_EMBEDDING_BASE_URL   -> embedding.base_url
//	CORPUSD_STORAGE_POSTGRES_DSN -> storage.postgres_dsn (see transform below)
func Load(configPath string) (*Config, error) {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		} else {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnvKey maps CORPUSD_SECTION_FIELD_NAME to section.field_name.
// The section is the first underscore-separated token; nested sections use a
// double underscore (CORPUSD_STORAGE__POSTGRES__DSN -> storage.postgres.dsn).
func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	if strings.Contains(lower, "__") {
		return strings.ReplaceAll(lower, "__", ".")
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
