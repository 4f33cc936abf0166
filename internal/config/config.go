// Package config loads the gateway configuration: defaults first, YAML
// overlay second, environment variables for secrets last.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "8h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\"")
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the standard-library value.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full serve-time configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Parser   Parser   `yaml:"parser"`
	Auth     Auth     `yaml:"auth"`
	Policy   Policy   `yaml:"policy"`
	Audit    Audit    `yaml:"audit"`

	// Hash is the SHA-256 of the raw YAML bytes on disk, logged at
	// startup so a running server can be matched to its config.
	// Defaults (no file) hash empty input.
	Hash string `yaml:"-"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Database struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// Parser selects the intent-parser variant and configures the
// model-assisted one.
type Parser struct {
	// Variant is "pattern" or "model".
	Variant   string   `yaml:"variant"`
	APIURL    string   `yaml:"api_url"`
	APIKey    string   `yaml:"api_key"`
	Model     string   `yaml:"model"`
	MaxTokens int      `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
}

type Auth struct {
	TokenSecret string   `yaml:"token_secret"`
	TokenTTL    Duration `yaml:"token_ttl"`
}

type Policy struct {
	// RulesPath points at the resource-rules YAML; empty means
	// built-in defaults. The file is hot-reloaded while serving.
	RulesPath string `yaml:"rules_path"`
}

type Audit struct {
	// FilePath enables the hash-chained JSONL mirror next to the
	// store-backed trail. Empty disables the mirror.
	FilePath string `yaml:"file_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   Server{Addr: ":8080"},
		Database: Database{MaxConns: 8},
		Parser: Parser{
			Variant:   "pattern",
			Model:     "llama3.2",
			MaxTokens: 500,
			Timeout:   Duration(30 * time.Second),
		},
		Auth: Auth{TokenTTL: Duration(8 * time.Hour)},
	}
}

// Load reads configuration from the given YAML file. Empty path or a
// missing file yields defaults; invalid YAML is an error. Environment
// variables override secrets so they stay out of config files:
// QUERYGATE_DB_DSN, QUERYGATE_TOKEN_SECRET, QUERYGATE_LLM_API_KEY.
func Load(path string) (*Config, error) {
	cfg := Default()

	var raw []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse: %w", err)
			}
			raw = data
		}
	}
	sum := sha256.Sum256(raw)
	cfg.Hash = "sha256:" + hex.EncodeToString(sum[:])

	if dsn := os.Getenv("QUERYGATE_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if secret := os.Getenv("QUERYGATE_TOKEN_SECRET"); secret != "" {
		cfg.Auth.TokenSecret = secret
	}
	if key := os.Getenv("QUERYGATE_LLM_API_KEY"); key != "" {
		cfg.Parser.APIKey = key
	}
	return cfg, nil
}

// Validate checks the fields serve cannot run without.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database DSN is required (QUERYGATE_DB_DSN)")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("config: token secret is required (QUERYGATE_TOKEN_SECRET)")
	}
	switch c.Parser.Variant {
	case "pattern":
	case "model":
		if c.Parser.APIURL == "" {
			return fmt.Errorf("config: parser.api_url is required for the model variant")
		}
	default:
		return fmt.Errorf("config: unknown parser variant %q", c.Parser.Variant)
	}
	return nil
}
