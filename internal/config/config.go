// Package config loads service configuration.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// then ANNOTATE_* environment variables. The result is checked against the
// embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Backends lists the supported storage backends.
var Backends = []string{"memory", "mongo", "sqlite"}

// Config is the service configuration.
type Config struct {
	Listen         string   `yaml:"listen" json:"listen" env:"ANNOTATE_LISTEN"`
	Backend        string   `yaml:"backend" json:"backend" env:"ANNOTATE_BACKEND"`
	MongoURI       string   `yaml:"mongo_uri" json:"mongo_uri,omitempty" env:"ANNOTATE_MONGO_URI"`
	MongoDatabase  string   `yaml:"mongo_database" json:"mongo_database" env:"ANNOTATE_MONGO_DATABASE"`
	SQLitePath     string   `yaml:"sqlite_path" json:"sqlite_path" env:"ANNOTATE_SQLITE_PATH"`
	Dev            bool     `yaml:"dev" json:"dev" env:"ANNOTATE_DEV"`
	EmailWhitelist []string `yaml:"email_whitelist" json:"email_whitelist,omitempty" env:"ANNOTATE_EMAIL_WHITELIST"`
	RateLimit      float64  `yaml:"rate_limit" json:"rate_limit" env:"ANNOTATE_RATE_LIMIT"`
	RateBurst      int      `yaml:"rate_burst" json:"rate_burst" env:"ANNOTATE_RATE_BURST"`
	LogLevel       string   `yaml:"log_level" json:"log_level" env:"ANNOTATE_LOG_LEVEL"`
	LogFormat      string   `yaml:"log_format" json:"log_format" env:"ANNOTATE_LOG_FORMAT"`
}

// Default returns the built-in configuration: an in-memory backend on :8080.
func Default() Config {
	return Config{
		Listen:        ":8080",
		Backend:       "memory",
		MongoDatabase: "annotate",
		SQLitePath:    "annotate.db",
		RateBurst:     20,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load resolves the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ParseEnv applies environment overrides to target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration against the CUE schema and the rules
// the schema cannot express.
func (c Config) Validate() error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", describe(err))
	}

	if c.Backend == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("invalid config: mongo_uri is required when backend is mongo")
	}
	return nil
}

func describe(err error) string {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := c.Level()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// AllowsEmail reports whether addr may register. An empty whitelist allows
// everyone.
func (c Config) AllowsEmail(addr string) bool {
	if len(c.EmailWhitelist) == 0 {
		return true
	}
	return slices.ContainsFunc(c.EmailWhitelist, func(allowed string) bool {
		return strings.EqualFold(allowed, addr)
	})
}

// Redacted renders the configuration as YAML with credentials removed.
func (c Config) Redacted() string {
	if c.MongoURI != "" {
		c.MongoURI = "<redacted>"
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err.Error()
	}
	return buf.String()
}
