package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"paperflow/internal/application"
)

// DefaultConfigFile is read when neither --config nor PAPERFLOW_CONFIG is set
const DefaultConfigFile = "paperflow.yaml"

// Config is the single validated configuration for every paperflow binary
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Converter  ConverterConfig  `yaml:"converter"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Verifier   VerifierConfig   `yaml:"verifier"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Google     GoogleConfig     `yaml:"google"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Citations  CitationsConfig  `yaml:"citations"`
	Web        WebConfig        `yaml:"web"`
	Log        LogConfig        `yaml:"log"`

	// Credentials are only ever read from the environment or .env
	AnthropicAPIKey string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
	BraveAPIKey     string `yaml:"-"`
	ScholarAPIKey   string `yaml:"-"`
}

type PathsConfig struct {
	Papers    string `yaml:"papers"`
	Markdown  string `yaml:"markdown"`
	Summaries string `yaml:"summaries"`
	State     string `yaml:"state"`
}

// ConverterConfig options are passed through opaquely to the converter backend
type ConverterConfig struct {
	Backend         string        `yaml:"backend"`
	Binary          string        `yaml:"binary"`
	UseLLM          bool          `yaml:"use_llm"`
	ForceOCR        bool          `yaml:"force_ocr"`
	RedoInlineMath  bool          `yaml:"redo_inline_math"`
	BatchMultiplier int           `yaml:"batch_multiplier"`
	MaxPages        int           `yaml:"max_pages"`
	Languages       []string      `yaml:"languages"`
	Timeout         time.Duration `yaml:"timeout"`
}

type SummarizerConfig struct {
	Backend  string        `yaml:"backend"`
	Binary   string        `yaml:"binary"`
	Model    string        `yaml:"model"`
	MaxChars int           `yaml:"max_chars"`
	Timeout  time.Duration `yaml:"timeout"`
}

type VerifierConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
}

type IndexerConfig struct {
	Backend string        `yaml:"backend"`
	Bucket  string        `yaml:"bucket"`
	Prefix  string        `yaml:"prefix"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type GoogleConfig struct {
	Project string `yaml:"project"`
	Region  string `yaml:"region"`
}

type LedgerConfig struct {
	Backend    string `yaml:"backend"`
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
}

type PipelineConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	Debounce        time.Duration `yaml:"debounce"`
	Workers         int           `yaml:"workers"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
	ProcessExisting bool          `yaml:"process_existing"`
}

type CitationsConfig struct {
	Bibliography         string  `yaml:"bibliography"`
	MinConfidence        float64 `yaml:"min_confidence"`
	BlockOnLowConfidence bool    `yaml:"block_on_low_confidence"`
}

// WebConfig covers downloads and searches against public paper APIs
type WebConfig struct {
	Email   string        `yaml:"email"` // sent to Unpaywall, which asks callers to identify themselves
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Papers:    "./papers",
			Markdown:  "./markdown",
			Summaries: "./summaries",
			State:     "./.paperflow",
		},
		Converter: ConverterConfig{
			Backend:         "marker",
			Binary:          "marker_single",
			UseLLM:          true,
			BatchMultiplier: 2,
			Timeout:         5 * time.Minute,
		},
		Summarizer: SummarizerConfig{
			Backend:  "claude",
			Binary:   "claude",
			Model:    "sonnet",
			MaxChars: 150000,
			Timeout:  3 * time.Minute,
		},
		Verifier: VerifierConfig{MinConfidence: 0.7},
		Indexer: IndexerConfig{
			Backend: "none",
			Prefix:  "papers",
			Model:   "gemini-2.0-flash",
			Timeout: 2 * time.Minute,
		},
		Google: GoogleConfig{Region: "us-central1"},
		Ledger: LedgerConfig{
			Backend:    "sqlite",
			Collection: "papers",
		},
		Pipeline: PipelineConfig{
			MaxAttempts:     3,
			BackoffBase:     time.Second,
			Debounce:        2 * time.Second,
			Workers:         2,
			SweepInterval:   30 * time.Second,
			ShutdownGrace:   30 * time.Second,
			ProcessExisting: true,
		},
		Citations: CitationsConfig{
			Bibliography:  "references.bib",
			MinConfidence: 0.7,
		},
		Web: WebConfig{
			Email:   "paperflow@example.com",
			Timeout: time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Path returns the config file to read: the explicit flag value, then
// PAPERFLOW_CONFIG, then DefaultConfigFile.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("PAPERFLOW_CONFIG"); env != "" {
		return env
	}
	return DefaultConfigFile
}

// Load builds the configuration from defaults, the YAML file at path (optional
// unless explicit), a .env file next to it, and the environment, then validates it.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	baseDir := "."

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, &application.ConfigurationError{Field: path, Message: err.Error()}
		}
		baseDir = filepath.Dir(path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
		slog.Debug("No config file, using defaults.", "path", path)
	default:
		return nil, &application.ConfigurationError{Field: path, Message: err.Error()}
	}

	// .env only fills variables that are not already set
	envFile := filepath.Join(baseDir, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &application.ConfigurationError{Field: envFile, Message: err.Error()}
	}

	cfg.applyEnv()
	cfg.resolvePaths(baseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses YAML strictly: unknown keys are rejected
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"PAPERFLOW_PAPERS_DIR":    &c.Paths.Papers,
		"PAPERFLOW_MARKDOWN_DIR":  &c.Paths.Markdown,
		"PAPERFLOW_SUMMARIES_DIR": &c.Paths.Summaries,
		"PAPERFLOW_STATE_DIR":     &c.Paths.State,
		"PAPERFLOW_LEDGER_DSN":    &c.Ledger.DSN,
		"GOOGLE_CLOUD_PROJECT":    &c.Google.Project,
		"ANTHROPIC_API_KEY":       &c.AnthropicAPIKey,
		"GOOGLE_API_KEY":          &c.GoogleAPIKey,
		"BRAVE_API_KEY":           &c.BraveAPIKey,
		"S2_API_KEY":              &c.ScholarAPIKey,
		"UNPAYWALL_EMAIL":         &c.Web.Email,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func (c *Config) resolvePaths(baseDir string) {
	for _, p := range []*string{&c.Paths.Papers, &c.Paths.Markdown, &c.Paths.Summaries, &c.Paths.State} {
		*p = expandPath(*p, baseDir)
	}
	if c.Citations.Bibliography != "" {
		c.Citations.Bibliography = expandPath(c.Citations.Bibliography, baseDir)
	}
}

func expandPath(p, baseDir string) string {
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

// Validate checks every recognized option and reports the first bad one
func (c *Config) Validate() error {
	required := map[string]string{
		"paths.papers":    c.Paths.Papers,
		"paths.markdown":  c.Paths.Markdown,
		"paths.summaries": c.Paths.Summaries,
		"paths.state":     c.Paths.State,
	}
	for _, field := range []string{"paths.papers", "paths.markdown", "paths.summaries", "paths.state"} {
		if strings.TrimSpace(required[field]) == "" {
			return &application.ConfigurationError{Field: field, Message: "is required"}
		}
	}

	if err := oneOf("converter.backend", c.Converter.Backend, "marker", "pdftext"); err != nil {
		return err
	}
	if err := oneOf("summarizer.backend", c.Summarizer.Backend, "claude", "gemini", "none"); err != nil {
		return err
	}
	if err := oneOf("indexer.backend", c.Indexer.Backend, "gemini", "none"); err != nil {
		return err
	}
	if err := oneOf("ledger.backend", c.Ledger.Backend, "sqlite", "postgres", "firestore"); err != nil {
		return err
	}
	if err := oneOf("log.format", c.Log.Format, "text", "json"); err != nil {
		return err
	}
	if err := oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}

	positive := []struct {
		field string
		ok    bool
	}{
		{"pipeline.max_attempts", c.Pipeline.MaxAttempts > 0},
		{"pipeline.workers", c.Pipeline.Workers > 0},
		{"pipeline.backoff_base", c.Pipeline.BackoffBase > 0},
		{"pipeline.debounce", c.Pipeline.Debounce > 0},
		{"pipeline.sweep_interval", c.Pipeline.SweepInterval > 0},
		{"pipeline.shutdown_grace", c.Pipeline.ShutdownGrace > 0},
		{"converter.timeout", c.Converter.Timeout > 0},
		{"summarizer.timeout", c.Summarizer.Timeout > 0},
		{"summarizer.max_chars", c.Summarizer.MaxChars > 0},
		{"indexer.timeout", c.Indexer.Timeout > 0},
		{"web.timeout", c.Web.Timeout > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return &application.ConfigurationError{Field: p.field, Message: "must be positive"}
		}
	}

	for field, v := range map[string]float64{
		"verifier.min_confidence":  c.Verifier.MinConfidence,
		"citations.min_confidence": c.Citations.MinConfidence,
	} {
		if v < 0 || v > 1 {
			return &application.ConfigurationError{Field: field, Message: "must be between 0 and 1"}
		}
	}

	if c.Converter.Backend == "marker" && strings.TrimSpace(c.Converter.Binary) == "" {
		return &application.ConfigurationError{Field: "converter.binary", Message: "is required by the marker converter"}
	}
	if c.Summarizer.Backend == "claude" && strings.TrimSpace(c.Summarizer.Binary) == "" {
		return &application.ConfigurationError{Field: "summarizer.binary", Message: "is required by the claude summarizer"}
	}

	if c.Converter.RedoInlineMath && !c.Converter.UseLLM {
		return &application.ConfigurationError{Field: "converter.redo_inline_math", Message: "requires converter.use_llm"}
	}

	usesGoogle := c.Summarizer.Backend == "gemini" || c.Indexer.Backend == "gemini" || c.Ledger.Backend == "firestore"
	if usesGoogle && c.Google.Project == "" {
		return &application.ConfigurationError{Field: "google.project", Message: "is required by the selected gemini/firestore backends (or set GOOGLE_CLOUD_PROJECT)"}
	}
	if c.Indexer.Backend == "gemini" && c.Indexer.Bucket == "" {
		return &application.ConfigurationError{Field: "indexer.bucket", Message: "is required by the gemini indexer"}
	}
	if c.Ledger.Backend == "postgres" && c.Ledger.DSN == "" {
		return &application.ConfigurationError{Field: "ledger.dsn", Message: "is required by the postgres ledger (or set PAPERFLOW_LEDGER_DSN)"}
	}
	if c.Ledger.Backend == "firestore" && c.Ledger.Collection == "" {
		return &application.ConfigurationError{Field: "ledger.collection", Message: "is required by the firestore ledger"}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &application.ConfigurationError{
		Field:   field,
		Message: fmt.Sprintf("unknown value %q (expected one of %s)", value, strings.Join(allowed, ", ")),
	}
}

// SQLiteDSN returns the ledger DSN, defaulting to a database in the state directory
func (c *Config) SQLiteDSN() string {
	if c.Ledger.DSN != "" {
		return c.Ledger.DSN
	}
	return filepath.Join(c.Paths.State, "ledger.db")
}

// Logger builds the process logger described by the log section
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
