// Package config provides configuration management for ghostvid.
// Configuration is loaded from an optional .env file, an optional YAML overlay
// and environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultDataDir      = ".ghostvid"
	DefaultMode         = "sentence"
	DefaultWorkers      = 1
	DefaultQuotaLimit   = 10000
	DefaultMaxResults   = 5
	DefaultAPIRPS       = 5.0
	DefaultLanguage     = "en"
	DefaultYTDLP        = "yt-dlp"
	DefaultFFmpeg       = "ffmpeg"
	DefaultFFprobe      = "ffprobe"
	DefaultPreviewPort  = 8788
	DefaultWordFallback = true

	// Environment variable names
	EnvLogLevel     = "GHOSTVID_LOG_LEVEL"
	EnvLogFormat    = "GHOSTVID_LOG_FORMAT"
	EnvDataDir      = "GHOSTVID_DATA_DIR"
	EnvMode         = "GHOSTVID_MODE"
	EnvWorkers      = "GHOSTVID_WORKERS"
	EnvQuotaLimit   = "GHOSTVID_QUOTA_LIMIT"
	EnvMaxResults   = "GHOSTVID_MAX_RESULTS"
	EnvWordFallback = "GHOSTVID_WORD_FALLBACK"
	EnvAPIRPS       = "GHOSTVID_API_RPS"
	EnvLanguage     = "GHOSTVID_LANGUAGE"
	EnvYTDLP        = "GHOSTVID_YTDLP"
	EnvFFmpeg       = "GHOSTVID_FFMPEG"
	EnvFFprobe      = "GHOSTVID_FFPROBE"
	EnvJournal      = "GHOSTVID_JOURNAL"
	EnvPreviewPort  = "GHOSTVID_PREVIEW_PORT"
	EnvConfigFile   = "GHOSTVID_CONFIG"

	// API key variables, checked in order
	EnvAPIKey         = "YOUTUBE_API_KEY"
	EnvAPIKeyFallback = "GHOSTVID_API_KEY"

	// Journal DSN used when no journal file is configured
	MemoryJournal = "file:ghostvid?mode=memory&cache=shared"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no search API key is set.
var ErrMissingAPIKey = errors.New("missing API key: set " + EnvAPIKey)

// Config defines the application configuration interface
type Config interface {
	LogLevel() string
	LogFormat() string
	DataDir() string
	ScratchDir() string
	ClipsDir() string
	Mode() string
	Workers() int
	QuotaLimit() int
	MaxResults() int
	WordFallback() bool
	APIRPS() float64
	Language() string
	YTDLPPath() string
	FFmpegPath() string
	FFprobePath() string
	JournalDSN() string
	PreviewPort() int
	APIKey() string
}

// settings is the validated form shared by the YAML overlay and env overrides.
type settings struct {
	LogLevel     string  `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat    string  `yaml:"log_format" validate:"oneof=json text"`
	DataDir      string  `yaml:"data_dir" validate:"required"`
	Mode         string  `yaml:"mode" validate:"oneof=sentence keyword"`
	Workers      int     `yaml:"workers" validate:"min=1,max=32"`
	QuotaLimit   int     `yaml:"quota_limit" validate:"min=0"`
	MaxResults   int     `yaml:"max_results" validate:"min=1,max=50"`
	WordFallback *bool   `yaml:"word_fallback"`
	APIRPS       float64 `yaml:"api_rps" validate:"gt=0"`
	Language     string  `yaml:"language"`
	YTDLP        string  `yaml:"ytdlp" validate:"required"`
	FFmpeg       string  `yaml:"ffmpeg" validate:"required"`
	FFprobe      string  `yaml:"ffprobe" validate:"required"`
	Journal      string  `yaml:"journal"`
	PreviewPort  int     `yaml:"preview_port" validate:"min=1,max=65535"`
}

// EnvConfig reads configuration from the environment and an optional overlay file
type EnvConfig struct {
	s      settings
	apiKey string
}

// Overrides carries command-line values that take precedence over everything else.
// Nil fields leave the loaded value untouched.
type Overrides struct {
	Mode         *string
	Workers      *int
	QuotaLimit   *int
	WordFallback *bool
	Journal      *string
	PreviewPort  *int
}

var validate = validator.New()

// New creates a new EnvConfig using the overlay file named by GHOSTVID_CONFIG, if any
func New() (*EnvConfig, error) {
	return Load("")
}

// Load creates a new EnvConfig. overlayPath, when non-empty, wins over GHOSTVID_CONFIG.
func Load(overlayPath string) (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	wf := DefaultWordFallback
	cfg := &EnvConfig{s: settings{
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		DataDir:      defaultDataDir(),
		Mode:         DefaultMode,
		Workers:      DefaultWorkers,
		QuotaLimit:   DefaultQuotaLimit,
		MaxResults:   DefaultMaxResults,
		WordFallback: &wf,
		APIRPS:       DefaultAPIRPS,
		Language:     DefaultLanguage,
		YTDLP:        DefaultYTDLP,
		FFmpeg:       DefaultFFmpeg,
		FFprobe:      DefaultFFprobe,
		PreviewPort:  DefaultPreviewPort,
	}}

	if overlayPath == "" {
		overlayPath = os.Getenv(EnvConfigFile)
	}
	if overlayPath != "" {
		if err := cfg.applyOverlay(overlayPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.apiKey = os.Getenv(EnvAPIKey)
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv(EnvAPIKeyFallback)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c.s); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.s.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.s.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.s.DataDir = v
	}
	if v := os.Getenv(EnvMode); v != "" {
		c.s.Mode = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLanguage); v != "" {
		c.s.Language = v
	}
	if v := os.Getenv(EnvYTDLP); v != "" {
		c.s.YTDLP = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.s.FFmpeg = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		c.s.FFprobe = v
	}
	if v := os.Getenv(EnvJournal); v != "" {
		c.s.Journal = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{EnvWorkers, &c.s.Workers},
		{EnvQuotaLimit, &c.s.QuotaLimit},
		{EnvMaxResults, &c.s.MaxResults},
		{EnvPreviewPort, &c.s.PreviewPort},
	}
	for _, it := range ints {
		v := os.Getenv(it.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.env, err)
		}
		*it.dst = n
	}

	if v := os.Getenv(EnvAPIRPS); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAPIRPS, err)
		}
		c.s.APIRPS = f
	}

	if v := os.Getenv(EnvWordFallback); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWordFallback, err)
		}
		c.s.WordFallback = &b
	}
	return nil
}

// Apply layers command-line overrides on top of the loaded configuration.
func (c *EnvConfig) Apply(o Overrides) error {
	if o.Mode != nil {
		c.s.Mode = strings.ToLower(*o.Mode)
	}
	if o.Workers != nil {
		c.s.Workers = *o.Workers
	}
	if o.QuotaLimit != nil {
		c.s.QuotaLimit = *o.QuotaLimit
	}
	if o.WordFallback != nil {
		wf := *o.WordFallback
		c.s.WordFallback = &wf
	}
	if o.Journal != nil {
		c.s.Journal = *o.Journal
	}
	if o.PreviewPort != nil {
		c.s.PreviewPort = *o.PreviewPort
	}
	return c.validate()
}

func (c *EnvConfig) validate() error {
	if err := validate.Struct(c.s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (got %v)", strings.ToLower(fe.Field()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when no key was found at startup
func (c *EnvConfig) RequireAPIKey() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.s.LogLevel
}

// LogFormat returns json or text
func (c *EnvConfig) LogFormat() string {
	return c.s.LogFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.s.DataDir
}

// ScratchDir returns the directory that holds per-fetch scratch slots
func (c *EnvConfig) ScratchDir() string {
	return filepath.Join(c.s.DataDir, "scratch")
}

// ClipsDir returns the directory that holds extracted clips
func (c *EnvConfig) ClipsDir() string {
	return filepath.Join(c.s.DataDir, "clips")
}

func (c *EnvConfig) Mode() string {
	return c.s.Mode
}

func (c *EnvConfig) Workers() int {
	return c.s.Workers
}

// QuotaLimit returns the per-process API unit budget
func (c *EnvConfig) QuotaLimit() int {
	return c.s.QuotaLimit
}

func (c *EnvConfig) MaxResults() int {
	return c.s.MaxResults
}

func (c *EnvConfig) WordFallback() bool {
	return c.s.WordFallback == nil || *c.s.WordFallback
}

// APIRPS returns the request rate allowed against the search provider
func (c *EnvConfig) APIRPS() float64 {
	return c.s.APIRPS
}

func (c *EnvConfig) Language() string {
	return c.s.Language
}

func (c *EnvConfig) YTDLPPath() string {
	return c.s.YTDLP
}

func (c *EnvConfig) FFmpegPath() string {
	return c.s.FFmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.s.FFprobe
}

// JournalDSN returns the run journal location; in-memory unless a file was configured
func (c *EnvConfig) JournalDSN() string {
	if c.s.Journal == "" {
		return MemoryJournal
	}
	return c.s.Journal
}

// JournalIsFile reports whether the journal survives the process
func (c *EnvConfig) JournalIsFile() bool {
	return c.s.Journal != ""
}

func (c *EnvConfig) PreviewPort() int {
	return c.s.PreviewPort
}

// APIKey returns the search API key
func (c *EnvConfig) APIKey() string {
	return c.apiKey
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
