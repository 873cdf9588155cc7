// Package projectconfig provides the ProjectConfig struct and loader for
// .peerbench.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anushabukke/peerBench-sub002/internal/utils"
)

// FileName is the project configuration file looked up from the working
// directory upwards.
const FileName = ".peerbench.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultResultsDir = "results/"

	DefaultTemperature       = 0.0
	DefaultMaxTokens         = 4096
	DefaultMaxRetries        = 3
	DefaultRetryDelayMs      = 500
	DefaultRateLimit         = 20
	DefaultRateLimitWindowMs = 3000
	DefaultTimeout           = 120
	DefaultWorkers           = 4

	DefaultJudgeProvider = "openrouter"
	DefaultJudgeModel    = "openai/gpt-4o-mini"

	DefaultCacheDir      = ".peerbench-cache"
	DefaultLedgerPath    = "results/ledger.db"
	DefaultArchiveBucket = "peerbench-artifacts"
	DefaultArchivePrefix = "runs/"
)

// PathsConfig holds output locations.
type PathsConfig struct {
	Results string `yaml:"results,omitempty"`
}

// DefaultsConfig holds default forwarding parameters. MaxInFlight of 0 leaves
// concurrent in-flight calls per provider unbounded.
type DefaultsConfig struct {
	Temperature       *float64 `yaml:"temperature,omitempty"`
	MaxTokens         int      `yaml:"max_tokens,omitempty"`
	MaxRetries        int      `yaml:"max_retries,omitempty"`
	RetryDelayMs      int      `yaml:"retry_delay_ms,omitempty"`
	RateLimit         int      `yaml:"rate_limit,omitempty"`
	RateLimitWindowMs int      `yaml:"rate_limit_window_ms,omitempty"`
	MaxInFlight       int      `yaml:"max_in_flight,omitempty"`
	Timeout           int      `yaml:"timeout,omitempty"`
	Workers           int      `yaml:"workers,omitempty"`
}

// ProviderConfig overrides connection and limiting settings for one provider.
// Type names the backend when the provider id is not a built-in one, so
// several differently configured providers can share a backend.
type ProviderConfig struct {
	Type              string         `yaml:"type,omitempty"`
	Extra             map[string]any `yaml:"extra,omitempty"`
	APIKeyEnv         string         `yaml:"api_key_env,omitempty"`
	BaseURL           string         `yaml:"base_url,omitempty"`
	RateLimit         int            `yaml:"rate_limit,omitempty"`
	RateLimitWindowMs int            `yaml:"rate_limit_window_ms,omitempty"`
	MaxRetries        int            `yaml:"max_retries,omitempty"`
	MaxInFlight       int            `yaml:"max_in_flight,omitempty"`
}

// JudgeConfig selects the model used by the llm-judge scorer.
type JudgeConfig struct {
	Provider    string   `yaml:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// CacheConfig holds forward-response cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// ArchiveConfig configures upload of finalized files to S3-compatible storage.
type ArchiveConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	Bucket       string `yaml:"bucket,omitempty"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	AccessKeyEnv string `yaml:"access_key_env,omitempty"`
	SecretKeyEnv string `yaml:"secret_key_env,omitempty"`
	UseSSL       *bool  `yaml:"use_ssl,omitempty"`
	Compress     *bool  `yaml:"compress,omitempty"`
}

// LedgerConfig configures the local SQLite record of finalized files.
type LedgerConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	File string `yaml:"file,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .peerbench.yaml.
type ProjectConfig struct {
	Paths     PathsConfig               `yaml:"paths,omitempty"`
	Defaults  DefaultsConfig            `yaml:"defaults,omitempty"`
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
	Judge     JudgeConfig               `yaml:"judge,omitempty"`
	Pricing   map[string]ModelPrice     `yaml:"pricing,omitempty"`
	Cache     CacheConfig               `yaml:"cache,omitempty"`
	Archive   ArchiveConfig             `yaml:"archive,omitempty"`
	Ledger    LedgerConfig              `yaml:"ledger,omitempty"`
	Metrics   MetricsConfig             `yaml:"metrics,omitempty"`

	// Dir is the directory the config file was found in. Relative paths in
	// the file are resolved against it. Empty when no file was found.
	Dir string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Results: DefaultResultsDir,
		},
		Defaults: DefaultsConfig{
			Temperature:       floatPtr(DefaultTemperature),
			MaxTokens:         DefaultMaxTokens,
			MaxRetries:        DefaultMaxRetries,
			RetryDelayMs:      DefaultRetryDelayMs,
			RateLimit:         DefaultRateLimit,
			RateLimitWindowMs: DefaultRateLimitWindowMs,
			Timeout:           DefaultTimeout,
			Workers:           DefaultWorkers,
		},
		Providers: map[string]ProviderConfig{},
		Judge: JudgeConfig{
			Provider: DefaultJudgeProvider,
			Model:    DefaultJudgeModel,
		},
		Pricing: map[string]ModelPrice{},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
		Archive: ArchiveConfig{
			Enabled:  boolPtr(false),
			Bucket:   DefaultArchiveBucket,
			Prefix:   DefaultArchivePrefix,
			UseSSL:   boolPtr(true),
			Compress: boolPtr(false),
		},
		Ledger: LedgerConfig{
			Enabled: boolPtr(false),
			Path:    DefaultLedgerPath,
		},
	}
}

// Load finds .peerbench.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults. Relative output
// paths are resolved against the directory holding the file, so commands
// run from a subdirectory still write to the project.
// If no config file is found, returns defaults with a nil error.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, dir, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	cfg.Dir = dir
	cfg.resolvePaths()
	return cfg, nil
}

func (c *ProjectConfig) resolvePaths() {
	fields := []*string{&c.Paths.Results, &c.Cache.Dir, &c.Ledger.Path, &c.Metrics.File}
	var set []string
	var targets []*string
	for _, f := range fields {
		if *f != "" {
			set = append(set, *f)
			targets = append(targets, f)
		}
	}
	for i, resolved := range utils.ResolvePaths(set, c.Dir) {
		*targets[i] = resolved
	}
}

// Provider returns the effective settings for provider id, with unset
// fields taken from Defaults.
func (c *ProjectConfig) Provider(id string) ProviderConfig {
	pc := c.Providers[id]
	if pc.RateLimit == 0 {
		pc.RateLimit = c.Defaults.RateLimit
	}
	if pc.RateLimitWindowMs == 0 {
		pc.RateLimitWindowMs = c.Defaults.RateLimitWindowMs
	}
	if pc.MaxRetries == 0 {
		pc.MaxRetries = c.Defaults.MaxRetries
	}
	if pc.MaxInFlight == 0 {
		pc.MaxInFlight = c.Defaults.MaxInFlight
	}
	return pc
}

// Price returns the configured pricing for model, if any.
func (c *ProjectConfig) Price(model string) (ModelPrice, bool) {
	p, ok := c.Pricing[model]
	return p, ok
}

// RetryDelay returns Defaults.RetryDelayMs as a duration.
func (c *ProjectConfig) RetryDelay() time.Duration {
	return time.Duration(c.Defaults.RetryDelayMs) * time.Millisecond
}

// RequestTimeout returns Defaults.Timeout as a duration.
func (c *ProjectConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Defaults.Timeout) * time.Second
}

// findConfigFile walks up from dir looking for .peerbench.yaml (max 10
// levels) and returns its content and directory. Returns os.ErrNotExist if no
// config file is found.
func findConfigFile(dir string) ([]byte, string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, "", os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}

	d, s := &dst.Defaults, &src.Defaults
	if s.Temperature != nil {
		d.Temperature = s.Temperature
	}
	if s.MaxTokens != 0 {
		d.MaxTokens = s.MaxTokens
	}
	if s.MaxRetries != 0 {
		d.MaxRetries = s.MaxRetries
	}
	if s.RetryDelayMs != 0 {
		d.RetryDelayMs = s.RetryDelayMs
	}
	if s.RateLimit != 0 {
		d.RateLimit = s.RateLimit
	}
	if s.RateLimitWindowMs != 0 {
		d.RateLimitWindowMs = s.RateLimitWindowMs
	}
	if s.MaxInFlight != 0 {
		d.MaxInFlight = s.MaxInFlight
	}
	if s.Timeout != 0 {
		d.Timeout = s.Timeout
	}
	if s.Workers != 0 {
		d.Workers = s.Workers
	}

	for id, pc := range src.Providers {
		dst.Providers[id] = pc
	}
	for model, price := range src.Pricing {
		dst.Pricing[model] = price
	}

	if src.Judge.Provider != "" {
		dst.Judge.Provider = src.Judge.Provider
	}
	if src.Judge.Model != "" {
		dst.Judge.Model = src.Judge.Model
	}
	if src.Judge.Temperature != nil {
		dst.Judge.Temperature = src.Judge.Temperature
	}

	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}

	a, sa := &dst.Archive, &src.Archive
	if sa.Enabled != nil {
		a.Enabled = sa.Enabled
	}
	if sa.Endpoint != "" {
		a.Endpoint = sa.Endpoint
	}
	if sa.Bucket != "" {
		a.Bucket = sa.Bucket
	}
	if sa.Prefix != "" {
		a.Prefix = sa.Prefix
	}
	if sa.Region != "" {
		a.Region = sa.Region
	}
	if sa.AccessKeyEnv != "" {
		a.AccessKeyEnv = sa.AccessKeyEnv
	}
	if sa.SecretKeyEnv != "" {
		a.SecretKeyEnv = sa.SecretKeyEnv
	}
	if sa.UseSSL != nil {
		a.UseSSL = sa.UseSSL
	}
	if sa.Compress != nil {
		a.Compress = sa.Compress
	}

	if src.Ledger.Enabled != nil {
		dst.Ledger.Enabled = src.Ledger.Enabled
	}
	if src.Ledger.Path != "" {
		dst.Ledger.Path = src.Ledger.Path
	}

	if src.Metrics.File != "" {
		dst.Metrics.File = src.Metrics.File
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func floatPtr(f float64) *float64 {
	return &f
}
