// Package config loads harvester configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matsen/pubharvest/internal/flora"
	"github.com/matsen/pubharvest/internal/hal"
	"github.com/matsen/pubharvest/internal/openalex"
	"github.com/matsen/pubharvest/internal/source"
)

const (
	// DefaultConfigFile is read from the working directory when --config is not given.
	DefaultConfigFile = "pubharvest.yml"
	// DefaultDBFile is the store location when none is configured.
	DefaultDBFile = "pubharvest.db"
)

// Environment variables that override file values.
const (
	EnvFloraUser     = "FLORA_USER"
	EnvFloraPassword = "FLORA_PASSWORD"
	EnvDatabase      = "PUBHARVEST_DB"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete harvester configuration.
type Config struct {
	Database DatabaseSection `yaml:"database" json:"database"`
	HTTP     HTTPSection     `yaml:"http" json:"http"`
	OpenAlex OpenAlexSection `yaml:"openalex" json:"openalex"`
	HAL      HALSection      `yaml:"hal" json:"hal"`
	Flora    FloraSection    `yaml:"flora" json:"flora"`
}

// DatabaseSection locates the record store.
type DatabaseSection struct {
	Path string `yaml:"path" json:"path"`
}

// HTTPSection tunes the shared provider client.
type HTTPSection struct {
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit" json:"rate_limit"` // Requests per second
	Retries        int     `yaml:"retries" json:"retries"`       // Additional attempts after the first
	UserAgent      string  `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// OpenAlexSection configures the institution listing.
type OpenAlexSection struct {
	URL           string `yaml:"url" json:"url"`
	ROR           string `yaml:"ror" json:"ror"`
	InstitutionID string `yaml:"institution_id" json:"institution_id"`
	Year          int    `yaml:"publication_year" json:"publication_year"`
	PerPage       int    `yaml:"per_page" json:"per_page"`
	Search        string `yaml:"search,omitempty" json:"search,omitempty"`
}

// HALSection configures the repository search.
type HALSection struct {
	URL                 string `yaml:"url" json:"url"`
	Query               string `yaml:"query" json:"query"`
	Year                int    `yaml:"publication_year" json:"publication_year"`
	Rows                int    `yaml:"rows" json:"rows"`
	Sort                string `yaml:"sort" json:"sort"`
	MaxPages            int    `yaml:"max_pages" json:"max_pages"`
	MetadataConcurrency int    `yaml:"metadata_concurrency" json:"metadata_concurrency"`
}

// FloraSection configures the batch API. Credentials usually come from
// the environment.
type FloraSection struct {
	URL          string            `yaml:"url" json:"url"`
	User         string            `yaml:"user,omitempty" json:"user,omitempty"`
	Password     string            `yaml:"password,omitempty" json:"password,omitempty"`
	QueryParams  map[string]string `yaml:"query_params" json:"query_params"`
	RecordParams map[string]string `yaml:"record_params" json:"record_params"`
	BatchSize    int               `yaml:"batch_size" json:"batch_size"`
}

// Load reads the YAML file at path, then applies environment overrides
// and defaults. A missing file yields a configuration built from the
// environment and defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyEnv overrides file values with the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvFloraUser); v != "" {
		c.Flora.User = v
	}
	if v := os.Getenv(EnvFloraPassword); v != "" {
		c.Flora.Password = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database.Path = v
	}
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBFile
	}
	c.Database.Path = ExpandPath(c.Database.Path)

	if c.HTTP.TimeoutSeconds == 0 {
		c.HTTP.TimeoutSeconds = int(source.DefaultTimeout / time.Second)
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = source.DefaultRateLimit
	}

	if c.OpenAlex.URL == "" {
		c.OpenAlex.URL = openalex.BaseURL
	}
	if c.OpenAlex.PerPage == 0 {
		c.OpenAlex.PerPage = openalex.DefaultPerPage
	}

	if c.HAL.URL == "" {
		c.HAL.URL = hal.BaseURL
	}
	if c.HAL.Rows == 0 {
		c.HAL.Rows = hal.DefaultRows
	}
	if c.HAL.Sort == "" {
		c.HAL.Sort = hal.DefaultSort
	}
	if c.HAL.MaxPages == 0 {
		c.HAL.MaxPages = hal.DefaultMaxPages
	}
	if c.HAL.MetadataConcurrency == 0 {
		c.HAL.MetadataConcurrency = 1
	}

	if c.Flora.BatchSize == 0 {
		c.Flora.BatchSize = flora.DefaultBatchSize
	}
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is empty", ErrInvalid)
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: http.timeout_seconds must be positive", ErrInvalid)
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("%w: http.rate_limit must be positive", ErrInvalid)
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("%w: http.retries cannot be negative", ErrInvalid)
	}
	return nil
}

// ValidateSource checks the settings one provider needs before it can
// fetch.
func (c *Config) ValidateSource(kind source.Kind) error {
	switch kind {
	case source.OpenAlex:
		if c.OpenAlex.ROR == "" {
			return fmt.Errorf("%w: openalex.ror is required", ErrInvalid)
		}
		if c.OpenAlex.Search != "" && c.OpenAlex.InstitutionID == "" {
			return fmt.Errorf("%w: openalex.search requires openalex.institution_id", ErrInvalid)
		}
	case source.HAL:
		if c.HAL.Query == "" {
			return fmt.Errorf("%w: hal.query is required", ErrInvalid)
		}
		if c.HAL.MetadataConcurrency < 1 {
			return fmt.Errorf("%w: hal.metadata_concurrency must be at least 1", ErrInvalid)
		}
	case source.Flora:
		if c.Flora.URL == "" {
			return fmt.Errorf("%w: flora.url is required", ErrInvalid)
		}
		if c.Flora.User == "" || c.Flora.Password == "" {
			return fmt.Errorf("%w: flora credentials missing (set %s and %s)", ErrInvalid, EnvFloraUser, EnvFloraPassword)
		}
	}
	return nil
}

// ClientOptions returns the HTTP settings as source client options.
func (c *Config) ClientOptions() []source.ClientOption {
	opts := []source.ClientOption{
		source.WithTimeout(time.Duration(c.HTTP.TimeoutSeconds) * time.Second),
		source.WithRateLimit(c.HTTP.RateLimit),
		source.WithAttempts(c.HTTP.Retries + 1),
	}
	if c.HTTP.UserAgent != "" {
		opts = append(opts, source.WithUserAgent(c.HTTP.UserAgent))
	}
	return opts
}

// Fetcher converts the section to the OpenAlex fetcher settings.
func (s OpenAlexSection) Fetcher() openalex.Config {
	return openalex.Config{
		URL:           s.URL,
		ROR:           s.ROR,
		InstitutionID: s.InstitutionID,
		Year:          s.Year,
		PerPage:       s.PerPage,
		Search:        s.Search,
	}
}

// Fetcher converts the section to the HAL fetcher settings.
func (s HALSection) Fetcher() hal.Config {
	return hal.Config{
		URL:                 s.URL,
		Query:               s.Query,
		Year:                s.Year,
		Rows:                s.Rows,
		Sort:                s.Sort,
		MaxPages:            s.MaxPages,
		MetadataConcurrency: s.MetadataConcurrency,
	}
}

// Fetcher converts the section to the Flora fetcher settings.
func (s FloraSection) Fetcher() flora.Config {
	return flora.Config{
		URL:          s.URL,
		User:         s.User,
		Password:     s.Password,
		QueryParams:  s.QueryParams,
		RecordParams: s.RecordParams,
		BatchSize:    s.BatchSize,
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Flora.Password != "" {
		c.Flora.Password = "********"
	}
	return c
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
