package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/unnamedteam/docserver/internal/domain"
)

// Content sources
const (
	SourceAPI = "api"
	SourceGit = "git"
)

// OrganizationRegex validates GitHub organization logins
var OrganizationRegex = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,37}[a-zA-Z0-9])?$`)

// Config holds all application configuration
type Config struct {
	// GitHub settings
	Organization string `validate:"required,github_org"`
	GitHubAPIURL string `validate:"omitempty,url"`
	GitHubToken  string

	// GitHub App authentication, takes precedence over GitHubToken
	GitHubAppID          int64
	GitHubAppPrivateKey  []byte `validate:"required_with=GitHubAppID"`
	GitHubInstallationID int64  `validate:"required_with=GitHubAppID"`

	// Content settings
	ContentSource string `validate:"oneof=api git"`
	RawContentURL string `validate:"required,url"`
	GitBaseURL    string `validate:"omitempty,url"`
	DataPath      string `validate:"required_if=ContentSource git"`

	// Maven metadata source for version macros
	NexusURL          string `validate:"required,url"`
	MavenRepository   string `validate:"required"`
	MetadataCacheSize int    `validate:"gt=0"`

	// Cache and build settings
	CacheTTL         time.Duration `validate:"gt=0"`
	FetchTimeout     time.Duration `validate:"gt=0"`
	BuildConcurrency int           `validate:"min=1,max=64"`
	RefreshInterval  time.Duration `validate:"gt=0"`

	// Per-project overrides loaded from ProjectsFile
	ProjectsFile string
	Projects     map[string]domain.ProjectSettings

	// Server settings
	Port int `validate:"min=1,max=65535"`

	// Observability
	OTLPEndpoint string
	LogLevel     slog.Level
}

// ProjectsFile is the layout of the projects file
type ProjectsFile struct {
	Projects map[string]domain.ProjectSettings `yaml:"projects"`
	// Exclude lists repositories hidden from the project map
	Exclude []string `yaml:"exclude"`
}

// NewValidator creates a configured validator instance
func NewValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("github_org", func(fl validator.FieldLevel) bool {
		return OrganizationRegex.MatchString(fl.Field().String())
	})

	return v
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		// Defaults
		RawContentURL:     "https://raw.githubusercontent.com",
		ContentSource:     SourceAPI,
		GitBaseURL:        "https://github.com",
		DataPath:          "/data",
		MavenRepository:   "maven-public",
		MetadataCacheSize: 1000,
		CacheTTL:          15 * time.Minute,
		FetchTimeout:      10 * time.Minute,
		BuildConcurrency:  8,
		RefreshInterval:   10 * time.Minute,
		Port:              8080,
		LogLevel:          slog.LevelInfo,
	}

	cfg.Organization = os.Getenv("GITHUB_ORGANIZATION")
	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")
	cfg.NexusURL = os.Getenv("NEXUS_URL")
	cfg.ProjectsFile = os.Getenv("PROJECTS_FILE")

	setString(&cfg.GitHubAPIURL, "GITHUB_API_URL")
	setString(&cfg.RawContentURL, "RAW_CONTENT_URL")
	setString(&cfg.ContentSource, "CONTENT_SOURCE")
	setString(&cfg.GitBaseURL, "GIT_BASE_URL")
	setString(&cfg.DataPath, "DATA_PATH")
	setString(&cfg.MavenRepository, "MAVEN_REPOSITORY")

	var err error
	if cfg.GitHubAppID, err = int64Var("GITHUB_APP_ID", 0); err != nil {
		return nil, err
	}
	if cfg.GitHubInstallationID, err = int64Var("GITHUB_INSTALLATION_ID", 0); err != nil {
		return nil, err
	}

	// Private key can be provided as file path or direct value
	if path := os.Getenv("GITHUB_APP_PRIVATE_KEY_PATH"); path != "" {
		key, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		cfg.GitHubAppPrivateKey = key
	} else if v := os.Getenv("GITHUB_APP_PRIVATE_KEY"); v != "" {
		cfg.GitHubAppPrivateKey = []byte(v)
	}

	if cfg.MetadataCacheSize, err = intVar("METADATA_CACHE_SIZE", cfg.MetadataCacheSize); err != nil {
		return nil, err
	}
	if cfg.BuildConcurrency, err = intVar("BUILD_CONCURRENCY", cfg.BuildConcurrency); err != nil {
		return nil, err
	}
	if cfg.Port, err = intVar("PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = durationVar("CACHE_TTL", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationVar("FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = durationVar("REFRESH_INTERVAL", cfg.RefreshInterval); err != nil {
		return nil, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	if cfg.ProjectsFile != "" {
		projects, err := LoadProjects(cfg.ProjectsFile)
		if err != nil {
			return nil, err
		}
		cfg.Projects = projects
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := NewValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadProjects reads per-project overrides from a YAML file. Repositories
// listed under exclude are marked excluded.
func LoadProjects(filename string) (map[string]domain.ProjectSettings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects file %s: %w", filename, err)
	}

	var file ProjectsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("failed to parse projects file %s: %w", filename, err)
	}

	projects := make(map[string]domain.ProjectSettings, len(file.Projects)+len(file.Exclude))
	for name, settings := range file.Projects {
		projects[name] = settings
	}
	for _, name := range file.Exclude {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		settings := projects[name]
		settings.Exclude = true
		projects[name] = settings
	}
	return projects, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intVar(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func int64Var(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
