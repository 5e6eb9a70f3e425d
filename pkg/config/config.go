// Package config handles deployment configuration loading and validation.
// A Config is built once per invocation and never mutated afterwards;
// every component receives it at construction.
package config

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file omits a field
const (
	DefaultRegion         = "us-east-1"
	DefaultPollInterval   = 10 * time.Second
	DefaultStackTimeout   = 30 * time.Minute
	DefaultCredentialLen  = 32
	MinCredentialLen      = 20
	DefaultTemplatePath   = "infrastructure/template.yaml"
	DefaultFrontendDir    = "frontend"
	DefaultBuildCommand   = "npm run build"
	DefaultArtifactSubdir = "dist"
)

var stackNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)

// Config holds all settings for one orchestrator invocation
type Config struct {
	// Project is the short project identifier used to derive resource names
	Project string `yaml:"project"`

	// StackName is the provisioning stack to create or update
	StackName string `yaml:"stackName"`

	// Region is the target cloud region
	Region string `yaml:"region"`

	// TemplatePath points at the declarative stack template
	TemplatePath string `yaml:"templatePath"`

	// FrontendDir is the front-end source directory
	FrontendDir string `yaml:"frontendDir"`

	// BuildCommand builds the front-end artifact inside FrontendDir
	BuildCommand string `yaml:"buildCommand"`

	// ArtifactDir is the build output directory, relative to FrontendDir
	ArtifactDir string `yaml:"artifactDir"`

	// IdentityPoolRef optionally pins a pre-existing identity pool
	IdentityPoolRef string `yaml:"identityPoolRef"`

	// PollInterval is the fixed delay between stack status checks
	PollInterval time.Duration `yaml:"pollInterval"`

	// StackTimeout bounds how long a single lifecycle operation may poll
	StackTimeout time.Duration `yaml:"stackTimeout"`

	// CredentialLength is the generated credential length (min 20)
	CredentialLength int `yaml:"credentialLength"`
}

// Loader handles configuration loading and validation
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the YAML config file, applies environment overrides and
// defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{}

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("configuration file not found: %s", l.configPath)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	l.applyEnvironmentOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("SLOTH_DEPLOY_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("SLOTH_DEPLOY_STACK"); v != "" {
		cfg.StackName = v
	}
	if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" && cfg.Region == "" {
		cfg.Region = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Region == "" {
		cfg.Region = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Project == "" {
		cfg.Project = "kiro"
	}
	if cfg.StackName == "" {
		cfg.StackName = cfg.Project + "-webstack"
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.TemplatePath == "" {
		cfg.TemplatePath = DefaultTemplatePath
	}
	if cfg.FrontendDir == "" {
		cfg.FrontendDir = DefaultFrontendDir
	}
	if cfg.BuildCommand == "" {
		cfg.BuildCommand = DefaultBuildCommand
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = DefaultArtifactSubdir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StackTimeout <= 0 {
		cfg.StackTimeout = DefaultStackTimeout
	}
	if cfg.CredentialLength == 0 {
		cfg.CredentialLength = DefaultCredentialLen
	}
}

// Validate checks the configuration for internal consistency
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project name is required")
	}
	if !stackNameRe.MatchString(c.StackName) {
		return fmt.Errorf("invalid stack name %q: must start with a letter and contain only letters, digits, and hyphens", c.StackName)
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.CredentialLength < MinCredentialLen {
		return fmt.Errorf("credentialLength %d is below the minimum of %d", c.CredentialLength, MinCredentialLen)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive")
	}
	if c.StackTimeout < c.PollInterval {
		return fmt.Errorf("stackTimeout must be at least one pollInterval")
	}
	return nil
}

// SecretPath returns the deterministic secret-store path for the
// application credential, derived from project and stack name.
func (c *Config) SecretPath() string {
	return path.Join("/", c.Project, c.StackName, "app-credential")
}
