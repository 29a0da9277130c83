package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all genimg configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Project scopes ledger files and artifact directories.
	Project string `yaml:"project"`

	// Paths holds the on-disk layout (runs, projects, prompt sources).
	Paths PathsConfig `yaml:"paths"`

	// Browser configures the external interactive session.
	Browser BrowserConfig `yaml:"browser"`

	// Detection configures the completion detector budgets.
	Detection DetectionConfig `yaml:"detection"`

	// Locators overrides the built-in structural patterns per UI concept.
	Locators LocatorsConfig `yaml:"locators"`

	// Batch configures the orchestrator.
	Batch BatchConfig `yaml:"batch"`

	// Prompts configures prompt sources.
	Prompts PromptsConfig `yaml:"prompts"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig describes where genimg reads and writes.
type PathsConfig struct {
	// BasePath anchors every relative path below.
	BasePath string `yaml:"base_path"`
	// RunsDir holds per-project ledger documents and the attempt journal.
	RunsDir string `yaml:"runs_dir"`
	// ProjectsDir holds per-project prompts.json and images/.
	ProjectsDir string `yaml:"projects_dir"`
	// SourceDir holds per-project scene scripts (sub.json) for the extractor.
	SourceDir string `yaml:"source_dir"`
	// ProfileDir is the persistent browser profile.
	ProfileDir string `yaml:"profile_dir"`
}

// BatchConfig configures the batch orchestrator.
type BatchConfig struct {
	DelayBetween string `yaml:"delay_between"`
	KeepOpen     bool   `yaml:"keep_open"`
	// ImagesDir is the per-project artifact directory name under ProjectsDir/<project>.
	ImagesDir string `yaml:"images_dir"`
	// Journal toggles the SQLite attempt journal.
	Journal bool `yaml:"journal"`
}

// PromptsConfig configures prompt resolution and extraction.
type PromptsConfig struct {
	// Defaults are used when neither the env override nor the project file is present.
	Defaults []string `yaml:"defaults"`
	// MinContentLength filters short content-level prompts during extraction.
	MinContentLength int `yaml:"min_content_length"`
	// ExtractWorkers bounds concurrent directory processing in extract --all.
	ExtractWorkers int `yaml:"extract_workers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "genimg",
		Version: "0.3.0",
		Project: DefaultProject,

		Paths: PathsConfig{
			BasePath:    ".",
			RunsDir:     "runs",
			ProjectsDir: "projects",
			SourceDir:   filepath.Join("t_sozai", "upload_movies"),
			ProfileDir:  filepath.Join(".genimg", "profile"),
		},

		Browser:   DefaultBrowserConfig(),
		Detection: DefaultDetectionConfig(),

		Batch: BatchConfig{
			DelayBetween: "3s",
			ImagesDir:    "images",
			Journal:      true,
		},

		Prompts: PromptsConfig{
			MinContentLength: 10,
			ExtractWorkers:   4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// Return defaults if config file doesn't exist
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()
	cfg.Project = SanitizeProject(cfg.Project)

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("GENIMG_PROJECT"); p != "" {
		c.Project = p
	}

	// BASE_PATH is what the extractor stage has always read; the prefixed form wins.
	if p := os.Getenv("BASE_PATH"); p != "" {
		c.Paths.BasePath = p
	}
	if p := os.Getenv("GENIMG_BASE_PATH"); p != "" {
		c.Paths.BasePath = p
	}

	if v, ok := envBool("GENIMG_KEEP_OPEN"); ok {
		c.Batch.KeepOpen = v
	}
	if v, ok := envBool("GENIMG_HEADLESS"); ok {
		c.Browser.Headless = v
	}
	if u := os.Getenv("GENIMG_ENTRY_URL"); u != "" {
		c.Browser.EntryURL = u
	}
	if bin := os.Getenv("GENIMG_CHROME_BIN"); bin != "" {
		c.Browser.Bin = bin
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Logging.Level = strings.ToLower(lvl)
	}
}

func envBool(key string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// Resolve joins p onto BasePath unless p is already absolute.
func (p PathsConfig) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	base := p.BasePath
	if base == "" {
		base = "."
	}
	return filepath.Join(base, rel)
}

// RunsRoot returns the absolute-or-base-relative runs directory.
func (c *Config) RunsRoot() string {
	return c.Paths.Resolve(c.Paths.RunsDir)
}

// ProjectsRoot returns the projects directory.
func (c *Config) ProjectsRoot() string {
	return c.Paths.Resolve(c.Paths.ProjectsDir)
}

// SourceRoot returns the scene script directory.
func (c *Config) SourceRoot() string {
	return c.Paths.Resolve(c.Paths.SourceDir)
}

// ProfileRoot returns the persistent browser profile directory.
func (c *Config) ProfileRoot() string {
	return c.Paths.Resolve(c.Paths.ProfileDir)
}

// ImagesDir returns the artifact directory for the configured project.
func (c *Config) ImagesDir() string {
	name := c.Batch.ImagesDir
	if name == "" {
		name = "images"
	}
	return filepath.Join(c.ProjectsRoot(), c.Project, name)
}

// GetDelayBetween returns the pause between prompts.
func (c *Config) GetDelayBetween() time.Duration {
	return parseDuration(c.Batch.DelayBetween, 3*time.Second)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Browser.EntryURL == "" {
		return fmt.Errorf("browser.entry_url is required")
	}
	if c.Detection.MinPixels < 0 {
		return fmt.Errorf("detection.min_pixels must be >= 0")
	}
	for name, raw := range c.Detection.durations() {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("detection.%s: %w", name, err)
		}
	}
	if c.Prompts.ExtractWorkers < 0 {
		return fmt.Errorf("prompts.extract_workers must be >= 0")
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
