// Package config loads and validates school_config.yaml, the process-wide
// school configuration the renderer and the chat engine read. The file is
// read-mostly: it is loaded once at startup and hot-reloaded between turns
// by the Watcher when it changes on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the store layout generation this build understands.
// The repository refuses to open a database with a different version.
const SchemaVersion = 3

// ErrIncomplete marks a configuration missing required school identity
// fields. The CLI maps it to the first-run configuration flow.
var ErrIncomplete = errors.New("school configuration incomplete")

// Config is the full school_config.yaml document.
type Config struct {
	SchoolInfo    SchoolInfo    `yaml:"school_info" validate:"required"`
	AcademicInfo  AcademicInfo  `yaml:"academic_info" validate:"required"`
	LocationInfo  LocationInfo  `yaml:"location_info"`
	Customization Customization `yaml:"customization"`
	Features      Features      `yaml:"features"`
	SystemInfo    SystemInfo    `yaml:"system_info"`
	LLM           LLMConfig     `yaml:"llm"`
	Paths         Paths         `yaml:"paths"`
}

// SchoolInfo identifies the school on every certificate.
type SchoolInfo struct {
	Name     string `yaml:"name" validate:"required"`
	CCT      string `yaml:"cct" validate:"required"`
	Director string `yaml:"director" validate:"required"`
	Logo     string `yaml:"logo"`
}

// AcademicInfo carries the current cycle and the subject catalog.
type AcademicInfo struct {
	CurrentYear string `yaml:"current_year" validate:"required"`
	// SubjectsByGrade maps grade (1-6) to the subject list printed when an
	// enrollment has no recorded grades and the fallback feature is on.
	SubjectsByGrade map[int][]string `yaml:"subjects_by_grade"`
}

// LocationInfo is the city/state line printed on certificates.
type LocationInfo struct {
	City  string `yaml:"city"`
	State string `yaml:"state"`
}

// Customization holds presentation knobs the templates read.
type Customization struct {
	AccentColor string `yaml:"accent_color"`
	FooterText  string `yaml:"footer_text"`
}

// Features are behavior flags.
type Features struct {
	// UseFallbackSubjects fills an empty grade table from the subject
	// catalog when rendering a calificaciones certificate.
	UseFallbackSubjects bool `yaml:"use_fallback_subjects"`
	// FallbackSubjectsForTransfer extends the fallback to traslado
	// certificates. Defaults on, matching the source behavior.
	FallbackSubjectsForTransfer bool `yaml:"fallback_subjects_for_transfer"`
	// IncludePhotoDefault is the photo policy when the user says nothing:
	// include the photo whenever one is available.
	IncludePhotoDefault bool `yaml:"include_photo_default"`
	// ConfirmBeforeGenerate makes the engine ask before rendering.
	ConfirmBeforeGenerate bool `yaml:"confirm_before_generate"`
}

// SystemInfo records provenance and the expected schema generation.
type SystemInfo struct {
	SchemaVersion int    `yaml:"schema_version"`
	Environment   string `yaml:"environment"` // development | production
	InstalledAt   string `yaml:"installed_at"`
}

// LLMConfig configures the interpreter transducer.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai-compatible | anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// Paths locates the mutable and template assets.
type Paths struct {
	Database  string `yaml:"database"`
	Templates string `yaml:"templates"`
	Output    string `yaml:"output"`
	PhotosDir string `yaml:"photos"`
}

// DefaultConfig returns the configuration a fresh install starts from.
// School identity fields are intentionally blank so Validate fails until
// the first-run flow fills them.
func DefaultConfig() *Config {
	return &Config{
		AcademicInfo: AcademicInfo{
			CurrentYear:     defaultSchoolYear(time.Now()),
			SubjectsByGrade: map[int][]string{},
		},
		Features: Features{
			UseFallbackSubjects:         true,
			FallbackSubjectsForTransfer: true,
			IncludePhotoDefault:         true,
			ConfirmBeforeGenerate:       false,
		},
		SystemInfo: SystemInfo{
			SchemaVersion: SchemaVersion,
			Environment:   "production",
		},
		LLM: LLMConfig{
			Provider: "openai-compatible",
			Model:    "gpt-4o-mini",
			Timeout:  "30s",
		},
		Paths: Paths{
			Database:  "data/alumnos.db",
			Templates: "templates",
			Output:    "constancias",
			PhotosDir: "fotos",
		},
	}
}

// defaultSchoolYear derives the cycle string for a date: August starts the
// new cycle.
func defaultSchoolYear(now time.Time) string {
	y := now.Year()
	if now.Month() < time.August {
		y--
	}
	return fmt.Sprintf("%d-%d", y, y+1)
}

// Load reads and validates the config at path. A missing file returns the
// defaults together with ErrIncomplete so callers can start the first-run
// flow without special-casing os.IsNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), ErrIncomplete
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config back to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

var validate = validator.New()

// Validate checks required fields and internal consistency. Missing school
// identity fields return ErrIncomplete; other problems return plain errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrIncomplete, verrs[0].Namespace())
		}
		return err
	}
	if c.SystemInfo.SchemaVersion != 0 && c.SystemInfo.SchemaVersion != SchemaVersion {
		return fmt.Errorf("config schema_version %d, this build expects %d", c.SystemInfo.SchemaVersion, SchemaVersion)
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			return fmt.Errorf("invalid llm.timeout: %w", err)
		}
	}
	switch c.SystemInfo.Environment {
	case "", "development", "production":
	default:
		return fmt.Errorf("invalid system_info.environment %q", c.SystemInfo.Environment)
	}
	return nil
}

// LLMTimeout returns the parsed interpreter timeout, defaulting to 30s.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Development reports whether the development flag is set. It changes
// logging verbosity only.
func (c *Config) Development() bool {
	return c.SystemInfo.Environment == "development"
}
