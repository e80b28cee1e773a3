// Package config loads experiment configurations.
//
// A configuration names an algorithm and one section per component. Each
// section carries a type id resolved by the registry and a free-form
// parameter map.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/goeda/internal/eda"
)

// Environment variables that override file values.
const (
	EnvSeed            = "GOEDA_SEED"
	EnvOutputDir       = "GOEDA_OUTPUT_DIR"
	EnvWorkers         = "GOEDA_WORKERS"
	EnvCheckpointEvery = "GOEDA_CHECKPOINT_EVERY"
	EnvStore           = "GOEDA_STORE"
)

// Store backends.
const (
	StoreFS     = "fs"
	StoreBadger = "badger"
)

// Component is one typed section.
type Component struct {
	Type   string `yaml:"type" json:"type" validate:"required,typeid"`
	Params Params `yaml:"params,omitempty" json:"params,omitempty"`
}

// Stopping configures the budget. Zero values mean unlimited.
type Stopping struct {
	MaxIterations  int64    `yaml:"maxIterations" json:"maxIterations" validate:"gte=0"`
	MaxEvaluations int64    `yaml:"maxEvaluations" json:"maxEvaluations" validate:"gte=0"`
	Target         *float64 `yaml:"target,omitempty" json:"target,omitempty"`
	Patience       int      `yaml:"patience,omitempty" json:"patience,omitempty" validate:"gte=0"`
}

// Run holds execution settings. They do not influence the search and are
// left out of Hash.
type Run struct {
	Workers         int    `yaml:"workers" json:"workers" validate:"gte=0"`
	CheckpointEvery int    `yaml:"checkpointEvery" json:"checkpointEvery" validate:"gte=0"`
	KeepCheckpoints int    `yaml:"keepCheckpoints" json:"keepCheckpoints" validate:"gte=0"`
	OutputDir       string `yaml:"outputDir" json:"outputDir" validate:"required"`
	Store           string `yaml:"store" json:"store" validate:"oneof=fs badger"`
}

// Config is one experiment.
type Config struct {
	Name           string  `yaml:"name,omitempty" json:"name,omitempty"`
	RunID          string  `yaml:"runId,omitempty" json:"runId,omitempty"`
	Algorithm      string  `yaml:"algorithm" json:"algorithm" validate:"required,typeid"`
	Seed           uint64  `yaml:"seed" json:"seed"`
	PopulationSize int     `yaml:"populationSize" json:"populationSize" validate:"gte=2"`
	SelectionRatio float64 `yaml:"selectionRatio" json:"selectionRatio" validate:"gt=0,lte=1"`
	Elitism        int     `yaml:"elitism" json:"elitism" validate:"gte=0"`

	Representation Component  `yaml:"representation" json:"representation"`
	Problem        Component  `yaml:"problem" json:"problem"`
	Model          *Component `yaml:"model,omitempty" json:"model,omitempty"`
	Selection      Component  `yaml:"selection" json:"selection"`
	Replacement    Component  `yaml:"replacement" json:"replacement"`
	Constraints    Component  `yaml:"constraints" json:"constraints"`
	Restart        Component  `yaml:"restart" json:"restart"`
	Niching        Component  `yaml:"niching" json:"niching"`
	LocalSearch    Component  `yaml:"localSearch" json:"localSearch"`
	Stopping       Stopping   `yaml:"stopping" json:"stopping"`

	Run Run `yaml:"run" json:"run"`
}

// Default returns a configuration with every optional section filled in.
// Algorithm, representation and problem are left empty.
func Default() *Config {
	return &Config{
		PopulationSize: 100,
		SelectionRatio: 0.5,
		Elitism:        1,
		Selection:      Component{Type: "truncation"},
		Replacement:    Component{Type: "elitist"},
		Constraints:    Component{Type: "identity"},
		Restart:        Component{Type: "none"},
		Niching:        Component{Type: "none"},
		LocalSearch:    Component{Type: "none"},
		Stopping:       Stopping{MaxIterations: 100},
		Run: Run{
			CheckpointEvery: 10,
			OutputDir:       "./data",
			Store:           StoreFS,
		},
	}
}

var (
	validate   *validator.Validate
	typeIDExpr = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("typeid", func(fl validator.FieldLevel) bool {
		return typeIDExpr.MatchString(fl.Field().String())
	})
}

// Validate checks field constraints. Type ids are only checked for shape;
// the registry decides whether they exist.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return &eda.ConfigError{Component: field, Reason: describe(fe)}
		}
		return &eda.ConfigError{Component: "config", Reason: "invalid", Err: err}
	}
	s := c.Stopping
	if s.MaxIterations == 0 && s.MaxEvaluations == 0 && s.Target == nil && s.Patience == 0 {
		return &eda.ConfigError{Component: "stopping", Reason: "needs at least one of maxIterations, maxEvaluations, target or patience"}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "typeid":
		return fmt.Sprintf("%q is not a valid type id", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value())
	}
}

// Hash is the SHA-256 of the canonical JSON encoding without the Run
// section. Two configurations with the same hash produce the same search.
func (c *Config) Hash() (string, error) {
	cp := *c
	cp.Run = Run{}
	cp.RunID = ""
	data, err := json.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Clone returns a deep copy.
func (c *Config) Clone() (*Config, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &out, nil
}

// Manager loads and holds one configuration.
type Manager struct {
	config *Config
	path   string
	getenv func(string) string
}

// NewManager creates a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: Default(), getenv: os.Getenv}
}

// Load reads, overrides and validates the file at path.
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := m.Parse(data); err != nil {
		return err
	}
	m.path = path
	return nil
}

// Parse loads a YAML document. JSON is accepted as well.
func (m *Manager) Parse(data []byte) error {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := m.applyEnvOverrides(cfg); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	m.config = cfg
	return nil
}

// Save writes the held configuration as YAML.
func (m *Manager) Save(path string) error {
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Config returns the held configuration.
func (m *Manager) Config() *Config { return m.config }

// Path returns the file the configuration was loaded from.
func (m *Manager) Path() string { return m.path }

func (m *Manager) applyEnvOverrides(cfg *Config) error {
	if v := m.getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSeed, err)
		}
		cfg.Seed = seed
	}
	if v := m.getenv(EnvOutputDir); v != "" {
		cfg.Run.OutputDir = v
	}
	if v := m.getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Run.Workers = n
	}
	if v := m.getenv(EnvCheckpointEvery); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCheckpointEvery, err)
		}
		cfg.Run.CheckpointEvery = n
	}
	if v := m.getenv(EnvStore); v != "" {
		cfg.Run.Store = strings.ToLower(v)
	}
	return nil
}

// Load is a shorthand for NewManager().Load(path).
func Load(path string) (*Config, error) {
	m := NewManager()
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m.Config(), nil
}
