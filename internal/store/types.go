package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/repr"
	"github.com/cwbudde/goeda/internal/rng"
)

// SchemaVersion is the checkpoint document version this package writes.
const SchemaVersion = 1

// Float is a float64 that survives JSON even when it is not finite.
// NaN and infinities are written as the strings "NaN", "+Inf" and "-Inf".
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "NaN":
			*f = Float(math.NaN())
		case "+Inf", "Inf":
			*f = Float(math.Inf(1))
		case "-Inf":
			*f = Float(math.Inf(-1))
		default:
			return fmt.Errorf("invalid number %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func floats(v []float64) []Float {
	if v == nil {
		return nil
	}
	out := make([]Float, len(v))
	for i, x := range v {
		out[i] = Float(x)
	}
	return out
}

func unfloats(v []Float) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Member is one population entry.
type Member struct {
	Fitness Float `json:"fitness"`
	// Objectives and Weights are set for vector fitness only.
	Objectives []Float          `json:"objectives,omitempty"`
	Weights    []Float          `json:"weights,omitempty"`
	Genotype   json.RawMessage `json:"genotype"`
}

// Checkpoint is a durable snapshot of a run between two iterations.
type Checkpoint struct {
	SchemaVersion   int            `json:"schemaVersion"`
	Config          *config.Config `json:"config"`
	ConfigHash      string         `json:"configHash"`
	RunID           string         `json:"runId"`
	AlgorithmID     string         `json:"algorithmId"`
	Iteration       int            `json:"iteration"`
	Evaluations     int64          `json:"evaluations"`
	StartedAt       time.Time      `json:"startedAt"`
	LastImprovement int            `json:"lastImprovement"`
	Restarts        int            `json:"restarts"`
	RNG             rng.Snapshot   `json:"rng"`
	ModelState      eda.ModelState `json:"modelState"`
	Representation  string         `json:"representation"`
	Sense           string         `json:"sense"`
	Population      []Member       `json:"population"`
	SavedAt         time.Time      `json:"savedAt"`
}

// CheckpointInfo is the listing view of a checkpoint.
type CheckpointInfo struct {
	RunID       string    `json:"runId"`
	AlgorithmID string    `json:"algorithmId"`
	Name        string    `json:"name,omitempty"`
	Iteration   int       `json:"iteration"`
	Evaluations int64     `json:"evaluations"`
	BestFitness float64   `json:"bestFitness"`
	SavedAt     time.Time `json:"savedAt"`
	// Size is the encoded size in bytes of the run's stored checkpoints.
	Size int64 `json:"size"`
	// History is the number of iteration-addressed copies.
	History int `json:"history"`
}

// NewCheckpoint encodes an engine snapshot taken from a run of cfg.
func NewCheckpoint(cfg *config.Config, rep eda.Representation, snap engine.Snapshot) (*Checkpoint, error) {
	hash, err := cfg.Hash()
	if err != nil {
		return nil, err
	}
	st := snap.State
	if st.Population == nil {
		return nil, fmt.Errorf("snapshot has no population")
	}
	members := make([]Member, st.Population.Len())
	for i := range members {
		ind := st.Population.At(i)
		g, err := repr.EncodeGenotype(ind.Genotype)
		if err != nil {
			return nil, fmt.Errorf("failed to encode individual %d: %w", i, err)
		}
		m := Member{Fitness: Float(ind.Value()), Genotype: g}
		if vf, ok := ind.Fitness.(eda.VectorFitness); ok {
			m.Objectives = floats(vf.Objectives())
			m.Weights = floats(vf.Weights())
		}
		members[i] = m
	}
	return &Checkpoint{
		SchemaVersion:   SchemaVersion,
		Config:          cfg,
		ConfigHash:      hash,
		RunID:           st.RunID,
		AlgorithmID:     st.AlgorithmID,
		Iteration:       st.Iteration,
		Evaluations:     st.Evaluations,
		StartedAt:       st.StartedAt,
		LastImprovement: st.LastImprovement,
		Restarts:        st.Restarts,
		RNG:             snap.RNG,
		ModelState:      snap.Model,
		Representation:  rep.Type(),
		Sense:           st.Population.Sense().String(),
		Population:      members,
		SavedAt:         time.Now().UTC(),
	}, nil
}

// Snapshot decodes the checkpoint back into an engine snapshot.
func (c *Checkpoint) Snapshot() (engine.Snapshot, error) {
	sense, err := eda.ParseSense(c.Sense)
	if err != nil {
		return engine.Snapshot{}, &ValidationError{Field: "sense", Reason: err.Error()}
	}
	pop := eda.NewPopulation(sense)
	for i, m := range c.Population {
		g, err := repr.DecodeGenotype(c.Representation, m.Genotype)
		if err != nil {
			return engine.Snapshot{}, &ValidationError{Field: fmt.Sprintf("population[%d].genotype", i), Reason: err.Error()}
		}
		var f eda.Fitness = eda.ScalarFitness(m.Fitness)
		if m.Objectives != nil {
			f = eda.NewVectorFitness(unfloats(m.Objectives), unfloats(m.Weights))
		}
		pop.Add(eda.NewIndividual(g, f))
	}
	return engine.Snapshot{
		State: eda.AlgorithmState{
			RunID:           c.RunID,
			AlgorithmID:     c.AlgorithmID,
			Iteration:       c.Iteration,
			Evaluations:     c.Evaluations,
			StartedAt:       c.StartedAt,
			Population:      pop,
			LastImprovement: c.LastImprovement,
			Restarts:        c.Restarts,
		},
		Model: c.ModelState,
		RNG:   c.RNG,
	}, nil
}

// BestFitness returns the best member's fitness under the checkpoint sense.
func (c *Checkpoint) BestFitness() float64 {
	sense, _ := eda.ParseSense(c.Sense)
	best := sense.Worst()
	for _, m := range c.Population {
		if sense.Better(float64(m.Fitness), best) {
			best = float64(m.Fitness)
		}
	}
	return best
}

// ToInfo converts a checkpoint to its listing view.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	info := CheckpointInfo{
		RunID:       c.RunID,
		AlgorithmID: c.AlgorithmID,
		Iteration:   c.Iteration,
		Evaluations: c.Evaluations,
		BestFitness: c.BestFitness(),
		SavedAt:     c.SavedAt,
	}
	if c.Config != nil {
		info.Name = c.Config.Name
	}
	return info
}

// Validate checks the document shape.
func (c *Checkpoint) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return &ValidationError{Field: "schemaVersion", Reason: fmt.Sprintf("unsupported version %d (want %d)", c.SchemaVersion, SchemaVersion)}
	}
	if c.RunID == "" {
		return &ValidationError{Field: "runId", Reason: "cannot be empty"}
	}
	if c.AlgorithmID == "" {
		return &ValidationError{Field: "algorithmId", Reason: "cannot be empty"}
	}
	if c.Config == nil {
		return &ValidationError{Field: "config", Reason: "cannot be nil"}
	}
	if c.ConfigHash == "" {
		return &ValidationError{Field: "configHash", Reason: "cannot be empty"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "iteration", Reason: "cannot be negative"}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "evaluations", Reason: "cannot be negative"}
	}
	if c.Representation == "" {
		return &ValidationError{Field: "representation", Reason: "cannot be empty"}
	}
	if c.ModelState.Type == "" {
		return &ValidationError{Field: "modelState.type", Reason: "cannot be empty"}
	}
	if c.RNG.Version != rng.SnapshotVersion {
		return &ValidationError{Field: "rng.version", Reason: fmt.Sprintf("unsupported version %d", c.RNG.Version)}
	}
	if len(c.Population) == 0 {
		return &ValidationError{Field: "population", Reason: "cannot be empty"}
	}
	for i, m := range c.Population {
		if len(m.Genotype) == 0 {
			return &ValidationError{Field: fmt.Sprintf("population[%d].genotype", i), Reason: "cannot be empty"}
		}
	}
	if c.SavedAt.IsZero() {
		return &ValidationError{Field: "savedAt", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a malformed checkpoint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether the checkpoint can be resumed under cfg.
func (c *Checkpoint) IsCompatible(cfg *config.Config) error {
	if c.Config.Algorithm != cfg.Algorithm {
		return &CompatibilityError{Field: "algorithm", Expected: c.Config.Algorithm, Actual: cfg.Algorithm}
	}
	if c.Representation != cfg.Representation.Type {
		return &CompatibilityError{Field: "representation", Expected: c.Representation, Actual: cfg.Representation.Type}
	}
	if c.Config.Seed != cfg.Seed {
		return &CompatibilityError{Field: "seed", Expected: fmt.Sprint(c.Config.Seed), Actual: fmt.Sprint(cfg.Seed)}
	}
	hash, err := cfg.Hash()
	if err != nil {
		return err
	}
	if hash != c.ConfigHash {
		return &CompatibilityError{Field: "configHash", Expected: c.ConfigHash, Actual: hash}
	}
	return nil
}

// CompatibilityError represents a checkpoint taken under another
// configuration.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
