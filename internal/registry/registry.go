// Package registry maps component type ids to constructors and resolves an
// experiment configuration into an engine component graph.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
)

var (
	ErrUnknownType   = errors.New("unknown component type")
	ErrDuplicateType = errors.New("component type already registered")
)

// Kind is a component category.
type Kind string

const (
	KindAlgorithm      Kind = "algorithm"
	KindRepresentation Kind = "representation"
	KindProblem        Kind = "problem"
	KindModel          Kind = "model"
	KindSelection      Kind = "selection"
	KindReplacement    Kind = "replacement"
	KindConstraints    Kind = "constraints"
	KindRestart        Kind = "restart"
	KindNiching        Kind = "niching"
	KindLocalSearch    Kind = "localSearch"
)

// Kinds lists every category in configuration order.
func Kinds() []Kind {
	return []Kind{
		KindAlgorithm, KindRepresentation, KindProblem, KindModel, KindSelection,
		KindReplacement, KindConstraints, KindRestart, KindNiching, KindLocalSearch,
	}
}

// Env is the context a constructor sees besides its own parameters.
type Env struct {
	Representation eda.Representation
	Seed           uint64
	Elitism        int
}

// Constructor builds one component from its parameters.
type Constructor[T any] func(p config.Params, env Env) (T, error)

// ProblemSpec registers a problem with the representations it accepts.
type ProblemSpec struct {
	New             Constructor[eda.Problem]
	Representations []eda.Kind
}

// ModelSpec registers a model. An empty Representations list accepts all.
type ModelSpec struct {
	New             Constructor[eda.Model]
	Representations []eda.Kind
}

// AlgorithmSpec describes a catalogue entry.
type AlgorithmSpec struct {
	ID            string
	Description   string
	RequiresModel bool
	DefaultModel  string
	// Representations lists the accepted representations; empty accepts all.
	Representations []eda.Kind
}

func accepts(kinds []eda.Kind, k string) bool {
	return len(kinds) == 0 || slices.Contains(kinds, eda.Kind(k))
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]any
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[Kind]map[string]any)}
}

// Default returns a registry holding every built-in component.
func Default() *Registry {
	r := New()
	if err := RegisterDefaults(r); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) register(kind Kind, id string, v any) error {
	if id == "" {
		return fmt.Errorf("%s id is required", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.entries[kind]
	if m == nil {
		m = make(map[string]any)
		r.entries[kind] = m
	}
	if _, exists := m[id]; exists {
		return fmt.Errorf("%w: %s %s", ErrDuplicateType, kind, id)
	}
	m[id] = v
	return nil
}

func lookup[T any](r *Registry, kind Kind, id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	v, ok := r.entries[kind][id]
	if !ok {
		return zero, fmt.Errorf("%w: %s %q", ErrUnknownType, kind, id)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s %q has unexpected constructor %T", kind, id, v)
	}
	return t, nil
}

func (r *Registry) RegisterAlgorithm(spec AlgorithmSpec) error {
	return r.register(KindAlgorithm, spec.ID, spec)
}

func (r *Registry) RegisterRepresentation(id string, f Constructor[eda.Representation]) error {
	return r.register(KindRepresentation, id, f)
}

func (r *Registry) RegisterProblem(id string, spec ProblemSpec) error {
	return r.register(KindProblem, id, spec)
}

func (r *Registry) RegisterModel(id string, spec ModelSpec) error {
	return r.register(KindModel, id, spec)
}

func (r *Registry) RegisterSelection(id string, f Constructor[eda.SelectionPolicy]) error {
	return r.register(KindSelection, id, f)
}

func (r *Registry) RegisterReplacement(id string, f Constructor[eda.ReplacementPolicy]) error {
	return r.register(KindReplacement, id, f)
}

func (r *Registry) RegisterConstraints(id string, f Constructor[eda.ConstraintHandling]) error {
	return r.register(KindConstraints, id, f)
}

func (r *Registry) RegisterRestart(id string, f Constructor[eda.RestartPolicy]) error {
	return r.register(KindRestart, id, f)
}

func (r *Registry) RegisterNiching(id string, f Constructor[eda.NichingPolicy]) error {
	return r.register(KindNiching, id, f)
}

func (r *Registry) RegisterLocalSearch(id string, f Constructor[eda.LocalSearch]) error {
	return r.register(KindLocalSearch, id, f)
}

// Algorithm returns a catalogue entry.
func (r *Registry) Algorithm(id string) (AlgorithmSpec, error) {
	return lookup[AlgorithmSpec](r, KindAlgorithm, id)
}

// Algorithms returns the catalogue sorted by id.
func (r *Registry) Algorithms() []AlgorithmSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AlgorithmSpec, 0, len(r.entries[KindAlgorithm]))
	for _, v := range r.entries[KindAlgorithm] {
		out = append(out, v.(AlgorithmSpec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// List returns the registered ids of kind, sorted.
func (r *Registry) List(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries[kind]))
	for id := range r.entries[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
