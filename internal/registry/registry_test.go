package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/model"
	"github.com/cwbudde/goeda/internal/policy"
	"github.com/cwbudde/goeda/internal/problems"
	"github.com/cwbudde/goeda/internal/repr"
	"github.com/cwbudde/goeda/internal/rng"
)

func baseConfig(alg, rep string, repParams config.Params, prob string) *config.Config {
	cfg := config.Default()
	cfg.Algorithm = alg
	cfg.Seed = 11
	cfg.PopulationSize = 20
	cfg.Representation = config.Component{Type: rep, Params: repParams}
	cfg.Problem = config.Component{Type: prob}
	cfg.Stopping = config.Stopping{MaxIterations: 3}
	return cfg
}

func TestRegistry_DuplicateAndUnknown(t *testing.T) {
	r := New()
	ctor := func(config.Params, Env) (eda.SelectionPolicy, error) { return policy.Truncation{}, nil }
	require.NoError(t, r.RegisterSelection("truncation", ctor))
	assert.ErrorIs(t, r.RegisterSelection("truncation", ctor), ErrDuplicateType)
	assert.Error(t, r.RegisterSelection("", ctor))

	_, err := r.Algorithm("nope")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, []string{"truncation"}, r.List(KindSelection))
	assert.Empty(t, r.List(KindModel))
}

func TestDefault_Catalogue(t *testing.T) {
	r := Default()

	ids := make([]string, 0)
	for _, a := range r.Algorithms() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"categorical-umda", "cma-es", "ehm-eda", "full-gaussian-eda", "gaussian-eda", "pbil", "random-search", "umda"}, ids)
	assert.Equal(t, []string{"categorical", "cma-es", "ehm", "gaussian-diag", "gaussian-full", "pbil-frequency", "random", "umda-bernoulli"}, r.List(KindModel))
	assert.Len(t, r.List(KindRepresentation), 8)
	assert.Contains(t, r.List(KindProblem), "small-tsp")
	assert.Equal(t, []string{"identity", "rejection"}, r.List(KindConstraints))

	// Every catalogue default model must exist.
	for _, a := range r.Algorithms() {
		assert.Contains(t, r.List(KindModel), a.DefaultModel, a.ID)
	}
}

func TestBuild_DefaultGraph(t *testing.T) {
	cfg := baseConfig("umda", "bitstring", config.Params{"length": 16}, "onemax")
	cfg.Selection = config.Component{Type: "tournament", Params: config.Params{"size": 3}}
	cfg.Restart = config.Component{Type: "stagnation", Params: config.Params{"patience": 5}}
	cfg.Elitism = 2
	target := 16.0
	cfg.Stopping.Target = &target
	cfg.Stopping.Patience = 10

	g, err := Default().Build(cfg)
	require.NoError(t, err)

	c := g.Components
	assert.Equal(t, "umda", g.Algorithm.ID)
	assert.Equal(t, &repr.BitString{Length: 16}, c.Representation)
	assert.Equal(t, problems.OneMax{}, c.Problem)
	assert.Equal(t, "umda-bernoulli", c.Model.Name())
	assert.Equal(t, policy.Tournament{Size: 3}, c.Selection)
	assert.Equal(t, policy.Elitist{}, c.Replacement)
	assert.Equal(t, policy.Identity{}, c.Constraints)
	assert.Equal(t, policy.StagnationRestart{Patience: 5, Keep: 2}, c.Restart)
	assert.Equal(t, policy.Any{
		policy.BudgetOrTarget{MaxIterations: 3, Target: 16, HasTarget: true},
		policy.Stagnation{Patience: 10},
	}, c.Stopping)
	assert.Equal(t, engine.Options{AlgorithmID: "umda", PopulationSize: 20, SelectionRatio: 0.5, Elitism: 2}, g.Options)
}

func TestBuild_ConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		cfg       func() *config.Config
		component string
	}{
		{"unknown algorithm", func() *config.Config {
			return baseConfig("hill-climb", "bitstring", config.Params{"length": 8}, "onemax")
		}, "algorithm"},
		{"unknown representation", func() *config.Config {
			return baseConfig("umda", "tree", nil, "onemax")
		}, "representation"},
		{"bad representation params", func() *config.Config {
			return baseConfig("umda", "bitstring", config.Params{"length": "long"}, "onemax")
		}, "representation"},
		{"algorithm rejects representation", func() *config.Config {
			return baseConfig("umda", "real-vector", config.Params{"length": 4}, "sphere")
		}, "representation"},
		{"problem rejects representation", func() *config.Config {
			return baseConfig("random-search", "real-vector", config.Params{"length": 4}, "onemax")
		}, "problem"},
		{"trap length", func() *config.Config {
			return baseConfig("umda", "bitstring", config.Params{"length": 10}, "deceptive-trap")
		}, "problem"},
		{"model required", func() *config.Config {
			cfg := baseConfig("cma-es", "real-vector", config.Params{"length": 4}, "sphere")
			cfg.Model = &config.Component{Type: ModelNone}
			return cfg
		}, "model"},
		{"model rejects representation", func() *config.Config {
			cfg := baseConfig("random-search", "bitstring", config.Params{"length": 4}, "onemax")
			cfg.Model = &config.Component{Type: "gaussian-diag"}
			return cfg
		}, "model"},
		{"unknown selection", func() *config.Config {
			cfg := baseConfig("umda", "bitstring", config.Params{"length": 8}, "onemax")
			cfg.Selection.Type = "roulette"
			return cfg
		}, "selection"},
		{"bad restart", func() *config.Config {
			cfg := baseConfig("umda", "bitstring", config.Params{"length": 8}, "onemax")
			cfg.Restart = config.Component{Type: "stagnation", Params: config.Params{"patience": 0}}
			return cfg
		}, "restart"},
		{"invalid config", func() *config.Config {
			cfg := baseConfig("umda", "bitstring", config.Params{"length": 8}, "onemax")
			cfg.PopulationSize = 1
			return cfg
		}, "populationSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Default().Build(tt.cfg())
			var cerr *eda.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.component, cerr.Component)
		})
	}

	_, err := Default().Build(baseConfig("hill-climb", "bitstring", config.Params{"length": 8}, "onemax"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestBuild_ModelDefaults(t *testing.T) {
	r := Default()

	cfg := baseConfig("random-search", "permutation-vector", config.Params{"size": 6}, "small-tsp")
	cfg.Model = &config.Component{Type: ModelNone}
	g, err := r.Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, "random", g.Components.Model.Name())

	cfg = baseConfig("ehm-eda", "permutation-vector", config.Params{"size": 6}, "small-tsp")
	g, err = r.Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ehm", g.Components.Model.Name())

	cfg = baseConfig("gaussian-eda", "real-vector", config.Params{"length": 3}, "sphere")
	cfg.Model = &config.Component{Type: "cma-es", Params: config.Params{"restartPatience": 4}}
	g, err = r.Build(cfg)
	require.NoError(t, err)
	cma, ok := g.Components.Model.(*model.CMAES)
	require.True(t, ok)
	assert.InDelta(t, 3.0, cma.Sigma(), 1e-12)
}

func TestBuild_ProblemInstances(t *testing.T) {
	r := Default()

	cfg := baseConfig("pbil", "bitstring", config.Params{"length": 5}, "knapsack")
	cfg.Problem.Params = config.Params{"weights": []any{1, 2, 3, 4, 5}, "values": []any{5, 4, 3, 2, 1}, "capacity": 6}
	g, err := r.Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, 6.0, g.Components.Problem.(*problems.Knapsack).Capacity)

	cfg.Problem.Params = config.Params{"weights": []any{1, 2}, "values": []any{1, 2}, "capacity": 2}
	_, err = r.Build(cfg)
	assert.Error(t, err)

	// A random instance depends only on the seed.
	cfg.Problem.Params = nil
	g1, err := r.Build(cfg)
	require.NoError(t, err)
	g2, err := r.Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, g1.Components.Problem, g2.Components.Problem)

	cfg = baseConfig("ehm-eda", "permutation-vector", config.Params{"size": 3}, "small-tsp")
	cfg.Problem.Params = config.Params{"cities": []any{[]any{0, 0}, []any{3, 0}, []any{3, 4}}}
	g, err = r.Build(cfg)
	require.NoError(t, err)
	f, err := g.Components.Problem.Evaluate(context.Background(), eda.Permutation{0, 1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 12.0, f.Scalar(), 1e-12)
}

func TestBuild_RunsEndToEnd(t *testing.T) {
	cases := []*config.Config{
		baseConfig("umda", "bitstring", config.Params{"length": 12}, "leading-ones"),
		baseConfig("pbil", "bitstring", config.Params{"length": 12}, "deceptive-trap"),
		baseConfig("gaussian-eda", "real-vector", config.Params{"length": 3}, "rastrigin"),
		baseConfig("full-gaussian-eda", "real-vector", config.Params{"length": 3}, "bi-sphere"),
		baseConfig("cma-es", "real-vector", config.Params{"length": 3}, "sphere"),
		baseConfig("ehm-eda", "permutation-vector", config.Params{"size": 7}, "small-tsp"),
		baseConfig("random-search", "bitstring", config.Params{"length": 12}, "knapsack"),
		baseConfig("categorical-umda", "int-vector", config.Params{"length": 6, "min": -2, "max": 2}, "target-match"),
		baseConfig("categorical-umda", "categorical-vector", config.Params{"length": 5, "symbols": []any{"a", "b", "c"}}, "target-match"),
		baseConfig("categorical-umda", "mixed-discrete-vector", config.Params{"cardinalities": []any{2, 3, 4}}, "target-match"),
		baseConfig("categorical-umda", "variable-length-vector", config.Params{"minLength": 2, "maxLength": 6, "maxToken": 5}, "target-match"),
		baseConfig("categorical-umda", "mixed-real-discrete-vector", config.Params{"realDimensions": 2, "cardinalities": []any{3, 3}}, "mixed-sphere"),
		baseConfig("random-search", "variable-length-vector", config.Params{"minLength": 1, "maxLength": 4, "maxToken": 3}, "target-match"),
	}
	cases[6].Constraints = config.Component{Type: "rejection", Params: config.Params{"maxRetries": 3}}

	for _, cfg := range cases {
		t.Run(cfg.Algorithm+"/"+cfg.Representation.Type, func(t *testing.T) {
			g, err := Default().Build(cfg)
			require.NoError(t, err)
			a, err := engine.New(g.Components, g.Options, rng.NewManager(cfg.Seed), engine.NewParallelEvaluator(2), nil)
			require.NoError(t, err)

			ctx := context.Background()
			require.NoError(t, a.Initialize(ctx))
			for !a.ShouldStop() {
				require.NoError(t, a.Iterate(ctx))
			}
			assert.Equal(t, 3, a.State().Iteration)
			assert.Equal(t, int64(80), a.State().Evaluations)
		})
	}
}

func TestBuild_EveryRepresentationHasAProblem(t *testing.T) {
	r := Default()
	params := map[string]config.Params{
		"bitstring":                  {"length": 8},
		"real-vector":                {"length": 3},
		"int-vector":                 {"length": 4},
		"permutation-vector":         {"size": 5},
		"categorical-vector":         {"length": 4, "symbols": []any{"x", "y"}},
		"mixed-discrete-vector":      {"cardinalities": []any{2, 5}},
		"mixed-real-discrete-vector": {"realDimensions": 1, "cardinalities": []any{4}},
		"variable-length-vector":     {"minLength": 1, "maxLength": 3, "maxToken": 4},
	}
	require.Len(t, params, len(r.List(KindRepresentation)))

	for _, rep := range r.List(KindRepresentation) {
		built := 0
		for _, prob := range r.List(KindProblem) {
			if _, err := r.Build(baseConfig("random-search", rep, params[rep], prob)); err == nil {
				built++
			}
		}
		assert.Positive(t, built, rep)
	}
}

func TestBuild_TargetMatch(t *testing.T) {
	r := Default()

	cfg := baseConfig("categorical-umda", "categorical-vector", config.Params{"length": 3, "symbols": []any{"a", "b"}}, "target-match")
	cfg.Problem.Params = config.Params{"target": []any{"b", "a", "b"}}
	g, err := r.Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, eda.Categorical{"b", "a", "b"}, g.Components.Problem.(problems.TargetMatch).Target)
	assert.Equal(t, "categorical", g.Components.Model.Name())

	cfg.Problem.Params = config.Params{"target": []any{"b", "z", "b"}}
	_, err = r.Build(cfg)
	assert.Error(t, err)

	cfg = baseConfig("categorical-umda", "int-vector", config.Params{"length": 3, "min": 1, "max": 4}, "target-match")
	cfg.Problem.Params = config.Params{"target": []any{1, 4, 2}}
	g, err = r.Build(cfg)
	require.NoError(t, err)
	f, err := g.Components.Problem.Evaluate(context.Background(), eda.IntVector{1, 4, 3})
	require.NoError(t, err)
	assert.Equal(t, 2.0, f.Scalar())

	// A drawn target depends only on the seed and is valid.
	cfg.Problem.Params = nil
	g1, err := r.Build(cfg)
	require.NoError(t, err)
	g2, err := r.Build(cfg)
	require.NoError(t, err)
	target := g1.Components.Problem.(problems.TargetMatch).Target
	assert.Equal(t, target, g2.Components.Problem.(problems.TargetMatch).Target)
	assert.True(t, g1.Components.Representation.IsValid(target))

	_, err = r.Build(baseConfig("categorical-umda", "bitstring", config.Params{"length": 4}, "onemax"))
	assert.Error(t, err)
}
