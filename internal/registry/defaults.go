package registry

import (
	"errors"
	"fmt"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/model"
	"github.com/cwbudde/goeda/internal/policy"
	"github.com/cwbudde/goeda/internal/problems"
	"github.com/cwbudde/goeda/internal/repr"
	"github.com/cwbudde/goeda/internal/rng"
)

var (
	bitKinds  = []eda.Kind{eda.KindBitString}
	realKinds = []eda.Kind{eda.KindRealVector}
	permKinds = []eda.Kind{eda.KindPermutation}

	discreteKinds = []eda.Kind{
		eda.KindIntVector,
		eda.KindCategorical,
		eda.KindMixedDiscrete,
		eda.KindMixedRealDiscrete,
		eda.KindTokenSequence,
	}

	matchKinds = []eda.Kind{eda.KindIntVector, eda.KindCategorical, eda.KindMixedDiscrete, eda.KindTokenSequence}
	mixedKinds = []eda.Kind{eda.KindMixedRealDiscrete}
)

// Algorithms is the built-in catalogue.
func Algorithms() []AlgorithmSpec {
	return []AlgorithmSpec{
		{ID: "umda", Description: "univariate marginal distribution algorithm", RequiresModel: true, DefaultModel: "umda-bernoulli", Representations: bitKinds},
		{ID: "pbil", Description: "population-based incremental learning", RequiresModel: true, DefaultModel: "pbil-frequency", Representations: bitKinds},
		{ID: "gaussian-eda", Description: "continuous EDA with independent normals", RequiresModel: true, DefaultModel: "gaussian-diag", Representations: realKinds},
		{ID: "full-gaussian-eda", Description: "continuous EDA with a full covariance normal", RequiresModel: true, DefaultModel: "gaussian-full", Representations: realKinds},
		{ID: "cma-es", Description: "covariance matrix adaptation evolution strategy", RequiresModel: true, DefaultModel: "cma-es", Representations: realKinds},
		{ID: "ehm-eda", Description: "edge histogram model for permutations", RequiresModel: true, DefaultModel: "ehm", Representations: permKinds},
		{ID: "categorical-umda", Description: "univariate marginal model over discrete symbols", RequiresModel: true, DefaultModel: "categorical", Representations: discreteKinds},
		{ID: "random-search", Description: "uniform sampling baseline", RequiresModel: false, DefaultModel: "random"},
	}
}

// RegisterDefaults registers every built-in component into r.
func RegisterDefaults(r *Registry) error {
	var errs []error
	add := func(err error) { errs = append(errs, err) }

	for _, spec := range Algorithms() {
		add(r.RegisterAlgorithm(spec))
	}
	registerRepresentations(r, add)
	registerProblems(r, add)
	registerModels(r, add)
	registerPolicies(r, add)
	return errors.Join(errs...)
}

func registerRepresentations(r *Registry, add func(error)) {
	add(r.RegisterRepresentation(string(eda.KindBitString), func(p config.Params, _ Env) (eda.Representation, error) {
		n, err := p.Int("length", 0)
		if err != nil {
			return nil, err
		}
		return repr.NewBitString(n)
	}))
	add(r.RegisterRepresentation(string(eda.KindRealVector), func(p config.Params, _ Env) (eda.Representation, error) {
		n, err1 := p.Int("length", 0)
		lo, err2 := p.Float("lower", -5)
		hi, err3 := p.Float("upper", 5)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, err
		}
		return repr.NewRealVector(n, lo, hi)
	}))
	add(r.RegisterRepresentation(string(eda.KindIntVector), func(p config.Params, _ Env) (eda.Representation, error) {
		n, err1 := p.Int("length", 0)
		lo, err2 := p.Int("min", 0)
		hi, err3 := p.Int("max", 9)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, err
		}
		return repr.NewIntVector(n, lo, hi)
	}))
	add(r.RegisterRepresentation(string(eda.KindPermutation), func(p config.Params, _ Env) (eda.Representation, error) {
		n, err := p.Int("size", 0)
		if err != nil {
			return nil, err
		}
		return repr.NewPermutation(n)
	}))
	add(r.RegisterRepresentation(string(eda.KindCategorical), func(p config.Params, _ Env) (eda.Representation, error) {
		n, err1 := p.Int("length", 0)
		symbols, err2 := p.Strings("symbols", nil)
		if err := errors.Join(err1, err2); err != nil {
			return nil, err
		}
		return repr.NewCategorical(n, symbols)
	}))
	add(r.RegisterRepresentation(string(eda.KindMixedDiscrete), func(p config.Params, _ Env) (eda.Representation, error) {
		cards, err := p.Ints("cardinalities", nil)
		if err != nil {
			return nil, err
		}
		return repr.NewMixedDiscrete(cards)
	}))
	add(r.RegisterRepresentation(string(eda.KindMixedRealDiscrete), func(p config.Params, _ Env) (eda.Representation, error) {
		dims, err1 := p.Int("realDimensions", 0)
		cards, err2 := p.Ints("cardinalities", nil)
		lo, err3 := p.Float("lower", -5)
		hi, err4 := p.Float("upper", 5)
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return nil, err
		}
		return repr.NewMixedRealDiscrete(dims, cards, lo, hi)
	}))
	add(r.RegisterRepresentation(string(eda.KindTokenSequence), func(p config.Params, _ Env) (eda.Representation, error) {
		minLen, err1 := p.Int("minLength", 1)
		maxLen, err2 := p.Int("maxLength", 0)
		maxToken, err3 := p.Int("maxToken", 0)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, err
		}
		return repr.NewTokenSequence(minLen, maxLen, maxToken)
	}))
}

func bitLength(env Env) int {
	if b, ok := env.Representation.(*repr.BitString); ok {
		return b.Length
	}
	return 0
}

func registerProblems(r *Registry, add func(error)) {
	add(r.RegisterProblem("onemax", ProblemSpec{
		Representations: bitKinds,
		New:             func(config.Params, Env) (eda.Problem, error) { return problems.OneMax{}, nil },
	}))
	add(r.RegisterProblem("leading-ones", ProblemSpec{
		Representations: bitKinds,
		New:             func(config.Params, Env) (eda.Problem, error) { return problems.LeadingOnes{}, nil },
	}))
	add(r.RegisterProblem("deceptive-trap", ProblemSpec{
		Representations: bitKinds,
		New: func(p config.Params, env Env) (eda.Problem, error) {
			k, err := p.Int("k", 4)
			if err != nil {
				return nil, err
			}
			trap := problems.NewDeceptiveTrap(k)
			if n := bitLength(env); n%trap.K != 0 {
				return nil, fmt.Errorf("length %d is not a multiple of block size %d", n, trap.K)
			}
			return trap, nil
		},
	}))
	add(r.RegisterProblem("knapsack", ProblemSpec{
		Representations: bitKinds,
		New: func(p config.Params, env Env) (eda.Problem, error) {
			n := bitLength(env)
			if !p.Has("weights") {
				seed, err := p.Int("seed", int(env.Seed))
				if err != nil {
					return nil, err
				}
				return problems.NewRandomKnapsack(n, uint64(seed))
			}
			weights, err1 := p.Floats("weights", nil)
			values, err2 := p.Floats("values", nil)
			capacity, err3 := p.Float("capacity", 0)
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, err
			}
			if len(weights) != n {
				return nil, fmt.Errorf("%d items for a bitstring of length %d", len(weights), n)
			}
			return problems.NewKnapsack(weights, values, capacity)
		},
	}))
	add(r.RegisterProblem("sphere", ProblemSpec{
		Representations: realKinds,
		New:             func(config.Params, Env) (eda.Problem, error) { return problems.Sphere{}, nil },
	}))
	add(r.RegisterProblem("rastrigin", ProblemSpec{
		Representations: realKinds,
		New:             func(config.Params, Env) (eda.Problem, error) { return problems.Rastrigin{}, nil },
	}))
	add(r.RegisterProblem("bi-sphere", ProblemSpec{
		Representations: realKinds,
		New: func(p config.Params, _ Env) (eda.Problem, error) {
			shift, err1 := p.Float("shift", 1)
			weights, err2 := p.Floats("weights", nil)
			if err := errors.Join(err1, err2); err != nil {
				return nil, err
			}
			return problems.NewBiSphere(shift, weights), nil
		},
	}))
	add(r.RegisterProblem("small-tsp", ProblemSpec{
		Representations: permKinds,
		New: func(p config.Params, env Env) (eda.Problem, error) {
			size := env.Representation.(*repr.Permutation).Size
			cities, err := p.Points("cities")
			if err != nil {
				return nil, err
			}
			if cities == nil {
				seed, err := p.Int("seed", int(env.Seed))
				if err != nil {
					return nil, err
				}
				return problems.NewCircleTSP(size, uint64(seed))
			}
			if len(cities) != size {
				return nil, fmt.Errorf("%d cities for a permutation of size %d", len(cities), size)
			}
			return problems.NewTSP(cities)
		},
	}))
	add(r.RegisterProblem("target-match", ProblemSpec{
		Representations: matchKinds,
		New:             newTargetMatch,
	}))
	add(r.RegisterProblem("mixed-sphere", ProblemSpec{
		Representations: mixedKinds,
		New:             func(config.Params, Env) (eda.Problem, error) { return problems.MixedSphere{}, nil },
	}))
}

// newTargetMatch takes the target from params or draws a valid one from the
// representation with the problem seed.
func newTargetMatch(p config.Params, env Env) (eda.Problem, error) {
	rep := env.Representation
	if !p.Has("target") {
		seed, err := p.Int("seed", int(env.Seed))
		if err != nil {
			return nil, err
		}
		return problems.NewTargetMatch(rep.Random(rng.NewManager(uint64(seed)).Stream("problem")))
	}

	var target eda.Genotype
	switch rep.(type) {
	case *repr.Categorical:
		symbols, err := p.Strings("target", nil)
		if err != nil {
			return nil, err
		}
		target = eda.Categorical(symbols)
	default:
		codes, err := p.Ints("target", nil)
		if err != nil {
			return nil, err
		}
		switch rep.(type) {
		case *repr.IntVector:
			target = eda.IntVector(codes)
		case *repr.MixedDiscrete:
			target = eda.MixedDiscrete(codes)
		case *repr.TokenSequence:
			target = eda.TokenSequence(codes)
		default:
			return nil, fmt.Errorf("no target encoding for representation %s", rep.Type())
		}
	}
	if !rep.IsValid(target) {
		return nil, fmt.Errorf("target %s is not valid for representation %s", target, rep.Type())
	}
	return problems.NewTargetMatch(target)
}

func registerModels(r *Registry, add func(error)) {
	add(r.RegisterModel("umda-bernoulli", ModelSpec{
		Representations: bitKinds,
		New: func(p config.Params, _ Env) (eda.Model, error) {
			s, err := p.Float("smoothing", 0)
			if err != nil {
				return nil, err
			}
			return model.NewBernoulli(s), nil
		},
	}))
	add(r.RegisterModel("pbil-frequency", ModelSpec{
		Representations: bitKinds,
		New: func(p config.Params, _ Env) (eda.Model, error) {
			rate, err := p.Float("learningRate", 0.1)
			if err != nil {
				return nil, err
			}
			return model.NewPBIL(rate), nil
		},
	}))
	add(r.RegisterModel("gaussian-diag", ModelSpec{
		Representations: realKinds,
		New: func(p config.Params, _ Env) (eda.Model, error) {
			floor, err := p.Float("minSigma", 1e-8)
			if err != nil {
				return nil, err
			}
			return model.NewDiagonalGaussian(floor), nil
		},
	}))
	add(r.RegisterModel("gaussian-full", ModelSpec{
		Representations: realKinds,
		New: func(p config.Params, _ Env) (eda.Model, error) {
			jitter, err := p.Float("jitter", 1e-10)
			if err != nil {
				return nil, err
			}
			return model.NewFullGaussian(jitter), nil
		},
	}))
	add(r.RegisterModel("cma-es", ModelSpec{
		Representations: realKinds,
		New:             newCMAES,
	}))
	add(r.RegisterModel("ehm", ModelSpec{
		Representations: permKinds,
		New: func(p config.Params, _ Env) (eda.Model, error) {
			eps, err := p.Float("epsilon", 0.01)
			if err != nil {
				return nil, err
			}
			return model.NewEdgeHistogram(eps), nil
		},
	}))
	add(r.RegisterModel("categorical", ModelSpec{
		Representations: discreteKinds,
		New: func(p config.Params, env Env) (eda.Model, error) {
			s, err := p.Float("smoothing", 0.01)
			if err != nil {
				return nil, err
			}
			d, err := discreteDomain(env.Representation)
			if err != nil {
				return nil, err
			}
			return model.NewCategorical(d, s)
		},
	}))
	add(r.RegisterModel("random", ModelSpec{
		New: func(config.Params, Env) (eda.Model, error) { return model.NewRandom(), nil },
	}))
}

// discreteDomain describes rep's value coding for the categorical model.
func discreteDomain(rep eda.Representation) (model.Domain, error) {
	switch v := rep.(type) {
	case *repr.IntVector:
		cards := make([]int, v.Length)
		for i := range cards {
			cards[i] = v.Max - v.Min + 1
		}
		return model.Domain{Kind: eda.KindIntVector, Cardinalities: cards, Offset: v.Min}, nil
	case *repr.Categorical:
		cards := make([]int, v.Length)
		for i := range cards {
			cards[i] = len(v.Symbols)
		}
		return model.Domain{Kind: eda.KindCategorical, Cardinalities: cards, Symbols: v.Symbols}, nil
	case *repr.MixedDiscrete:
		return model.Domain{Kind: eda.KindMixedDiscrete, Cardinalities: v.Cardinalities}, nil
	case *repr.MixedRealDiscrete:
		return model.Domain{Kind: eda.KindMixedRealDiscrete, Cardinalities: v.Cardinalities, RealDimensions: v.RealDimensions}, nil
	case *repr.TokenSequence:
		return model.Domain{Kind: eda.KindTokenSequence, MinLength: v.MinLength, MaxLength: v.MaxLength, MaxToken: v.MaxToken}, nil
	default:
		return model.Domain{}, fmt.Errorf("representation %T has no discrete domain", rep)
	}
}

// newCMAES defaults the initial step size to 0.3 of the box width.
func newCMAES(p config.Params, env Env) (eda.Model, error) {
	cfg := model.DefaultCMAESConfig()
	if rv, ok := env.Representation.(*repr.RealVector); ok {
		cfg.InitialSigma = 0.3 * (rv.Upper - rv.Lower)
	}
	var errs [9]error
	cfg.InitialSigma, errs[0] = p.Float("initialSigma", cfg.InitialSigma)
	cfg.MinSigma, errs[1] = p.Float("minSigma", cfg.MinSigma)
	cfg.MaxSigma, errs[2] = p.Float("maxSigma", cfg.MaxSigma)
	cfg.MinEigenvalue, errs[3] = p.Float("minEigenvalue", cfg.MinEigenvalue)
	cfg.Jitter, errs[4] = p.Float("jitter", cfg.Jitter)
	cfg.Restart.Patience, errs[5] = p.Int("restartPatience", 0)
	cfg.Restart.Threshold, errs[6] = p.Float("restartThreshold", 1e-9)
	cfg.RestartSigmaFactor, errs[7] = p.Float("restartSigmaFactor", cfg.RestartSigmaFactor)
	cfg.Restart.Enabled, errs[8] = p.Bool("restart", cfg.Restart.Patience > 0)
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return model.NewCMAES(cfg), nil
}

func registerPolicies(r *Registry, add func(error)) {
	add(r.RegisterSelection("truncation", func(config.Params, Env) (eda.SelectionPolicy, error) {
		return policy.Truncation{}, nil
	}))
	add(r.RegisterSelection("tournament", func(p config.Params, _ Env) (eda.SelectionPolicy, error) {
		size, err := p.Int("size", 2)
		if err != nil {
			return nil, err
		}
		return policy.NewTournament(size), nil
	}))
	add(r.RegisterReplacement("elitist", func(config.Params, Env) (eda.ReplacementPolicy, error) {
		return policy.Elitist{}, nil
	}))
	add(r.RegisterConstraints("identity", func(config.Params, Env) (eda.ConstraintHandling, error) {
		return policy.Identity{}, nil
	}))
	add(r.RegisterConstraints("rejection", func(p config.Params, _ Env) (eda.ConstraintHandling, error) {
		retries, err := p.Int("maxRetries", policy.DefaultRejectionRetries)
		if err != nil {
			return nil, err
		}
		return policy.NewRejection(retries), nil
	}))
	add(r.RegisterRestart("none", func(config.Params, Env) (eda.RestartPolicy, error) {
		return policy.NoRestart{}, nil
	}))
	add(r.RegisterRestart("stagnation", func(p config.Params, env Env) (eda.RestartPolicy, error) {
		patience, err1 := p.Int("patience", 20)
		keep, err2 := p.Int("keep", max(1, env.Elitism))
		if err := errors.Join(err1, err2); err != nil {
			return nil, err
		}
		if patience <= 0 {
			return nil, fmt.Errorf("patience must be > 0, got %d", patience)
		}
		return policy.StagnationRestart{Patience: patience, Keep: keep}, nil
	}))
	add(r.RegisterNiching("none", func(config.Params, Env) (eda.NichingPolicy, error) {
		return policy.NoNiching{}, nil
	}))
	add(r.RegisterLocalSearch("none", func(config.Params, Env) (eda.LocalSearch, error) {
		return policy.NoLocalSearch{}, nil
	}))
}
