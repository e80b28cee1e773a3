package repr

import (
	"encoding/json"
	"fmt"

	"github.com/cwbudde/goeda/internal/eda"
)

type mixedRealDiscreteJSON struct {
	Real     []float64 `json:"real"`
	Discrete []int     `json:"discrete"`
}

// EncodeGenotype serializes g in its representation-typed form: bit strings
// as "0101" strings, numeric vectors as arrays, categorical vectors as
// string arrays and mixed real/discrete vectors as {real, discrete}.
func EncodeGenotype(g eda.Genotype) (json.RawMessage, error) {
	var v any
	switch t := g.(type) {
	case eda.BitString:
		v = t.String()
	case eda.RealVector:
		v = []float64(t)
	case eda.IntVector:
		v = []int(t)
	case eda.Permutation:
		v = []int(t)
	case eda.MixedDiscrete:
		v = []int(t)
	case eda.TokenSequence:
		v = []int(t)
	case eda.Categorical:
		v = []string(t)
	case eda.MixedRealDiscrete:
		v = mixedRealDiscreteJSON{Real: t.Real, Discrete: t.Discrete}
	default:
		return nil, fmt.Errorf("unsupported genotype %T", g)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s genotype: %w", g.Kind(), err)
	}
	return data, nil
}

// DecodeGenotype parses data as a genotype of the given representation type.
func DecodeGenotype(repType string, data json.RawMessage) (eda.Genotype, error) {
	switch eda.Kind(repType) {
	case eda.KindBitString:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode bitstring: %w", err)
		}
		g := make(eda.BitString, len(s))
		for i, c := range s {
			switch c {
			case '1':
				g[i] = true
			case '0':
			default:
				return nil, fmt.Errorf("decode bitstring: invalid character %q", c)
			}
		}
		return g, nil
	case eda.KindRealVector:
		var v []float64
		err := json.Unmarshal(data, &v)
		return eda.RealVector(v), wrapDecode(repType, err)
	case eda.KindIntVector:
		var v []int
		err := json.Unmarshal(data, &v)
		return eda.IntVector(v), wrapDecode(repType, err)
	case eda.KindPermutation:
		var v []int
		err := json.Unmarshal(data, &v)
		return eda.Permutation(v), wrapDecode(repType, err)
	case eda.KindMixedDiscrete:
		var v []int
		err := json.Unmarshal(data, &v)
		return eda.MixedDiscrete(v), wrapDecode(repType, err)
	case eda.KindTokenSequence:
		var v []int
		err := json.Unmarshal(data, &v)
		return eda.TokenSequence(v), wrapDecode(repType, err)
	case eda.KindCategorical:
		var v []string
		err := json.Unmarshal(data, &v)
		return eda.Categorical(v), wrapDecode(repType, err)
	case eda.KindMixedRealDiscrete:
		var v mixedRealDiscreteJSON
		err := json.Unmarshal(data, &v)
		return eda.MixedRealDiscrete{Real: v.Real, Discrete: v.Discrete}, wrapDecode(repType, err)
	}
	return nil, fmt.Errorf("unknown representation type %q", repType)
}

func wrapDecode(repType string, err error) error {
	if err != nil {
		return fmt.Errorf("decode %s: %w", repType, err)
	}
	return nil
}
