package config

import (
	"fmt"
	"math"
)

// Params is the free-form parameter map of a component section. Values come
// from YAML (int, float64, string, bool, []any) or from a checkpoint's JSON
// (numbers as float64); the accessors accept both.
type Params map[string]any

// ParamError reports a parameter of the wrong type or shape.
type ParamError struct {
	Key    string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("param %q: %s", e.Key, e.Reason)
}

// Has reports whether key is set.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Int returns an integral parameter or def when unset.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, ok := toInt(v)
	if !ok {
		return 0, &ParamError{Key: key, Reason: fmt.Sprintf("want integer, got %T(%v)", v, v)}
	}
	return n, nil
}

// Float returns a numeric parameter or def when unset.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, &ParamError{Key: key, Reason: fmt.Sprintf("want number, got %T(%v)", v, v)}
	}
	return f, nil
}

// Bool returns a boolean parameter or def when unset.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ParamError{Key: key, Reason: fmt.Sprintf("want bool, got %T(%v)", v, v)}
	}
	return b, nil
}

// String returns a string parameter or def when unset.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ParamError{Key: key, Reason: fmt.Sprintf("want string, got %T(%v)", v, v)}
	}
	return s, nil
}

// Floats returns a numeric list or def when unset.
func (p Params) Floats(key string, def []float64) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	items, ok := toList(v)
	if !ok {
		return nil, &ParamError{Key: key, Reason: fmt.Sprintf("want list, got %T", v)}
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, &ParamError{Key: key, Reason: fmt.Sprintf("element %d: want number, got %T(%v)", i, item, item)}
		}
		out[i] = f
	}
	return out, nil
}

// Ints returns an integer list or def when unset.
func (p Params) Ints(key string, def []int) ([]int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	items, ok := toList(v)
	if !ok {
		return nil, &ParamError{Key: key, Reason: fmt.Sprintf("want list, got %T", v)}
	}
	out := make([]int, len(items))
	for i, item := range items {
		n, ok := toInt(item)
		if !ok {
			return nil, &ParamError{Key: key, Reason: fmt.Sprintf("element %d: want integer, got %T(%v)", i, item, item)}
		}
		out[i] = n
	}
	return out, nil
}

// Strings returns a string list or def when unset.
func (p Params) Strings(key string, def []string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	items, ok := toList(v)
	if !ok {
		return nil, &ParamError{Key: key, Reason: fmt.Sprintf("want list, got %T", v)}
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &ParamError{Key: key, Reason: fmt.Sprintf("element %d: want string, got %T(%v)", i, item, item)}
		}
		out[i] = s
	}
	return out, nil
}

// Points returns a list of coordinate pairs, e.g. city positions.
func (p Params) Points(key string) ([][2]float64, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	rows, ok := toList(v)
	if !ok {
		return nil, &ParamError{Key: key, Reason: fmt.Sprintf("want list of pairs, got %T", v)}
	}
	out := make([][2]float64, len(rows))
	for i, row := range rows {
		pair, err := Params{key: row}.Floats(key, nil)
		if err != nil || len(pair) != 2 {
			return nil, &ParamError{Key: key, Reason: fmt.Sprintf("element %d: want [x, y]", i)}
		}
		out[i] = [2]float64{pair[0], pair[1]}
	}
	return out, nil
}

func toList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case uint:
		return float64(t), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case uint64:
		return int(t), true
	case uint:
		return int(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	}
	return 0, false
}
