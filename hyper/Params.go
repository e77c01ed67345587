// Package hyper implements flat hyperparameter configurations that are
// assembled by merging several sources.
package hyper

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Params maps hyperparameter names to values. Values are whatever a
// YAML document decodes to: numbers, strings, booleans, lists, and
// nested maps.
type Params map[string]interface{}

// Merge returns a new Params holding the keys of every source. When
// more than one source defines a key, the value from the last of them
// is kept. Merging is shallow: a nested map in a later source replaces
// the earlier one entirely. Nil sources are skipped and no source is
// modified.
func Merge(sources ...Params) Params {
	merged := make(Params)
	for _, source := range sources {
		for key, value := range source {
			merged[key] = value
		}
	}
	return merged
}

// Clone returns a shallow copy of p
func (p Params) Clone() Params {
	return Merge(p)
}

// Has returns whether key is set
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Keys returns the keys of p in sorted order
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Float returns the number stored at key, or def if key is not set
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, err := toFloat(v)
	return f, errors.Wrapf(err, "hyperparameter %q", key)
}

// Int returns the integer stored at key, or def if key is not set.
// Floats with no fractional part are accepted.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, errors.Wrapf(err, "hyperparameter %q", key)
	}
	if f != math.Trunc(f) {
		return 0, errors.Errorf("hyperparameter %q: %v is not an integer",
			key, v)
	}
	return int(f), nil
}

// Bool returns the boolean stored at key, or def if key is not set
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("hyperparameter %q: %v (%T) is not a "+
			"boolean", key, v, v)
	}
	return b, nil
}

// Str returns the string stored at key, or def if key is not set
func (p Params) Str(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("hyperparameter %q: %v (%T) is not a "+
			"string", key, v, v)
	}
	return s, nil
}

// Map returns the nested configuration stored at key, or an empty
// Params if key is not set
func (p Params) Map(key string) (Params, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return Params{}, nil
	}
	switch m := v.(type) {
	case Params:
		return m, nil
	case map[string]interface{}:
		return Params(m), nil
	case map[interface{}]interface{}:
		out := make(Params, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, nil
	}
	return nil, errors.Errorf("hyperparameter %q: %v (%T) is not a map",
		key, v, v)
}

// YAML returns p as a YAML document with sorted keys
func (p Params) YAML() (string, error) {
	data, err := yaml.Marshal(map[string]interface{}(p))
	if err != nil {
		return "", errors.Wrap(err, "could not marshal hyperparameters")
	}
	return string(data), nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	}
	return 0, errors.Errorf("%v (%T) is not a number", v, v)
}
