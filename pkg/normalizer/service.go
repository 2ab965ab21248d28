// Normalizer maps source-specific records onto the canonical schema.
// It is pure and total: bad values become absent, never zero.
package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NotCoffee418/homedash/pkg/timebase"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/NotCoffee418/homedash/pkg/units"
)

// Record is a normalised dictionary: canonical timestamp plus the present
// canonical values.
type Record struct {
	Timestamp string
	Values    map[string]float64
}

// Normalize resolves the given canonical keys from raw.
func Normalize(raw types.Raw, keys []string) Record {
	rec := Record{Values: make(map[string]float64, len(keys))}
	if raw == nil {
		return rec
	}
	rec.Timestamp = timestamp(raw)
	for _, key := range keys {
		if v, ok := lookup(raw, key); ok {
			rec.Values[key] = v
		}
	}
	return rec
}

func NormalizePV(raw types.Raw) types.PVSample {
	rec := Normalize(raw, types.PVKeys)
	if pv, ok := rec.Values[types.KeyPVPower]; ok {
		rec.Values[types.KeyPVPower] = units.ClampNonNegative(pv)
	}
	if soc, ok := rec.Values[types.KeyBatterySoc]; ok && (soc < 0 || soc > 100) {
		delete(rec.Values, types.KeyBatterySoc)
	}
	return types.PVSampleFromValues(rec.Timestamp, rec.Values)
}

// NormalizeHeating resolves the heating keys and keeps every field that is
// not an alias of a canonical key in Aux. Canonical fields whose token does
// not parse are kept in Aux as well, under their wire name.
func NormalizeHeating(raw types.Raw) types.HeatingSample {
	rec := Normalize(raw, types.HeatingKeys)
	sample := types.HeatingSampleFromValues(rec.Timestamp, rec.Values)

	tsNames := consumedNames([]string{types.KeyTimestamp})
	consumed := consumedNames(types.HeatingKeys)
	for name, v := range raw {
		if tsNames[name] || v == nil {
			continue
		}
		if consumed[name] {
			if _, ok := ToFloat(v); ok || isBlank(v) {
				continue
			}
		}
		if sample.Aux == nil {
			sample.Aux = make(map[string]interface{})
		}
		sample.Aux[name] = v
	}
	return sample
}

// ToFloat converts a raw value. Empty, None, NaN and unparseable are absent.
func ToFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, units.IsFinite(x)
	case float32:
		return float64(x), units.IsFinite(float64(x))
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case json.Number:
		return units.ParseFloat(x.String())
	case string:
		return units.ParseFloat(x)
	case *float64:
		if x == nil {
			return 0, false
		}
		return *x, units.IsFinite(*x)
	case bool:
		return 0, false
	default:
		return units.ParseFloat(fmt.Sprint(x))
	}
}

func lookup(raw types.Raw, key string) (float64, bool) {
	for _, alias := range aliasTable[key] {
		v, present := raw[alias.Name]
		if !present || isBlank(v) {
			continue
		}
		f, ok := ToFloat(v)
		if !ok {
			return 0, false
		}
		return f * alias.Scale, true
	}
	return 0, false
}

func timestamp(raw types.Raw) string {
	for _, alias := range aliasTable[types.KeyTimestamp] {
		v, present := raw[alias.Name]
		if !present || isBlank(v) {
			continue
		}
		if ts, ok := timebase.Normalize(fmt.Sprint(v)); ok {
			return ts
		}
		return ""
	}
	return ""
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func consumedNames(keys []string) map[string]bool {
	out := make(map[string]bool)
	for _, key := range keys {
		for _, alias := range aliasTable[key] {
			out[alias.Name] = true
		}
	}
	return out
}
