package units

import (
	"math"
	"strconv"
	"strings"
)

// WattScaleThreshold: PV readings above this many "kW" are really watts.
const WattScaleThreshold = 200.0

func WToKw(w float64) float64 {
	return w / 1000
}

func KwToW(kw float64) float64 {
	return kw * 1000
}

// Production can't be negative - inverters report small negatives at night.
func ClampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Values above WattScaleThreshold are assumed to be watts and scaled down.
func AutoScaleKw(v float64) float64 {
	if v > WattScaleThreshold {
		return WToKw(v)
	}
	return v
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseFloat accepts "12.5", "12,5" and surrounding whitespace.
// Empty, "None", "null", "nan" and anything unparseable yield ok=false.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none", "null", "nan", "-", "--":
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !IsFinite(v) {
		return 0, false
	}
	return v, true
}

// Round to the given number of decimals, used for JSON output.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
