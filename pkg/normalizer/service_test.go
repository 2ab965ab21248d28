package normalizer

import (
	"testing"

	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePVFromWireNames(t *testing.T) {
	raw := types.Raw{
		"timestamp": "2025-06-15T12:00:00Z",
		"P_PV":      4200.0,
		"P_Grid":    "-1500",
		"P_Akku":    nil,
		"SOC":       "87,5",
	}
	s := NormalizePV(raw)
	assert.Equal(t, "2025-06-15 12:00:00", s.Timestamp)
	require.NotNil(t, s.PVPowerKW)
	assert.InDelta(t, 4.2, *s.PVPowerKW, 1e-9)
	assert.InDelta(t, -1.5, *s.GridPowerKW, 1e-9)
	assert.Nil(t, s.BatteryPowerKW)
	assert.InDelta(t, 87.5, *s.BatterySocPct, 1e-9)
}

func TestNormalizePVClampsProduction(t *testing.T) {
	s := NormalizePV(types.Raw{"pv_power_kw": -0.03, "grid_power_kw": -2.0})
	assert.Equal(t, 0.0, *s.PVPowerKW)
	assert.Equal(t, -2.0, *s.GridPowerKW, "grid keeps its sign")
}

func TestAbsentNotZero(t *testing.T) {
	s := NormalizePV(types.Raw{"pv_power_kw": "None", "grid_power_kw": "", "battery_power_kw": "abc"})
	assert.True(t, s.IsEmpty())
}

func TestFirstPresentAliasWins(t *testing.T) {
	raw := types.Raw{
		"Kesseltemperatur": 71.0,
		"kesseltemperatur": 65.0,
		"Außentemperatur":  "",
		"Aussentemperatur": "3.5",
	}
	s := NormalizeHeating(raw)
	assert.Equal(t, 65.0, *s.BmkKesselC)
	assert.Equal(t, 3.5, *s.OutdoorC)
}

func TestNormalizeHeatingKeepsAux(t *testing.T) {
	raw := types.Raw{
		"timestamp":        "2025-06-15 12:00:00",
		"puffer_oben":      "62.1",
		"betriebsphase":    "Heizen",
		"vorlauf_hk1":      41.0,
		"kesseltemperatur": "x",
	}
	s := NormalizeHeating(raw)
	assert.Nil(t, s.BmkKesselC)
	assert.Equal(t, 62.1, *s.BufTopC)
	assert.Equal(t, "Heizen", s.Aux["betriebsphase"])
	assert.Equal(t, 41.0, s.Aux["vorlauf_hk1"])
	assert.NotContains(t, s.Aux, "puffer_oben")
	assert.NotContains(t, s.Aux, "timestamp")
	assert.Equal(t, "x", s.Aux["kesseltemperatur"])
}

func TestNormalizeHeatingKeepsUnparseableToken(t *testing.T) {
	raw := types.Raw{
		"timestamp":        "2025-06-15 12:00:00",
		"kesseltemperatur": "Err",
		"aussentemperatur": 5.0,
		"puffer_mitte":     "  ",
	}
	s := NormalizeHeating(raw)
	assert.Nil(t, s.BmkKesselC)
	require.NotNil(t, s.OutdoorC)
	assert.Equal(t, 5.0, *s.OutdoorC)
	assert.Equal(t, map[string]interface{}{"kesseltemperatur": "Err"}, s.Aux)
}

func TestNormalizeThenValuesIsIdentity(t *testing.T) {
	in := map[string]float64{
		types.KeyKessel:       70,
		types.KeyOutdoor:      -4.5,
		types.KeyBufferTop:    65,
		types.KeyBufferMid:    50,
		types.KeyBufferBottom: 35,
		types.KeyWarmwasser:   48,
	}
	raw := types.Raw{}
	for k, v := range in {
		raw[k] = v
	}
	s := NormalizeHeating(raw)
	assert.Equal(t, in, s.Values())
}

func TestBadTimestampDropped(t *testing.T) {
	s := NormalizePV(types.Raw{"timestamp": "later", "pv_power_kw": 1.0})
	assert.Equal(t, "", s.Timestamp)
	assert.False(t, s.IsEmpty())
}

func TestSocOutOfRangeDropped(t *testing.T) {
	s := NormalizePV(types.Raw{"battery_soc_pct": 140.0})
	assert.Nil(t, s.BatterySocPct)
}
