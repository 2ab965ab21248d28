package types

import (
	"encoding/json"
)

// PVSample is one normalised inverter reading. Nil fields are absent,
// never zero-filled.
type PVSample struct {
	Timestamp      string   `db:"timestamp" json:"timestamp"`
	PVPowerKW      *float64 `db:"pv_power_kw" json:"pv_power_kw,omitempty"`
	GridPowerKW    *float64 `db:"grid_power_kw" json:"grid_power_kw,omitempty"`
	BatteryPowerKW *float64 `db:"battery_power_kw" json:"battery_power_kw,omitempty"`
	BatterySocPct  *float64 `db:"battery_soc_pct" json:"battery_soc_pct,omitempty"`
	LoadPowerKW    *float64 `db:"load_power_kw" json:"load_power_kw,omitempty"`
}

// HeatingSample is one normalised boiler/buffer reading. Aux carries the
// positional fields the core does not interpret.
type HeatingSample struct {
	Timestamp      string                 `db:"timestamp" json:"timestamp"`
	BmkKesselC     *float64               `db:"bmk_kessel_c" json:"bmk_kessel_c,omitempty"`
	OutdoorC       *float64               `db:"outdoor_c" json:"outdoor_c,omitempty"`
	BufTopC        *float64               `db:"buf_top_c" json:"buf_top_c,omitempty"`
	BufMidC        *float64               `db:"buf_mid_c" json:"buf_mid_c,omitempty"`
	BufBottomC     *float64               `db:"buf_bottom_c" json:"buf_bottom_c,omitempty"`
	BmkWarmwasserC *float64               `db:"bmk_warmwasser_c" json:"bmk_warmwasser_c,omitempty"`
	Aux            map[string]interface{} `db:"-" json:"aux,omitempty"`
}

func Float(v float64) *float64 {
	return &v
}

// Load returns the reported house load, or pv + battery - grid when the
// inverter did not report one.
func (s *PVSample) Load() (float64, bool) {
	if s.LoadPowerKW != nil {
		return *s.LoadPowerKW, true
	}
	if s.PVPowerKW == nil || s.GridPowerKW == nil || s.BatteryPowerKW == nil {
		return 0, false
	}
	return *s.PVPowerKW + *s.BatteryPowerKW - *s.GridPowerKW, true
}

// IsEmpty is true when no canonical value is present.
func (s *PVSample) IsEmpty() bool {
	return s == nil || len(s.Values()) == 0
}

// Values returns the present canonical values keyed by canonical name.
func (s *PVSample) Values() map[string]float64 {
	out := make(map[string]float64)
	if s == nil {
		return out
	}
	put(out, KeyPVPower, s.PVPowerKW)
	put(out, KeyGridPower, s.GridPowerKW)
	put(out, KeyBatteryPower, s.BatteryPowerKW)
	put(out, KeyBatterySoc, s.BatterySocPct)
	put(out, KeyLoadPower, s.LoadPowerKW)
	return out
}

func (s *HeatingSample) IsEmpty() bool {
	return s == nil || len(s.Values()) == 0
}

func (s *HeatingSample) Values() map[string]float64 {
	out := make(map[string]float64)
	if s == nil {
		return out
	}
	put(out, KeyKessel, s.BmkKesselC)
	put(out, KeyOutdoor, s.OutdoorC)
	put(out, KeyBufferTop, s.BufTopC)
	put(out, KeyBufferMid, s.BufMidC)
	put(out, KeyBufferBottom, s.BufBottomC)
	put(out, KeyWarmwasser, s.BmkWarmwasserC)
	return out
}

// PVSampleFromValues builds a sample from canonical keys; unknown keys are ignored.
func PVSampleFromValues(ts string, values map[string]float64) PVSample {
	return PVSample{
		Timestamp:      ts,
		PVPowerKW:      get(values, KeyPVPower),
		GridPowerKW:    get(values, KeyGridPower),
		BatteryPowerKW: get(values, KeyBatteryPower),
		BatterySocPct:  get(values, KeyBatterySoc),
		LoadPowerKW:    get(values, KeyLoadPower),
	}
}

func HeatingSampleFromValues(ts string, values map[string]float64) HeatingSample {
	return HeatingSample{
		Timestamp:      ts,
		BmkKesselC:     get(values, KeyKessel),
		OutdoorC:       get(values, KeyOutdoor),
		BufTopC:        get(values, KeyBufferTop),
		BufMidC:        get(values, KeyBufferMid),
		BufBottomC:     get(values, KeyBufferBottom),
		BmkWarmwasserC: get(values, KeyWarmwasser),
	}
}

// Delivery is what the dispatcher hands to consumers, tagged by source.
type Delivery struct {
	Source  Source         `json:"source"`
	PV      *PVSample      `json:"pv,omitempty"`
	Heating *HeatingSample `json:"heating,omitempty"`
}

func (d Delivery) Timestamp() string {
	switch {
	case d.PV != nil:
		return d.PV.Timestamp
	case d.Heating != nil:
		return d.Heating.Timestamp
	}
	return ""
}

func (d Delivery) ToJsonBytes() []byte {
	b, err := json.Marshal(d)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func DeliveryFromJsonBytes(b []byte) *Delivery {
	var d Delivery
	if err := json.Unmarshal(b, &d); err != nil {
		return nil
	}
	if d.Source == "" {
		return nil
	}
	return &d
}

func put(m map[string]float64, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

func get(m map[string]float64, key string) *float64 {
	if v, ok := m[key]; ok {
		return Float(v)
	}
	return nil
}
