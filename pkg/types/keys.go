package types

// Canonical field keys shared by storage, the normaliser and consumers.
const (
	KeyTimestamp    = "timestamp"
	KeyPVPower      = "pv_power_kw"
	KeyGridPower    = "grid_power_kw"
	KeyBatteryPower = "battery_power_kw"
	KeyBatterySoc   = "battery_soc_pct"
	KeyLoadPower    = "load_power_kw"
	KeyKessel       = "bmk_kessel_c"
	KeyWarmwasser   = "bmk_warmwasser_c"
	KeyOutdoor      = "outdoor_c"
	KeyBufferTop    = "buf_top_c"
	KeyBufferMid    = "buf_mid_c"
	KeyBufferBottom = "buf_bottom_c"
)

var PVKeys = []string{KeyPVPower, KeyGridPower, KeyBatteryPower, KeyBatterySoc, KeyLoadPower}

var HeatingKeys = []string{KeyKessel, KeyOutdoor, KeyBufferTop, KeyBufferMid, KeyBufferBottom, KeyWarmwasser}

type Source string

const (
	SourcePV      Source = "pv"
	SourceHeating Source = "heating"
)

var Sources = []Source{SourcePV, SourceHeating}

func (s Source) String() string {
	return string(s)
}

// Raw is a source-specific record before normalisation. Values are
// float64, string or nil.
type Raw map[string]interface{}
