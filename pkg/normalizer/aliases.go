package normalizer

import "github.com/NotCoffee418/homedash/pkg/types"

// Alias is one accepted spelling of a canonical field. Scale converts the
// alias unit into the canonical unit (W -> kW is 0.001).
type Alias struct {
	Name  string
	Scale float64
}

func a(name string) Alias     { return Alias{Name: name, Scale: 1} }
func watts(name string) Alias { return Alias{Name: name, Scale: 0.001} }

// Ordered alias lists per canonical key. Lookup stops at the first alias
// that is present with a non-empty value.
var aliasTable = map[string][]Alias{
	types.KeyTimestamp: {
		a("timestamp"), a("Zeitstempel"), a("Datum/Zeit"), a("Datum Zeit"), a("ts"), a("time"),
	},

	types.KeyPVPower: {
		a(types.KeyPVPower), a("PV-Leistung (kW)"), a("PV Leistung kW"), a("pv_kw"),
		watts("P_PV"), watts("PV-Leistung (W)"),
	},
	types.KeyGridPower: {
		a(types.KeyGridPower), a("Netz-Leistung (kW)"), a("Netzbezug/-einspeisung (kW)"), a("grid_kw"),
		watts("P_Grid"), watts("Netz-Leistung (W)"),
	},
	types.KeyBatteryPower: {
		a(types.KeyBatteryPower), a("Batterie-Leistung (kW)"), a("Akku-Leistung (kW)"), a("battery_kw"),
		watts("P_Akku"), watts("Batterie-Leistung (W)"),
	},
	types.KeyBatterySoc: {
		a(types.KeyBatterySoc), a("Batterieladestand (%)"), a("Ladestand (%)"), a("SOC"), a("soc"),
	},
	types.KeyLoadPower: {
		a(types.KeyLoadPower), a("Hausverbrauch (kW)"), a("Verbrauch (kW)"), a("load_kw"),
		watts("P_Load"), watts("Hausverbrauch (W)"),
	},

	types.KeyKessel: {
		a(types.KeyKessel), a("kesseltemperatur"), a("Kesseltemperatur"), a("Kesseltemperatur (°C)"), a("Kessel"),
	},
	types.KeyWarmwasser: {
		a(types.KeyWarmwasser), a("warmwasser"), a("Warmwassertemperatur"), a("Warmwasser (°C)"), a("Warmwasser"),
	},
	types.KeyOutdoor: {
		a(types.KeyOutdoor), a("aussentemperatur"), a("Außentemperatur"), a("Aussentemperatur"), a("Außentemperatur (°C)"),
	},
	types.KeyBufferTop: {
		a(types.KeyBufferTop), a("puffer_oben"), a("Pufferspeicher Oben"), a("Puffer oben (°C)"),
	},
	types.KeyBufferMid: {
		a(types.KeyBufferMid), a("puffer_mitte"), a("Pufferspeicher Mitte"), a("Puffer mitte (°C)"),
	},
	types.KeyBufferBottom: {
		a(types.KeyBufferBottom), a("puffer_unten"), a("Pufferspeicher Unten"), a("Puffer unten (°C)"),
	},
}

// Aliases returns the accepted names for a canonical key.
func Aliases(key string) []Alias {
	return aliasTable[key]
}
