package fetcher

// Positional layout of the controller's daqdata body. Only the first
// handful feed the canonical schema; the rest are kept as auxiliary fields.
var heatingFieldNames = [73]string{
	"kesseltemperatur",               // 0
	"kessel_sollwert",                // 1
	"abgastemperatur",                // 2
	"aussentemperatur",               // 3
	"puffer_oben",                    // 4
	"puffer_mitte",                   // 5
	"puffer_unten",                   // 6
	"warmwasser",                     // 7
	"warmwasser_sollwert",            // 8
	"vorlauf_hk1",                    // 9
	"vorlauf_hk1_soll",               // 10
	"vorlauf_hk2",                    // 11
	"vorlauf_hk2_soll",               // 12
	"ruecklauf",                      // 13
	"ruecklauf_soll",                 // 14
	"raumtemperatur_hk1",             // 15
	"raumtemperatur_hk2",             // 16
	"brennraumtemperatur",            // 17
	"restsauerstoff",                 // 18
	"saugzug_drehzahl",               // 19
	"primaerluft",                    // 20
	"sekundaerluft",                  // 21
	"betriebsphase",                  // 22
	"betriebsart",                    // 23
	"stoerungsnummer",                // 24
	"kesselpumpe",                    // 25
	"pufferladepumpe",                // 26
	"warmwasserpumpe",                // 27
	"heizkreispumpe_hk1",             // 28
	"heizkreispumpe_hk2",             // 29
	"mischer_hk1",                    // 30
	"mischer_hk2",                    // 31
	"ruecklaufmischer",               // 32
	"zirkulationspumpe",              // 33
	"solarpumpe",                     // 34
	"kollektortemperatur",            // 35
	"solar_speicher_unten",           // 36
	"solar_ertrag",                   // 37
	"fuellstand",                     // 38
	"brennstoffverbrauch",            // 39
	"betriebsstunden",                // 40
	"betriebsstunden_voll",           // 41
	"brennerstarts",                  // 42
	"zuendungen",                     // 43
	"entaschungen",                   // 44
	"reinigungen",                    // 45
	"laufzeit_seit_wartung",          // 46
	"wartung_faellig",                // 47
	"aussentemperatur_mittel",        // 48
	"heizgrenze",                     // 49
	"frostschutz",                    // 50
	"sommerbetrieb",                  // 51
	"puffer_ladezustand",             // 52
	"puffer_energie",                 // 53
	"puffer_soll_oben",               // 54
	"puffer_soll_unten",              // 55
	"kessel_leistung",                // 56
	"kessel_leistung_soll",           // 57
	"einschubschnecke",               // 58
	"raumaustragung",                 // 59
	"rostmotor",                      // 60
	"zuendgeblaese",                  // 61
	"sicherheitstemperaturbegrenzer", // 62
	"tuerkontakt",                    // 63
	"stoerung_aktiv",                 // 64
	"meldung",                        // 65
	"software_version",               // 66
	"uhrzeit",                        // 67
	"datum",                          // 68
	"wochentag",                      // 69
	"netzwerk_status",                // 70
	"reserve_1",                      // 71
	"reserve_2",                      // 72
}

// Minimum token count for the canonical heating fields to be present.
const minHeatingTokens = 8

// HeatingFieldName returns the name for a position, or "" outside the table.
func HeatingFieldName(i int) string {
	if i < 0 || i >= len(heatingFieldNames) {
		return ""
	}
	return heatingFieldNames[i]
}
