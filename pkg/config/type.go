package config

import (
	"time"
)

// Duration reads and writes as a Go duration string ("10s", "168h").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type FeedtailConfig struct {
	DashcoreHost string `toml:"dashcore_host"`
	TLSEnabled   bool   `toml:"tls_enabled"`
}

type DashcoreConfig struct {
	PVURL      string `toml:"pv_url"`
	HeatingURL string `toml:"heating_url"`
	// "http" polls PVURL, "modbus" reads the inverter registers directly.
	PVSource string `toml:"pv_source"`

	SolarInverterIp         string `toml:"solar_inverter_ip"`
	SolarInverterModbusPort int    `toml:"solar_inverter_modbus_port"`
	SolarInverterSlaveId    int    `toml:"solar_inverter_slave_id"`
	// Check with `nmcli device status`
	WlanConnectionId string `toml:"wlan_connection_id"`

	PVInterval      Duration `toml:"pv_interval"`
	HeatingInterval Duration `toml:"heating_interval"`
	RequestTimeout  Duration `toml:"request_timeout"`

	// Empty means the pathing defaults.
	DbPath  string `toml:"db_path"`
	DataDir string `toml:"data_dir"`
	SeedDir string `toml:"seed_dir"`

	RetentionDays         int      `toml:"retention_days"`
	YieldValidateInterval Duration `toml:"yield_validate_interval"`
	LocalTimestamps       bool     `toml:"local_timestamps"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	// No broker disables the MQTT sink.
	MqttBroker string `toml:"mqtt_broker"`
	MqttTopic  string `toml:"mqtt_topic"`
}
