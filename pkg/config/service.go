package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/pathing"
	"github.com/joho/godotenv"
)

const (
	DashcoreFile = "dashcore.toml"
	FeedtailFile = "feedtail.toml"
	EnvFile      = ".env"
)

var (
	ActiveDashcoreConfig *DashcoreConfig
	ActiveFeedtailConfig *FeedtailConfig
)

func DefaultDashcoreConfig() *DashcoreConfig {
	return &DashcoreConfig{
		PVURL:                   "http://192.168.178.150/solar_api/v1/GetPowerFlowRealtimeData.fcgi",
		HeatingURL:              "http://192.168.178.151/daqdata.cgi",
		PVSource:                "http",
		SolarInverterIp:         "192.168.200.1",
		SolarInverterModbusPort: 502,
		SolarInverterSlaveId:    1,
		PVInterval:              Duration{10 * time.Second},
		HeatingInterval:         Duration{10 * time.Second},
		RequestTimeout:          Duration{5 * time.Second},
		RetentionDays:           365,
		YieldValidateInterval:   Duration{168 * time.Hour},
		ListenAddress:           "0.0.0.0",
		ListenPort:              9039,
		MqttTopic:               "homedash",
	}
}

// LoadEnv reads an optional .env next to the config file. Variables that
// are already set win.
func LoadEnv() error {
	path := filepath.Join(pathing.GetConfigDir(), EnvFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func LoadDashcoreConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), DashcoreFile)
	cfg := DefaultDashcoreConfig()

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefault(configPath, cfg); err != nil {
			return err
		}
		ActiveDashcoreConfig = cfg
		return nil
	}

	// Missing keys keep their defaults
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return faults.Wrapf(faults.Parse, err, configPath)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ActiveDashcoreConfig = cfg
	return nil
}

func LoadFeedtailConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), FeedtailFile)
	cfg := &FeedtailConfig{
		DashcoreHost: "localhost:9039",
		TLSEnabled:   false,
	}

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefault(configPath, cfg); err != nil {
			return err
		}
		ActiveFeedtailConfig = cfg
		return nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return faults.Wrapf(faults.Parse, err, configPath)
	}
	ActiveFeedtailConfig = cfg
	return nil
}

func writeDefault(path string, cfg interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	cfgFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer cfgFile.Close()
	return toml.NewEncoder(cfgFile).Encode(cfg)
}

func (c *DashcoreConfig) Validate() error {
	c.PVSource = strings.ToLower(strings.TrimSpace(c.PVSource))
	switch c.PVSource {
	case "", "http":
		c.PVSource = "http"
	case "modbus":
		if c.SolarInverterIp == "" || c.SolarInverterModbusPort == 0 {
			return faults.New(faults.Schema, "pv_source modbus needs solar_inverter_ip and solar_inverter_modbus_port")
		}
	default:
		return faults.Errorf(faults.Schema, "unknown pv_source %q", c.PVSource)
	}
	if c.SolarInverterSlaveId < 0 || c.SolarInverterSlaveId > 247 {
		return faults.Errorf(faults.Schema, "solar_inverter_slave_id %d out of range", c.SolarInverterSlaveId)
	}
	if c.RetentionDays <= 0 {
		return faults.Errorf(faults.Schema, "retention_days must be positive, got %d", c.RetentionDays)
	}
	if c.PVInterval.Duration <= 0 || c.HeatingInterval.Duration <= 0 {
		return faults.New(faults.Schema, "poll intervals must be positive")
	}
	return nil
}

func (c *DashcoreConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

func (c *DashcoreConfig) ResolvedDbPath() string {
	if c.DbPath != "" {
		return c.DbPath
	}
	return pathing.GetDbPath()
}

func (c *DashcoreConfig) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return pathing.GetDataDir()
}

// ResolvedSeedDir is where the CSV history exports are looked up.
func (c *DashcoreConfig) ResolvedSeedDir() string {
	if c.SeedDir != "" {
		return c.SeedDir
	}
	return c.ResolvedDataDir()
}
