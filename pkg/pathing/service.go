package pathing

import (
	"os"
	"path/filepath"
)

// EnsureDirs creates the directories the process writes into.
func EnsureDirs() error {
	dirs := []string{
		GetBaseDir(),
		GetDataDir(),
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetBaseDir is where data.db lives: DASH_HOME, else next to the binary.
func GetBaseDir() string {
	if dir := os.Getenv("DASH_HOME"); dir != "" {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func GetDataDir() string {
	if dir := os.Getenv("DASH_DATA_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(GetBaseDir(), "data")
}

func GetConfigDir() string {
	if dir := os.Getenv("DASH_CONFIG_DIR"); dir != "" {
		return dir
	}
	return GetBaseDir()
}

func GetDbPath() string {
	return filepath.Join(GetBaseDir(), "data.db")
}

func GetSparklineCachePath() string {
	return filepath.Join(GetDataDir(), "sparkline_cache.json")
}
