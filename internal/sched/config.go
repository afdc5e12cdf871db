package sched

import (
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml.
type Config struct {
	TickMicros      int    `yaml:"tick_us"`               // 100 (by default)
	Capacity        int    `yaml:"capacity"`              // 8 (by default)
	WatchdogPeriod  int    `yaml:"watchdog_period_ticks"` // 5000 (by default)
	StalenessFactor int    `yaml:"staleness_factor"`      // 2 (by default)
	ShedHighPct     int    `yaml:"shed_high_pct"`         // 95 (by default)
	ShedLowPct      int    `yaml:"shed_low_pct"`          // 70 (by default)
	ShedWindow      int    `yaml:"shed_window_ticks"`     // 500 (by default)
	TelemetryAddr   string `yaml:"telemetry_addr"`        // ":8080" (by default)
	EStopClearToken string `yaml:"estop_clear_token"`     // empty disables remote clear
	LogLevel        string `yaml:"log_level"`             // info
	LogFormat       string `yaml:"log_format"`            // text or json
	CSVPath         string `yaml:"csv_path"`              // empty disables the CSV trace
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		TickMicros:      100,
		Capacity:        8,
		WatchdogPeriod:  5000,
		StalenessFactor: 2,
		ShedHighPct:     95,
		ShedLowPct:      70,
		ShedWindow:      500,
		TelemetryAddr:   ":8080",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.TickMicros <= 0 {
		cfg.TickMicros = 100
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 8
	}
	if cfg.WatchdogPeriod < 1 {
		cfg.WatchdogPeriod = 5000
	}
	if cfg.StalenessFactor < 1 {
		cfg.StalenessFactor = 2
	}
	if cfg.ShedWindow < 1 {
		cfg.ShedWindow = 500
	}
	// the shed thresholds must never be equal, let alone inverted
	if cfg.ShedHighPct <= cfg.ShedLowPct || cfg.ShedHighPct > 100 || cfg.ShedLowPct < 0 {
		cfg.ShedHighPct = 95
		cfg.ShedLowPct = 70
	}

	return cfg
}
