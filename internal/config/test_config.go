package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	d := defaultConfig()
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://127.0.0.1:0",
			HTTPTimeout:  5 * time.Second,
			PollInterval: 10 * time.Millisecond,
			UserAgent:    "newsroom-test/1.0",
		},
		Job:    d.Job,
		Search: d.Search,
		Database: DatabaseConfig{
			Path:    ":memory:",
			Timeout: 1 * time.Second,
		},
		Log:  LogConfig{Level: "off"},
		UI:   d.UI,
		Keys: d.Keys,
	}
}
