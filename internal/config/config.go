package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Job      JobConfig      `mapstructure:"job"`
	Search   SearchConfig   `mapstructure:"search"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	UI       UIConfig       `mapstructure:"ui"`
	Keys     KeyConfig      `mapstructure:"keys"`
}

type BackendConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// PollInterval is the period of the job status poller.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PollMaxDuration bounds a single job's polling loop. Zero polls until
	// the job reaches a terminal status.
	PollMaxDuration time.Duration `mapstructure:"poll_max_duration"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// JobConfig holds the defaults used to pre-fill a new pipeline run.
type JobConfig struct {
	RSSFeeds            []string `mapstructure:"rss_feeds"`
	Criteria            string   `mapstructure:"criteria"`
	LLMModel            string   `mapstructure:"llm_model"`
	LLMTemperature      float64  `mapstructure:"llm_temperature"`
	SimilarityThreshold float64  `mapstructure:"similarity_threshold"`
	RelevanceThreshold  float64  `mapstructure:"relevance_threshold"`
}

type SearchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
}

type DatabaseConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type UIConfig struct {
	Colors     UIColors `mapstructure:"colors"`
	DateFormat string   `mapstructure:"date_format"`
	Opener     string   `mapstructure:"opener"`
	WrapWidth  int      `mapstructure:"wrap_width"`
}

type UIColors struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
	Accent    string `mapstructure:"accent"`
	Text      string `mapstructure:"text"`
	Muted     string `mapstructure:"muted"`
	Error     string `mapstructure:"error"`
	Success   string `mapstructure:"success"`
}

type KeyConfig struct {
	Modifier string      `mapstructure:"modifier"`
	Bindings KeyBindings `mapstructure:"bindings"`
}

type KeyBindings struct {
	Quit          string `mapstructure:"quit"`
	NewJob        string `mapstructure:"new_job"`
	Search        string `mapstructure:"search"`
	Reload        string `mapstructure:"reload"`
	Delete        string `mapstructure:"delete"`
	ClearDatabase string `mapstructure:"clear_database"`
	OpenLink      string `mapstructure:"open_link"`
	Find          string `mapstructure:"find"`
	Back          string `mapstructure:"back"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://127.0.0.1:5000",
			PollInterval: 1 * time.Second,
			UserAgent:    "newsroom/1.0 (https://github.com/pders01/newsroom)",
		},
		Job: JobConfig{
			LLMModel:            "gpt-4o-mini",
			LLMTemperature:      0.3,
			SimilarityThreshold: 0.85,
			RelevanceThreshold:  0.7,
		},
		Search: SearchConfig{
			Threshold: 0.7,
			Limit:     50,
		},
		Database: DatabaseConfig{
			Path:    filepath.Join(homeDir, ".newsroom", "session.db"),
			Timeout: 1 * time.Second,
		},
		Log: LogConfig{
			Level: "off",
			Path:  filepath.Join(homeDir, ".newsroom", "newsroom.log"),
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:   "#FF6B6B",
				Secondary: "#4ECDC4",
				Accent:    "#95E1D3",
				Text:      "#EAEAEA",
				Muted:     "#94A3B8",
				Error:     "#F87171",
				Success:   "#4ADE80",
			},
			DateFormat: "02.01.2006 15:04",
			Opener:     DefaultOpener(),
			WrapWidth:  100,
		},
		Keys: KeyConfig{
			Modifier: "ctrl",
			Bindings: KeyBindings{
				Quit:          "q",
				NewJob:        "n",
				Search:        "s",
				Reload:        "r",
				Delete:        "x",
				ClearDatabase: "d",
				OpenLink:      "o",
				Find:          "f",
				Back:          "esc",
			},
		},
	}
}

// DefaultOpener is the platform command that opens URLs.
func DefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "linux":
		return "xdg-open"
	case "windows":
		return "start"
	default:
		return "open"
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("job", cfg.Job)
	v.SetDefault("search", cfg.Search)
	v.SetDefault("database", cfg.Database)
	v.SetDefault("log", cfg.Log)
	v.SetDefault("ui", cfg.UI)
	v.SetDefault("keys", cfg.Keys)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "newsroom")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NEWSROOM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.Backend.PollInterval <= 0 {
		config.Backend.PollInterval = cfg.Backend.PollInterval
	}
	if config.Search.Limit <= 0 {
		config.Search.Limit = cfg.Search.Limit
	}

	expandPaths(&config)

	return &config, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations are written as strings so the TOML stays readable
	backendCfg := map[string]interface{}{
		"base_url":          config.Backend.BaseURL,
		"http_timeout":      config.Backend.HTTPTimeout.String(),
		"poll_interval":     config.Backend.PollInterval.String(),
		"poll_max_duration": config.Backend.PollMaxDuration.String(),
		"user_agent":        config.Backend.UserAgent,
	}

	dbCfg := map[string]interface{}{
		"path":    config.Database.Path,
		"timeout": config.Database.Timeout.String(),
	}

	jobCfg := map[string]interface{}{
		"rss_feeds":            config.Job.RSSFeeds,
		"criteria":             config.Job.Criteria,
		"llm_model":            config.Job.LLMModel,
		"llm_temperature":      config.Job.LLMTemperature,
		"similarity_threshold": config.Job.SimilarityThreshold,
		"relevance_threshold":  config.Job.RelevanceThreshold,
	}

	searchCfg := map[string]interface{}{
		"threshold": config.Search.Threshold,
		"limit":     config.Search.Limit,
	}

	v.Set("backend", backendCfg)
	v.Set("job", jobCfg)
	v.Set("search", searchCfg)
	v.Set("database", dbCfg)
	v.Set("log", config.Log)
	v.Set("ui", config.UI)
	v.Set("keys", config.Keys)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
