package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig is the TOML overlay. Durations stay environment-only; every
// field here is optional and only overrides when set.
type fileConfig struct {
	Server struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"server"`
	Browser struct {
		Enabled            *bool  `toml:"enabled"`
		Headless           *bool  `toml:"headless"`
		Bin                string `toml:"bin"`
		ProfileDir         string `toml:"profile_dir"`
		ProfilePerPlatform *bool  `toml:"profile_per_platform"`
		UserAgent          string `toml:"user_agent"`
		Proxy              string `toml:"proxy"`
	} `toml:"browser"`
	Scraper struct {
		DedupeDistance *int `toml:"dedupe_distance"`
	} `toml:"scraper"`
	LLM struct {
		Provider  string `toml:"provider"`
		APIKey    string `toml:"api_key"`
		BaseURL   string `toml:"base_url"`
		TextModel string `toml:"text_model"`
	} `toml:"llm"`
	Video struct {
		DefaultModel     string   `toml:"default_model"`
		FallbackModel    string   `toml:"fallback_model"`
		FallbackEligible []string `toml:"fallback_eligible"`
	} `toml:"video"`
	Media struct {
		FFmpegBin string `toml:"ffmpeg_bin"`
		OutputDir string `toml:"output_dir"`
	} `toml:"media"`
	Storage struct {
		HistoryPath string `toml:"history_path"`
		RedisAddr   string `toml:"redis_addr"`
	} `toml:"storage"`
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dataflow", "config.toml")
}

// LoadFile loads the environment configuration and applies the TOML file at
// path on top of it. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	fc.apply(cfg)
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.Server.Host, fc.Server.Host)
	if fc.Server.Port != 0 {
		cfg.Server.Port = fc.Server.Port
	}

	setBool(&cfg.Browser.Enabled, fc.Browser.Enabled)
	setBool(&cfg.Browser.Headless, fc.Browser.Headless)
	setBool(&cfg.Browser.ProfilePerPlatform, fc.Browser.ProfilePerPlatform)
	setString(&cfg.Browser.BrowserBin, fc.Browser.Bin)
	setString(&cfg.Browser.ProfileDir, ExpandPath(fc.Browser.ProfileDir))
	setString(&cfg.Browser.UserAgent, fc.Browser.UserAgent)
	setString(&cfg.Browser.DefaultProxy, fc.Browser.Proxy)

	if fc.Scraper.DedupeDistance != nil {
		cfg.Scraper.DedupeDistance = *fc.Scraper.DedupeDistance
	}

	if fc.LLM.Provider != "" && fc.LLM.Provider != cfg.LLM.Provider {
		cfg.LLM.Provider = fc.LLM.Provider
		cfg.LLM.BaseURL = defaultBaseURL(fc.LLM.Provider)
	}
	setString(&cfg.LLM.APIKey, fc.LLM.APIKey)
	setString(&cfg.LLM.BaseURL, fc.LLM.BaseURL)
	setString(&cfg.LLM.TextModel, fc.LLM.TextModel)

	setString(&cfg.Video.DefaultModel, fc.Video.DefaultModel)
	setString(&cfg.Video.FallbackModel, fc.Video.FallbackModel)
	if len(fc.Video.FallbackEligible) > 0 {
		cfg.Video.FallbackEligible = fc.Video.FallbackEligible
	}

	setString(&cfg.Media.FFmpegBin, fc.Media.FFmpegBin)
	setString(&cfg.Media.OutputDir, ExpandPath(fc.Media.OutputDir))

	setString(&cfg.Storage.HistoryPath, ExpandPath(fc.Storage.HistoryPath))
	setString(&cfg.Storage.RedisAddr, fc.Storage.RedisAddr)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
