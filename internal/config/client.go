package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

const (
	DefaultServerURL   = "http://localhost:8080"
	DefaultCheckoutURL = "https://pay.paddle.io/checkout"
)

// ClientConfig holds the settings of the rehearse CLI.
type ClientConfig struct {
	ServerURL   string
	CheckoutURL string
	PriceID     string
	AudioFormat string // ffmpeg input format, e.g. avfoundation, pulse, alsa
	AudioInput  string // ffmpeg input device, e.g. ":0" or "default"
	SampleRate  int
	LogLevel    string
}

type clientFileConfig struct {
	ServerURL   string `toml:"server_url"`
	CheckoutURL string `toml:"checkout_url"`
	PriceID     string `toml:"price_id"`
	AudioFormat string `toml:"audio_format"`
	AudioInput  string `toml:"audio_input"`
	SampleRate  int    `toml:"sample_rate"`
	LogLevel    string `toml:"log_level"`
}

// LoadClient reads $XDG_CONFIG_HOME/present-coach/config.toml if present,
// then applies PRESENTCOACH_* environment overrides. A malformed file is
// reported; a missing one is not.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL:   DefaultServerURL,
		CheckoutURL: DefaultCheckoutURL,
		AudioFormat: defaultAudioFormat(),
		AudioInput:  defaultAudioInput(),
		SampleRate:  16000,
		LogLevel:    "warn",
	}

	if path := clientConfigPath(); path != "" {
		var fc clientFileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, err
		}
		mergeString(&cfg.ServerURL, fc.ServerURL)
		mergeString(&cfg.CheckoutURL, fc.CheckoutURL)
		mergeString(&cfg.PriceID, fc.PriceID)
		mergeString(&cfg.AudioFormat, fc.AudioFormat)
		mergeString(&cfg.AudioInput, fc.AudioInput)
		mergeString(&cfg.LogLevel, fc.LogLevel)
		if fc.SampleRate > 0 {
			cfg.SampleRate = fc.SampleRate
		}
	}

	applyClientEnv(cfg)
	return cfg, nil
}

func applyClientEnv(cfg *ClientConfig) {
	mergeString(&cfg.ServerURL, os.Getenv("PRESENTCOACH_SERVER_URL"))
	mergeString(&cfg.CheckoutURL, os.Getenv("PRESENTCOACH_CHECKOUT_URL"))
	mergeString(&cfg.PriceID, os.Getenv("PRESENTCOACH_PRICE_ID"))
	mergeString(&cfg.AudioFormat, os.Getenv("PRESENTCOACH_AUDIO_FORMAT"))
	mergeString(&cfg.AudioInput, os.Getenv("PRESENTCOACH_AUDIO_INPUT"))
	mergeString(&cfg.LogLevel, os.Getenv("PRESENTCOACH_LOG_LEVEL"))
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func clientConfigPath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "present-coach")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "present-coach")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func defaultAudioFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func defaultAudioInput() string {
	switch runtime.GOOS {
	case "darwin":
		return ":default"
	case "windows":
		return "audio=default"
	default:
		return "default"
	}
}
