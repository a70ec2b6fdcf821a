package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Host        string `json:"host" env:"WABRIDGE_SERVER_HOST"`
	Port        int    `json:"port" env:"WABRIDGE_SERVER_PORT"`
	AllowOrigin string `json:"allow_origin" env:"WABRIDGE_SERVER_ALLOW_ORIGIN"`
}

type WhatsAppConfig struct {
	StorePath  string `json:"store_path" env:"WABRIDGE_WHATSAPP_STORE_PATH"`
	DeviceName string `json:"device_name" env:"WABRIDGE_WHATSAPP_DEVICE_NAME"`
}

type LoggingConfig struct {
	Enabled       bool   `json:"enabled" env:"WABRIDGE_LOGGING_ENABLED"`
	Dir           string `json:"dir" env:"WABRIDGE_LOGGING_DIR"`
	Filename      string `json:"filename" env:"WABRIDGE_LOGGING_FILENAME"`
	MaxSizeMB     int    `json:"max_size_mb" env:"WABRIDGE_LOGGING_MAX_SIZE_MB"`
	RetentionDays int    `json:"retention_days" env:"WABRIDGE_LOGGING_RETENTION_DAYS"`
}

var (
	isDebug bool
	muDebug sync.RWMutex
)

func SetDebugMode(debug bool) {
	muDebug.Lock()
	defer muDebug.Unlock()
	isDebug = debug
}

func IsDebugMode() bool {
	muDebug.RLock()
	defer muDebug.RUnlock()
	return isDebug
}

func GetConfigDir() string {
	if IsDebugMode() {
		return ".wabridge"
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wabridge")
}

func DefaultConfig() *Config {
	configDir := GetConfigDir()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			AllowOrigin: "*",
		},
		WhatsApp: WhatsAppConfig{
			StorePath:  filepath.Join(configDir, "session"),
			DeviceName: "wabridge",
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Dir:           filepath.Join(configDir, "logs"),
			Filename:      "wabridge.log",
			MaxSizeMB:     20,
			RetentionDays: 3,
		},
	}
}

// LoadConfig reads path over the defaults; a missing file is not an error.
// Environment variables win over both.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := unmarshalConfigStrict(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfigStrict(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing JSON content")
		}
		return err
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) StorePath() string {
	return expandHome(c.WhatsApp.StorePath)
}

func (c *Config) LogFilePath() string {
	dir := expandHome(c.Logging.Dir)
	filename := c.Logging.Filename
	if filename == "" {
		filename = "wabridge.log"
	}
	return filepath.Join(dir, filename)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
