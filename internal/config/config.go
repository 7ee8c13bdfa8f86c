// Package config loads the API key and MQTT broker settings used by the
// chatty binaries.
//
// Two sources exist. The developer config is layered: the required
// configuration/settings.yaml, the optional configuration/dev_settings.yaml
// and finally CHATTY_* environment variables. The user config is a single
// file under the per-user config directory, written by --create-config or
// --copy-local-config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMQTTPort is used when broker_port is omitted.
	DefaultMQTTPort = 1883

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-3.5-turbo"

	// EmptyToken is the placeholder key written into template configs.
	EmptyToken = "EMPTY_TOKEN"

	appName   = "chatty"
	envPrefix = "CHATTY_"
)

// Dev config locations, relative to the working directory.
var (
	DevSettingsPath      = filepath.Join("configuration", "settings.yaml")
	DevLocalSettingsPath = filepath.Join("configuration", "dev_settings.yaml")
)

// Config holds all chatty configuration.
type Config struct {
	OpenAIAPIKey string      `yaml:"open_ai_api_key"`
	MQTT         *MQTTConfig `yaml:"mqtt,omitempty"`

	// Model overrides the chat model name.
	Model string `yaml:"model,omitempty"`
	// Proxy is an optional SOCKS5 address used for the remote API.
	Proxy string `yaml:"proxy,omitempty"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
	// WhisperModel is a whisper.cpp model path for local transcription.
	WhisperModel string `yaml:"whisper_model,omitempty"`
}

// MQTTConfig defines broker connection settings.
type MQTTConfig struct {
	BrokerHost string `yaml:"broker_host"`
	BrokerPort int    `yaml:"broker_port,omitempty"`
	ClientID   string `yaml:"client_id,omitempty"`
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
}

// LoadError reports a missing or malformed configuration. It is always
// fatal for the binaries.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Template returns the config written by --create-config.
func Template() *Config {
	return &Config{OpenAIAPIKey: EmptyToken}
}

// UserConfigPath returns <UserConfigDir>/chatty/config.yaml.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, appName, "config.yaml"), nil
}

// UserCacheDir returns the directory conversations are saved to.
func UserCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("user cache dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// Load reads configuration from a single YAML file and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := mergeFile(cfg, path); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return finish(cfg, path)
}

// LoadUser reads the per-user config file.
func LoadUser() (*Config, error) {
	path, err := UserConfigPath()
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	return Load(path)
}

// LoadDev reads the layered developer configuration from the working
// directory: settings.yaml, then dev_settings.yaml if present, then the
// environment (including a .env file).
func LoadDev() (*Config, error) {
	cfg := &Config{}
	if err := mergeFile(cfg, DevSettingsPath); err != nil {
		return nil, &LoadError{Path: DevSettingsPath, Err: err}
	}
	if err := mergeFile(cfg, DevLocalSettingsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Path: DevLocalSettingsPath, Err: err}
	}
	return finish(cfg, DevSettingsPath)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// SaveUser writes cfg to the per-user config path and returns it.
func (c *Config) SaveUser() (string, error) {
	path, err := UserConfigPath()
	if err != nil {
		return "", err
	}
	return path, c.Save(path)
}

// RequireMQTT returns the MQTT section or a LoadError when it is absent.
func (c *Config) RequireMQTT() (MQTTConfig, error) {
	if c.MQTT == nil || c.MQTT.BrokerHost == "" {
		return MQTTConfig{}, &LoadError{Err: errors.New("mqtt config missing")}
	}
	return *c.MQTT, nil
}

// ChatModel returns the configured model or DefaultModel.
func (c *Config) ChatModel() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func finish(cfg *Config, path string) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if cfg.MQTT != nil && cfg.MQTT.BrokerPort == 0 {
		cfg.MQTT.BrokerPort = DefaultMQTTPort
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil, &LoadError{Path: path, Err: errors.New("open_ai_api_key is not set")}
	}
	return cfg, nil
}

// applyEnv overlays CHATTY_* variables. OPENAI_API_KEY is honoured when
// no key came from a file or CHATTY_OPEN_AI_API_KEY.
func applyEnv(cfg *Config) error {
	if v, ok := lookup("OPEN_AI_API_KEY"); ok {
		cfg.OpenAIAPIKey = v
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if v, ok := lookup("MODEL"); ok {
		cfg.Model = v
	}
	if v, ok := lookup("PROXY"); ok {
		cfg.Proxy = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("WHISPER_MODEL"); ok {
		cfg.WhisperModel = v
	}

	mqttEnv := map[string]func(*MQTTConfig, string) error{
		"MQTT_BROKER_HOST": func(m *MQTTConfig, v string) error { m.BrokerHost = v; return nil },
		"MQTT_CLIENT_ID":   func(m *MQTTConfig, v string) error { m.ClientID = v; return nil },
		"MQTT_USERNAME":    func(m *MQTTConfig, v string) error { m.Username = v; return nil },
		"MQTT_PASSWORD":    func(m *MQTTConfig, v string) error { m.Password = v; return nil },
		"MQTT_BROKER_PORT": func(m *MQTTConfig, v string) error {
			port, err := strconv.Atoi(v)
			if err != nil || port <= 0 || port > 65535 {
				return fmt.Errorf("invalid %sMQTT_BROKER_PORT %q", envPrefix, v)
			}
			m.BrokerPort = port
			return nil
		},
	}
	for key, set := range mqttEnv {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if cfg.MQTT == nil {
			cfg.MQTT = &MQTTConfig{}
		}
		if err := set(cfg.MQTT, v); err != nil {
			return err
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
