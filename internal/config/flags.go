package config

import (
	"fmt"
	"io"
	"log/slog"

	cli "github.com/spf13/pflag"
)

// Flags are the configuration flags shared by every binary.
type Flags struct {
	Path            string
	EnvFile         string
	LogLevel        string
	CreateConfig    bool
	CopyLocalConfig bool
}

func (f *Flags) Register(fs *cli.FlagSet) {
	fs.StringVar(&f.Path, "config", "", "Config file path (default: user config)")
	fs.StringVarP(&f.EnvFile, "env", "e", ".env", "Env file path")
	fs.StringVarP(&f.LogLevel, "log", "l", "", "Log level: trace, debug, info, warn, error")
	fs.BoolVar(&f.CreateConfig, "create-config", false, "Save a template user config and exit")
	fs.BoolVar(&f.CopyLocalConfig, "copy-local-config", false, "Copy the dev config into the user config and exit")
}

// Setup handles --create-config and --copy-local-config. When done is
// true the binary should exit after reporting path.
func (f *Flags) Setup() (done bool, path string, err error) {
	switch {
	case f.CreateConfig:
		path, err = Template().SaveUser()
		return true, path, err
	case f.CopyLocalConfig:
		local, err := LoadDev()
		if err != nil {
			return true, "", err
		}
		path, err = local.SaveUser()
		return true, path, err
	}
	return false, "", nil
}

// Load reads the env file, then --config if given or the user config.
func (f *Flags) Load() (*Config, error) {
	if err := LoadEnvFile(f.EnvFile); err != nil {
		return nil, err
	}
	if f.Path != "" {
		return Load(f.Path)
	}
	return LoadUser()
}

// Logger builds the process logger. --log wins over the config's
// log_level; cfg may be nil.
func (f *Flags) Logger(w io.Writer, cfg *Config) (*slog.Logger, error) {
	name := f.LogLevel
	if name == "" && cfg != nil {
		name = cfg.LogLevel
	}
	level, err := ParseLogLevel(name)
	if err != nil {
		return NewLogger(w, slog.LevelInfo), fmt.Errorf("log level: %w", err)
	}
	return NewLogger(w, level), nil
}
