// Package app holds the start-up sequence shared by the binaries.
package app

import (
	"os"

	log "log/slog"

	cli "github.com/spf13/pflag"

	"chatty/internal/config"
	"chatty/internal/llm"
	"chatty/internal/proxy"
)

// Boot parses the command line, handles --create-config and
// --copy-local-config, loads the configuration and installs the default
// logger. It exits the process when the binary should not continue.
func Boot(flags *config.Flags) (*config.Config, *log.Logger) {
	flags.Register(cli.CommandLine)
	cli.Parse()

	logger, _ := flags.Logger(os.Stderr, nil)
	log.SetDefault(logger)

	if done, path, err := flags.Setup(); done {
		if err != nil {
			log.Error("Failed to write config", "err", err)
			os.Exit(1)
		}
		log.Info("Config written", "path", path)
		os.Exit(0)
	}

	cfg, err := flags.Load()
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	logger, err = flags.Logger(os.Stderr, cfg)
	log.SetDefault(logger)
	if err != nil {
		log.Warn("Falling back to info logging", "err", err)
	}

	log.Debug("Loaded config")
	return cfg, logger
}

// OpenAI builds the API client, through proxyAddr or the configured
// proxy when either is set.
func OpenAI(cfg *config.Config, proxyAddr string, logger *log.Logger) *llm.OpenAI {
	if proxyAddr == "" {
		proxyAddr = cfg.Proxy
	}
	httpClient, err := proxy.NewHTTPClient(proxyAddr)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", proxyAddr, "err", err)
		os.Exit(1)
	}
	if proxyAddr != "" {
		log.Debug("Loaded proxy", "proxy", proxyAddr)
	}
	return llm.NewOpenAI(cfg.OpenAIAPIKey, httpClient, logger)
}

// SaveDir returns where conversations are written, or "" when noSave is
// set or no cache directory exists.
func SaveDir(noSave bool) string {
	if noSave {
		return ""
	}
	dir, err := config.UserCacheDir()
	if err != nil {
		log.Warn("Conversation saving disabled", "err", err)
		return ""
	}
	return dir
}
