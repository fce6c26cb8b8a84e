package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// logConfig is read from the environment before flags are parsed.
type logConfig struct {
	Debug bool   `env:"EVTXCACHE_DEBUG"`
	Path  string `env:"EVTXCACHE_LOG_PATH"`
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "evtxcache").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "evtxcache.log"), nil
}

func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	logFile := cfg.Path
	if logFile == "" {
		if logFile, err = getLogFilePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	log.SetOutput(f)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return f.Close, nil
}
