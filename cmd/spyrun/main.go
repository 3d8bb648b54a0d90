// cmd/spyrun/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/spyrun/spyrun/internal/config"
	"github.com/spyrun/spyrun/internal/lock"
	"github.com/spyrun/spyrun/internal/logging"
	"github.com/spyrun/spyrun/internal/supervisor"
)

// defaultConfigName is "spyrun.toml" resolved next to the executable,
// spec.md §6: "--config defaults to spyrun.toml beside the executable."
const defaultConfigName = "spyrun.toml"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "c", "", "path to the spyrun TOML config (default: spyrun.toml beside the executable)")
	debugCount := pflag.CountP("debug", "d", "raise log verbosity one step per repetition (off→error→warn→info→debug→trace)")
	pflag.Parse()

	path := *configPath
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "spyrun: determining executable path: %v\n", err)
			return 1
		}
		path = filepath.Join(filepath.Dir(exe), defaultConfigName)
	}

	guard, err := lock.Acquire(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spyrun: %v\n", err)
		return 1
	}
	defer guard.Release()

	cfg, eng, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spyrun: %v\n", err)
		return 1
	}

	level := logging.LevelFromVerbosity(logging.LevelFromName(cfg.Log.Level), *debugCount)

	// SPYRUN_LOG_FILE/SPYRUN_LOG_STDOUT are sink toggles external to the
	// core (spec.md §6): the former overrides the configured [log] path,
	// the latter controls whether stdout stays in the mix once a file sink
	// is active.
	logFilePath := cfg.Log.Path
	if override := os.Getenv("SPYRUN_LOG_FILE"); override != "" {
		logFilePath = override
	}

	var sinks []io.Writer
	if logFilePath != "" {
		maxSize := int64(cfg.Log.MaxSizeMB) * 1024 * 1024
		rw, err := logging.NewRotatingWriter(logFilePath, maxSize, cfg.Log.MaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "spyrun: failed to open log sink %s, falling back to stdout: %v\n", logFilePath, err)
		} else {
			defer rw.Close()
			sinks = append(sinks, rw)
		}
	}
	if len(sinks) == 0 || os.Getenv("SPYRUN_LOG_STDOUT") != "0" {
		sinks = append(sinks, os.Stdout)
	}

	logger := logging.NewLogger(os.Getenv("SPYRUN_LOG_FORMAT"), level, io.MultiWriter(sinks...))

	logger.Info("spyrun starting", "config", path, "spys", len(cfg.Spys), "max_threads", cfg.Cfg.MaxThreads)

	sup := supervisor.New(cfg, eng, logger)
	if err := sup.Run(context.Background()); err != nil {
		logger.Error("supervisor exited with error", "error", err)
		return 1
	}

	logger.Info("spyrun stopped")
	return 0
}
