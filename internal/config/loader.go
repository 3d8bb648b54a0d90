// internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"

	"github.com/spyrun/spyrun/internal/template"
)

// Load reads, expands, and validates the TOML document at path. Returns the
// fully-resolved Config plus the template.Engine seeded with the expanded
// vars table, ready to layer per-event context over at dispatch time.
//
// Errors here are always fatal-at-startup (spec.md's ConfigParse,
// TemplateResolve-at-load, and RegexCompile kinds) — the caller should abort
// before starting any watcher.
func Load(path string) (*Config, *template.Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("config: determining cwd: %w", err)
	}

	builtins, err := buildBuiltins(path, cwd)
	if err != nil {
		return nil, nil, err
	}

	resolvedVars, err := template.ExpandVars(cfg.Vars, builtins, cwd)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	eng := template.New(resolvedVars, cwd)

	if cfg.Cfg.StopFlg, err = eng.Expand(cfg.Cfg.StopFlg, "cfg.stop_flg", nil); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Cfg.StopForceFlg, err = eng.Expand(cfg.Cfg.StopForceFlg, "cfg.stop_force_flg", nil); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Cfg.MaxThreads <= 0 {
		cfg.Cfg.MaxThreads = runtime.NumCPU()
	}

	if cfg.Log.Path, err = eng.Expand(cfg.Log.Path, "log.path", nil); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	if cfg.Init.Cmd != "" {
		if cfg.Init.Cmd, err = eng.Expand(cfg.Init.Cmd, "init.cmd", nil); err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
		for i, a := range cfg.Init.Arg {
			if cfg.Init.Arg[i], err = eng.Expand(a, "init.arg", nil); err != nil {
				return nil, nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, eng, nil
}

// defaultStopFlagName is the filename stop_path points at when
// cfg.stop_flg leans on the builtin instead of spelling out its own path.
const defaultStopFlagName = "stop"

// buildBuiltins computes the built-in template vars available to every
// entry in [vars]: cwd, cmd_path/cmd_dir/cmd_stem/cmd_name (the running
// executable, ported from original_source/src/main.rs's build_cmd_map),
// cfg_path/cfg_dir/cfg_name/cfg_stem, log_dir (the config's directory,
// the default place log output lives when log.path doesn't say
// otherwise), and stop_path (a full file path, not a directory — the
// default stop flag location, "<cfg_dir>/stop").
func buildBuiltins(cfgPath, cwd string) (map[string]string, error) {
	cmdPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("config: determining executable path: %w", err)
	}

	absCfg, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: resolving config path: %w", err)
	}

	ext := filepath.Ext(absCfg)
	cfgStem := filepath.Base(absCfg)
	cfgStem = cfgStem[:len(cfgStem)-len(ext)]

	cmdExt := filepath.Ext(cmdPath)
	cmdStem := filepath.Base(cmdPath)
	cmdStem = cmdStem[:len(cmdStem)-len(cmdExt)]

	cfgDir := filepath.Dir(absCfg)

	return map[string]string{
		"cwd":       cwd,
		"cmd_path":  cmdPath,
		"cmd_dir":   filepath.Dir(cmdPath),
		"cmd_stem":  cmdStem,
		"cmd_name":  filepath.Base(cmdPath),
		"cfg_path":  absCfg,
		"cfg_dir":   cfgDir,
		"cfg_name":  filepath.Base(absCfg),
		"cfg_stem":  cfgStem,
		"log_dir":   cfgDir,
		"stop_path": filepath.Join(cfgDir, defaultStopFlagName),
	}, nil
}
