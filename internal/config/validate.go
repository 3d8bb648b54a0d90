// internal/config/validate.go
package config

import (
	"fmt"
	"regexp"
)

// Defaults for the [log] rotation knobs when a config leaves them unset —
// mirrored in internal/logging.defaultMaxBackups for the backup count.
const (
	defaultLogMaxSizeMB  = 50
	defaultLogMaxBackups = 5
)

// Validate checks the invariants from spec.md §3: unique spy names,
// non-negative debounce/throttle, delay shape, and compiles every pattern's
// regex. It also applies field defaults (spy events, [log] max_size_mb and
// max_backups); an empty limitkey is left empty. Called once at
// load time; a Config that passes Validate is frozen for the process
// lifetime.
func Validate(cfg *Config) error {
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = defaultLogMaxSizeMB
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = defaultLogMaxBackups
	}

	seen := make(map[string]bool, len(cfg.Spys))

	for _, spy := range cfg.Spys {
		if spy.Name == "" {
			return fmt.Errorf("config: spy has empty name")
		}
		if seen[spy.Name] {
			return fmt.Errorf("config: duplicate spy name %q", spy.Name)
		}
		seen[spy.Name] = true

		if len(spy.Events) == 0 {
			spy.Events = []EventKind{Create, Modify}
		}

		if spy.DebounceMs < 0 {
			return fmt.Errorf("config: spy %q: debounce_ms must be non-negative", spy.Name)
		}
		if spy.ThrottleMs < 0 {
			return fmt.Errorf("config: spy %q: throttle_ms must be non-negative", spy.Name)
		}

		if err := validateDelay(spy.Name, "delay", spy.Delay); err != nil {
			return err
		}
		if spy.WalkCfg != nil {
			if err := validateDelay(spy.Name, "walk.delay", spy.WalkCfg.Delay); err != nil {
				return err
			}
			if spy.WalkCfg.MinDepth > spy.WalkCfg.MaxDepth && spy.WalkCfg.MaxDepth != 0 {
				return fmt.Errorf("config: spy %q: walk.min_depth > walk.max_depth", spy.Name)
			}
			if spy.WalkCfg.Pattern != "" {
				compiled, err := regexp.Compile(spy.WalkCfg.Pattern)
				if err != nil {
					return fmt.Errorf("config: spy %q: walk.pattern: %w", spy.Name, err)
				}
				spy.WalkCfg.Compiled = compiled
			}
		}

		for i := range spy.Patterns {
			p := &spy.Patterns[i]
			compiled, err := regexp.Compile(p.Pattern)
			if err != nil {
				return fmt.Errorf("config: spy %q pattern %d: %w", spy.Name, i, err)
			}
			p.Compiled = compiled
		}
	}

	return nil
}

func validateDelay(spyName, field string, d Delay) error {
	if d == nil {
		return nil
	}
	switch len(d) {
	case 0, 1:
		return nil
	case 2:
		if d[0] > d[1] {
			return fmt.Errorf("config: spy %q: %s lo (%d) > hi (%d)", spyName, field, d[0], d[1])
		}
		return nil
	default:
		return fmt.Errorf("config: spy %q: %s must have length 1 or 2, got %d", spyName, field, len(d))
	}
}
