// internal/config/types.go
package config

import "regexp"

// EventKind is one of the normalized filesystem event kinds a spy can react
// to, plus the synthetic Walk kind emitted by the initial directory walker.
type EventKind string

const (
	Access EventKind = "Access"
	Create EventKind = "Create"
	Modify EventKind = "Modify"
	Remove EventKind = "Remove"
	Walk   EventKind = "Walk"
)

// Config is the root document loaded from the TOML config file.
type Config struct {
	Vars map[string]string `toml:"vars"`
	Cfg  Cfg               `toml:"cfg"`
	Log  Log               `toml:"log"`
	Init Init              `toml:"init"`
	Spys []*Spy            `toml:"spys"`
}

// Cfg holds the process-wide settings under [cfg].
type Cfg struct {
	StopFlg      string `toml:"stop_flg"`
	StopForceFlg string `toml:"stop_force_flg"`
	MaxThreads   int    `toml:"max_threads"`
}

// Log holds the [log] sink settings. Rotation/level filtering policy lives
// outside the core (internal/logging); this is just the document shape.
type Log struct {
	Path       string `toml:"path"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Init describes the one-shot command run synchronously at startup.
type Init struct {
	Cmd string   `toml:"cmd"`
	Arg []string `toml:"arg"`
}

// Delay is either [d] (fixed) or [lo, hi] (uniform random sample, ms).
type Delay []int

// Poll configures the optional directory-snapshot poller.
type Poll struct {
	IntervalMs int `toml:"interval_ms"`
}

// WalkConfig configures the optional initial directory enumerator.
type WalkConfig struct {
	MinDepth       int    `toml:"min_depth"`
	MaxDepth       int    `toml:"max_depth"`
	FollowSymlinks bool   `toml:"follow_symlinks"`
	Pattern        string `toml:"pattern"`
	Delay          Delay  `toml:"delay"`

	// Compiled is filled in by Validate; nil if Pattern is empty.
	Compiled *regexp.Regexp `toml:"-"`
}

// Pattern maps a regex match against an event path to a templated command.
type Pattern struct {
	Pattern string   `toml:"pattern"`
	Cmd     string   `toml:"cmd"`
	Arg     []string `toml:"arg"`

	// Compiled is filled in by Validate; nil until then.
	Compiled *regexp.Regexp `toml:"-"`
}

// Spy is one watched directory with its patterns and timing rules. Immutable
// after Validate succeeds — a running process never mutates a *Spy.
type Spy struct {
	Name       string      `toml:"name"`
	Input      string      `toml:"input"`
	Output     string      `toml:"output"`
	Events     []EventKind `toml:"events"`
	Recursive  bool        `toml:"recursive"`
	DebounceMs int         `toml:"debounce_ms"`
	ThrottleMs int         `toml:"throttle_ms"`
	Delay      Delay       `toml:"delay"`
	LimitKey   string      `toml:"limitkey"`
	Patterns   []Pattern   `toml:"patterns"`
	Poll       *Poll       `toml:"poll"`
	WalkCfg    *WalkConfig `toml:"walk"`
}

// WantsEvent reports whether the spy is configured to react to kind. Walk
// is synthetic and always passes: it is only ever emitted by this spy's own
// Walker, and consumer-side filtering of it would be redundant with the
// walker only running when walk is configured at all.
func (s *Spy) WantsEvent(kind EventKind) bool {
	if kind == Walk {
		return true
	}
	return s.hasEvent(kind)
}

func (s *Spy) hasEvent(kind EventKind) bool {
	for _, e := range s.Events {
		if e == kind {
			return true
		}
	}
	return false
}
