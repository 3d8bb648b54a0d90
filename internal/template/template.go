// internal/template/template.go
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ErrCycle is returned by ExpandVars when the vars table contains a
// reference cycle.
var ErrCycle = errors.New("template: cyclic var reference")

// ResolveError identifies the template site an unresolved placeholder came
// from, so load-time and dispatch-time callers can report where to look.
type ResolveError struct {
	Site string
	Name string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("template: undefined placeholder %q in %s", e.Name, e.Site)
}

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)(?:\(([^)]*)\))?\s*\}\}`)

// Engine expands {{ name }} and {{ helper(arg="...") }} placeholders against
// a fixed map of startup-resolved vars, plus two builtin helpers: cwd (the
// process working directory captured at New) and env(arg="NAME").
type Engine struct {
	vars map[string]string
	cwd  string
}

// New creates an Engine over a fully-resolved vars table (see ExpandVars).
func New(vars map[string]string, cwd string) *Engine {
	cp := make(map[string]string, len(vars))
	for k, v := range vars {
		cp[k] = v
	}
	return &Engine{vars: cp, cwd: cwd}
}

// Var returns the resolved value of a startup var or builtin by name, or
// the empty string if name is undefined — used by callers that need a
// single builtin directly (e.g. the router's cmd_dir working directory)
// rather than running it through Expand against a whole template string.
func (e *Engine) Var(name string) string {
	return e.vars[name]
}

// Expand substitutes every placeholder in tmpl. extra overrides the
// engine's vars (used to layer per-event context over startup vars) and is
// consulted before helpers. site identifies the template for error
// messages (e.g. "spy foo pattern 2 cmd").
func (e *Engine) Expand(tmpl, site string, extra map[string]string) (string, error) {
	var resolveErr error
	out := placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		if resolveErr != nil {
			return match
		}
		groups := placeholder.FindStringSubmatch(match)
		name, arg := groups[1], groups[2]

		if val, ok := lookupExtra(extra, name); ok {
			return val
		}
		if val, ok := e.vars[name]; ok && arg == "" {
			return val
		}

		switch name {
		case "cwd":
			return e.cwd
		case "env":
			return os.Getenv(parseArgValue(arg))
		}

		resolveErr = &ResolveError{Site: site, Name: name}
		return match
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

func lookupExtra(extra map[string]string, name string) (string, bool) {
	if extra == nil {
		return "", false
	}
	v, ok := extra[name]
	return v, ok
}

// parseArgValue extracts the quoted value out of `arg="NAME"`.
func parseArgValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "="); idx >= 0 {
		raw = raw[idx+1:]
	}
	raw = strings.TrimSpace(raw)
	return strings.Trim(raw, `"'`)
}

// ExpandVars resolves a vars table in ascending key order, so later keys may
// reference earlier ones. builtins are available to every var and are never
// themselves expanded. The returned map holds both the resolved vars and
// the builtins, so an Engine built on it (see internal/config.Load) can
// expand a template referencing either kind of name. Returns ErrCycle
// wrapped with the offending key if a var (directly or transitively)
// references itself.
func ExpandVars(raw map[string]string, builtins map[string]string, cwd string) (map[string]string, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make(map[string]string, len(builtins)+len(raw))
	for k, v := range builtins {
		resolved[k] = v
	}

	inProgress := make(map[string]bool, len(keys))

	var resolve func(key string) error
	resolve = func(key string) error {
		if _, done := raw[key]; !done {
			return nil // not a var key; builtin or already resolved
		}
		if _, already := resolved[key]; already {
			return nil
		}
		if inProgress[key] {
			return fmt.Errorf("%w: %s", ErrCycle, key)
		}
		inProgress[key] = true
		defer delete(inProgress, key)

		eng := New(resolved, cwd)
		val, err := eng.Expand(raw[key], fmt.Sprintf("vars.%s", key), nil)
		for err != nil {
			// The referenced name might be a var not yet resolved in
			// ascending order (e.g. it depends on a key that sorts later) —
			// resolve it first, then retry; repeat for each such reference.
			var re *ResolveError
			if !errors.As(err, &re) {
				break
			}
			_, isVar := raw[re.Name]
			_, isResolved := resolved[re.Name]
			if !isVar || isResolved {
				break
			}
			if rerr := resolve(re.Name); rerr != nil {
				return rerr
			}
			eng = New(resolved, cwd)
			val, err = eng.Expand(raw[key], fmt.Sprintf("vars.%s", key), nil)
		}
		if err != nil {
			return err
		}
		resolved[key] = val
		return nil
	}

	for _, k := range keys {
		if err := resolve(k); err != nil {
			return nil, err
		}
	}

	// resolved already holds the builtins plus every resolved var; returning
	// it (rather than re-deriving a map from just raw's keys) is what lets
	// callers build an Engine that can expand both.
	return resolved, nil
}
