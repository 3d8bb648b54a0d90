// internal/router/router.go
package router

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spyrun/spyrun/internal/config"
	"github.com/spyrun/spyrun/internal/spyevent"
	"github.com/spyrun/spyrun/internal/template"
)

// CommandSpec is a fully-expanded, ready-to-execute command derived from a
// Spy, one of its Patterns, and the Event that matched it. Cwd is the
// running executable's directory (the cmd_dir builtin), not the spy's
// input directory — spawned commands run relative to the agent, not the
// watched tree.
type CommandSpec struct {
	Cmd        string
	Args       []string
	Cwd        string
	OutputFile string
}

// Display is the human-readable "cmd arg1 arg2 ..." form used both for log
// lines and as the default coalescing key (spec.md §4.3: "default = the
// resolved CommandSpec's display form").
func (c CommandSpec) Display() string {
	if len(c.Args) == 0 {
		return c.Cmd
	}
	return c.Cmd + " " + strings.Join(c.Args, " ")
}

// Router matches an event's path against a spy's ordered regex patterns and
// expands each match into a CommandSpec. Patterns are evaluated in
// declaration order; a single event can fan out to multiple CommandSpecs
// when more than one pattern matches.
type Router struct {
	engine *template.Engine
}

func New(engine *template.Engine) *Router {
	return &Router{engine: engine}
}

// Match returns one CommandSpec per matching pattern, in declaration order.
// A pattern whose cmd/arg templates fail to expand (e.g. an undefined key)
// is skipped with an error logged by the caller — the event is not dropped
// wholesale, only the offending pattern's dispatch.
func (r *Router) Match(spy *config.Spy, ev spyevent.Event) ([]CommandSpec, []error) {
	var specs []CommandSpec
	var errs []error

	extra := ev.TemplateContext()
	site := spy.Name + "." + string(ev.Kind)

	for i := range spy.Patterns {
		p := &spy.Patterns[i]
		if p.Compiled == nil || !p.Compiled.MatchString(ev.Path) {
			continue
		}

		site := site + ".patterns[" + strconv.Itoa(i) + "]"

		cmd, err := r.engine.Expand(p.Cmd, site+".cmd", extra)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		args := make([]string, 0, len(p.Arg))
		argErr := false
		for j, a := range p.Arg {
			expanded, err := r.engine.Expand(a, site+".arg["+strconv.Itoa(j)+"]", extra)
			if err != nil {
				errs = append(errs, err)
				argErr = true
				break
			}
			args = append(args, expanded)
		}
		if argErr {
			continue
		}

		outputFile := filepath.Join(spy.Output, spy.Name, ev.Stem)

		specs = append(specs, CommandSpec{
			Cmd:        cmd,
			Args:       args,
			Cwd:        r.engine.Var("cmd_dir"),
			OutputFile: outputFile,
		})
	}

	return specs, errs
}

// DefaultKey computes the implicit coalescing key for a spy with no
// configured limitkey template: the display form of the first matching
// CommandSpec, falling back to the event path when nothing matches (so
// unmatched events still coalesce sanely rather than panicking downstream).
func (r *Router) DefaultKey(spy *config.Spy, ev spyevent.Event) string {
	specs, _ := r.Match(spy, ev)
	if len(specs) == 0 {
		return ev.Path
	}
	return specs[0].Display()
}
