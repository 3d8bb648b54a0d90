// internal/spyevent/event.go
package spyevent

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spyrun/spyrun/internal/config"
)

// Event is the uniform record emitted by every producer (FsNotifier,
// Poller, Walker) into a spy's event channel.
type Event struct {
	SpyName   string
	Kind      config.EventKind
	Path      string
	Name      string
	Dir       string
	Stem      string
	Parent    string
	Timestamp time.Time
}

// New derives Name/Dir/Stem/Parent from path and stamps Timestamp.
func New(spyName string, kind config.EventKind, path string) Event {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	return Event{
		SpyName:   spyName,
		Kind:      kind,
		Path:      path,
		Name:      name,
		Dir:       dir,
		Stem:      stem,
		Parent:    filepath.Base(dir),
		Timestamp: time.Now(),
	}
}

// TemplateContext returns the event-field placeholders exposed to templates
// at dispatch time (spec.md §6's "Event context keys").
func (e Event) TemplateContext() map[string]string {
	return map[string]string{
		"spy_name":   e.SpyName,
		"event_path": e.Path,
		"event_name": e.Name,
		"event_dir":  e.Dir,
		"event_stem": e.Stem,
		"event_kind": string(e.Kind),
	}
}
