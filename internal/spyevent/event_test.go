// internal/spyevent/event_test.go
package spyevent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spyrun/spyrun/internal/config"
)

func TestNewDerivesPathParts(t *testing.T) {
	ev := New("build", config.Modify, "/watched/src/main.go")

	assert.Equal(t, "build", ev.SpyName)
	assert.Equal(t, config.Modify, ev.Kind)
	assert.Equal(t, "/watched/src/main.go", ev.Path)
	assert.Equal(t, "main.go", ev.Name)
	assert.Equal(t, "/watched/src", ev.Dir)
	assert.Equal(t, "main", ev.Stem)
	assert.Equal(t, "src", ev.Parent)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestTemplateContextKeys(t *testing.T) {
	ev := New("build", config.Create, "/watched/out.bin")
	ctx := ev.TemplateContext()

	assert.Equal(t, "build", ctx["spy_name"])
	assert.Equal(t, "/watched/out.bin", ctx["event_path"])
	assert.Equal(t, "out.bin", ctx["event_name"])
	assert.Equal(t, "/watched", ctx["event_dir"])
	assert.Equal(t, "out", ctx["event_stem"])
	assert.Equal(t, "Create", ctx["event_kind"])
}
