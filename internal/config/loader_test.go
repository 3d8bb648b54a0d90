// internal/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "spyrun.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadBasic(t *testing.T) {
	path := writeConfig(t, `
[cfg]
stop_flg = "{{cfg_dir}}/stop"
stop_force_flg = "{{cfg_dir}}/stop-force"
max_threads = 4

[log]
path = "{{cfg_dir}}/spyrun.log"
level = "info"

[[spys]]
name = "watch-txt"
input = "input"
output = "output"
events = ["Create", "Modify"]

[[spys.patterns]]
pattern = "\\.txt$"
cmd = "echo"
arg = ["{{event_path}}"]
`)

	cfg, eng, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, eng)

	assert.Equal(t, 4, cfg.Cfg.MaxThreads)
	assert.Len(t, cfg.Spys, 1)
	assert.Equal(t, "watch-txt", cfg.Spys[0].Name)
	assert.NotNil(t, cfg.Spys[0].Patterns[0].Compiled)
}

func TestBuildBuiltinsStopPathIsStopFileNotDir(t *testing.T) {
	path := writeConfig(t, `[cfg]`)

	builtins, err := buildBuiltins(path, "/work")
	require.NoError(t, err)

	cfgDir := filepath.Dir(path)
	assert.Equal(t, cfgDir, builtins["log_dir"])
	assert.Equal(t, filepath.Join(cfgDir, "stop"), builtins["stop_path"])
	assert.NotEqual(t, builtins["log_dir"], builtins["stop_path"])
}

func TestLoadMaxThreadsDefaultsToNumCPU(t *testing.T) {
	path := writeConfig(t, `
[cfg]
stop_flg = "stop"
stop_force_flg = "stop-force"

[log]
path = "spyrun.log"
level = "info"
`)

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Greater(t, cfg.Cfg.MaxThreads, 0)
}

func TestLoadUndefinedVarIsFatal(t *testing.T) {
	path := writeConfig(t, `
[vars]
a = "{{nope}}"

[cfg]
stop_flg = "stop"
stop_force_flg = "stop-force"

[log]
path = "spyrun.log"
level = "info"
`)

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadCyclicVarsIsFatal(t *testing.T) {
	path := writeConfig(t, `
[vars]
a = "{{b}}"
b = "{{a}}"

[cfg]
stop_flg = "stop"
stop_force_flg = "stop-force"

[log]
path = "spyrun.log"
level = "info"
`)

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadBadRegexIsFatal(t *testing.T) {
	path := writeConfig(t, `
[cfg]
stop_flg = "stop"
stop_force_flg = "stop-force"

[log]
path = "spyrun.log"
level = "info"

[[spys]]
name = "bad"
input = "input"
output = "output"

[[spys.patterns]]
pattern = "(unterminated"
cmd = "echo"
`)

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadDuplicateSpyNameIsFatal(t *testing.T) {
	path := writeConfig(t, `
[cfg]
stop_flg = "stop"
stop_force_flg = "stop-force"

[log]
path = "spyrun.log"
level = "info"

[[spys]]
name = "dup"
input = "a"
output = "a"

[[spys]]
name = "dup"
input = "b"
output = "b"
`)

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestSpyWantsEventDefaultsToCreateModify(t *testing.T) {
	spy := &Spy{}
	require.NoError(t, Validate(&Config{Spys: []*Spy{spy}}))
	assert.True(t, spy.WantsEvent(Create))
	assert.True(t, spy.WantsEvent(Modify))
	assert.False(t, spy.WantsEvent(Remove))
}

func TestSpyWantsEventWalkAlwaysPasses(t *testing.T) {
	spy := &Spy{Events: []EventKind{Remove}}
	assert.True(t, spy.WantsEvent(Walk))
}
