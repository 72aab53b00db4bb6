package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatshell/conf"
	"chatshell/gateway"
	"chatshell/logging"
	"chatshell/window"
)

func execCLI(t *testing.T, env conf.Env, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CHATSHELL_HOME", env.Home)
	t.Setenv("CHATSHELL_OFFLINE", "")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLIOfflineConfig(t *testing.T) {
	env := testEnv(t)

	out, err := execCLI(t, env, "config", "theme", "dark")
	require.NoError(t, err)
	var cfg conf.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, conf.ThemeDark, cfg.Theme)

	// Persisted for the next process.
	assert.Equal(t, conf.ThemeDark, conf.Open(env.ConfigPath(), logging.Discard()).Get().Theme)

	out, err = execCLI(t, env, "config", "tray", "off")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.False(t, cfg.Tray)

	out, err = execCLI(t, env, "--pretty", "config", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "\n  \"theme\": \"system\"")

	_, err = execCLI(t, env, "config", "theme", "sepia")
	assert.ErrorIs(t, err, gateway.ErrInvalidArgs)

	_, err = execCLI(t, env, "config", "tray", "maybe")
	assert.ErrorContains(t, err, "expected on or off")
}

func TestCLIOfflineListsAndPrompts(t *testing.T) {
	env := testEnv(t)
	configure(t, env, promptServer(t).URL)

	out, err := execCLI(t, env, "lists", "get", "notes")
	require.NoError(t, err)
	var res struct {
		Entries []json.RawMessage `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Empty(t, res.Entries)

	out, err = execCLI(t, env, "lists", "sync", "prompts")
	require.NoError(t, err)
	var synced gateway.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &synced))
	assert.False(t, synced.Stale)
	assert.Len(t, synced.Resource.Entries, 2)

	out, err = execCLI(t, env, "prompts", "search", "travel")
	require.NoError(t, err)
	assert.Contains(t, out, "Travel Guide")
	assert.NotContains(t, out, "Linux Terminal")

	_, err = execCLI(t, env, "lists", "get", "nope")
	assert.ErrorIs(t, err, gateway.ErrUnknownList)

	out, err = execCLI(t, env, "prompts", "render", "linux_terminal", "command=pwd")
	require.NoError(t, err)
	var text string
	require.NoError(t, json.Unmarshal([]byte(out), &text))
	assert.Equal(t, "I want you to act as a linux terminal. My first command is pwd", text)

	_, err = execCLI(t, env, "prompts", "render", "linux_terminal")
	assert.ErrorIs(t, err, gateway.ErrInvalidArgs)

	_, err = execCLI(t, env, "prompts", "render", "travel_guide", "bogus")
	assert.ErrorContains(t, err, "expected name=value")
}

func TestCLIOpenNeedsRunningApp(t *testing.T) {
	env := testEnv(t)

	_, err := execCLI(t, env, "open", "core")
	assert.ErrorIs(t, err, gateway.ErrNoWindows)
	assert.ErrorContains(t, err, "not running")
}

func TestCLIReachesRunningApp(t *testing.T) {
	env := testEnv(t)
	configure(t, env, "")
	app := startApp(t, env)

	require.Eventually(t, func() bool {
		return stateOf(t, app.App, window.Core) == window.Visible
	}, 2*time.Second, 10*time.Millisecond)

	_, err := execCLI(t, env, "open", window.Settings)
	require.NoError(t, err)
	assert.Equal(t, window.Visible, stateOf(t, app.App, window.Settings))

	out, err := execCLI(t, env, "config", "get")
	require.NoError(t, err)
	assert.Contains(t, out, `"auto_update":"disable"`)

	// --offline skips the bridge even when the app is up.
	_, err = execCLI(t, env, "--offline", "open", window.Core)
	assert.ErrorIs(t, err, gateway.ErrNoWindows)
}

func TestParseOnOff(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "ON": true, "true": true, "1": true, "off": false, "no": false} {
		got, err := parseOnOff(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseOnOff("")
	assert.Error(t, err)
}
