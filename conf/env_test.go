package conf

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CHATSHELL_HOME", home)
	t.Setenv("CHATSHELL_SYNC_TIMEOUT", "2m")
	t.Setenv("CHATSHELL_LOG_LEVEL", "debug")
	t.Setenv("CHATSHELL_UPDATE_URL", "")
	t.Setenv("CHATSHELL_IPC_ADDR", "")

	env := LoadEnv()
	assert.Equal(t, home, env.Home)
	assert.Equal(t, "debug", env.LogLevel)
	assert.Equal(t, 30*time.Second, env.SyncTimeout)
	assert.Equal(t, DefaultUpdateURL, env.UpdateURL)
	assert.Equal(t, DefaultIPCAddr, env.IPCAddr)
	assert.Equal(t, filepath.Join(home, FileName), env.ConfigPath())
	assert.Equal(t, filepath.Join(home, "chat.notes.json"), env.ListPath("chat.notes.json"))
}

func TestResolveSyncTimeout(t *testing.T) {
	assert.Equal(t, DefaultSyncTimeout, resolveSyncTimeout(""))
	assert.Equal(t, DefaultSyncTimeout, resolveSyncTimeout("nope"))
	assert.Equal(t, 10*time.Second, resolveSyncTimeout("1s"))
	assert.Equal(t, 15*time.Second, resolveSyncTimeout("15s"))
}
