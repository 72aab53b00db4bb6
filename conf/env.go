package conf

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env is the process-level configuration read from the environment and from
// optional .env files. It is fixed for the lifetime of the process.
type Env struct {
	Home        string
	LogLevel    string
	SyncTimeout time.Duration
	UpdateURL   string
	IPCAddr     string
}

const (
	DefaultSyncTimeout = 20 * time.Second
	minSyncTimeout     = 10 * time.Second
	maxSyncTimeout     = 30 * time.Second

	DefaultUpdateURL = "https://github.com/chatshell/chatshell/releases/latest/download/latest.json"
	DefaultIPCAddr   = "127.0.0.1:0"
)

// LoadEnv loads .env from the working directory and from the application
// directory (values already present in the environment win), then resolves
// every setting with its default.
func LoadEnv() Env {
	_ = godotenv.Load()

	home := resolveHome()
	_ = godotenv.Load(filepath.Join(home, ".env"))

	return Env{
		Home:        home,
		LogLevel:    firstNonEmpty(strings.TrimSpace(os.Getenv("CHATSHELL_LOG_LEVEL")), "info"),
		SyncTimeout: resolveSyncTimeout(os.Getenv("CHATSHELL_SYNC_TIMEOUT")),
		UpdateURL:   firstNonEmpty(strings.TrimSpace(os.Getenv("CHATSHELL_UPDATE_URL")), DefaultUpdateURL),
		IPCAddr:     firstNonEmpty(strings.TrimSpace(os.Getenv("CHATSHELL_IPC_ADDR")), DefaultIPCAddr),
	}
}

// ConfigPath returns the configuration document path inside the app dir.
func (e Env) ConfigPath() string { return filepath.Join(e.Home, FileName) }

// ListPath resolves a list file name inside the app dir. Absolute names are
// returned unchanged.
func (e Env) ListPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(e.Home, file)
}

// LockPath is the single-instance lock file.
func (e Env) LockPath() string { return filepath.Join(e.Home, "chatshell.lock") }

// SocketPath is the bridge socket used by CLI subcommands.
func (e Env) SocketPath() string { return filepath.Join(e.Home, "chatshell.sock") }

func resolveHome() string {
	if h := strings.TrimSpace(os.Getenv("CHATSHELL_HOME")); h != "" {
		return h
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".chatshell")
}

func resolveSyncTimeout(raw string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return DefaultSyncTimeout
	}
	return min(max(d, minSyncTimeout), maxSyncTimeout)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
