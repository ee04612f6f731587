// Package paths resolves application-specific filesystem locations.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/samber/lo"
)

const appName = "cadenza"

// EnvDataPath overrides the default data directory when set.
const EnvDataPath = "CADENZA_DATA_PATH"

// Data returns the directory holding the database and position cache,
// creating it if necessary.
func Data() string {
	if custom, ok := os.LookupEnv(EnvDataPath); ok {
		return ensureDir(custom)
	}
	return ensureDir(filepath.Join(xdg.DataHome, appName))
}

// Database returns the path of the sqlite database file.
func Database() (string, error) {
	return xdg.DataFile(filepath.Join(appName, "cadenza.db"))
}

// PositionCache returns the path of the local position cache file.
func PositionCache() string {
	return filepath.Join(Data(), "position.json")
}

// Logs returns the directory for daemon log files, creating it if necessary.
func Logs() string {
	return ensureDir(filepath.Join(xdg.StateHome, appName, "logs"))
}

// BridgeSocket returns the default path of the bridge transport socket.
func BridgeSocket() string {
	return filepath.Join(ensureDir(filepath.Join(xdg.RuntimeDir, appName)), "bridge.sock")
}

// PlayerSocket returns the default path of the mpv IPC socket.
func PlayerSocket() string {
	return filepath.Join(ensureDir(filepath.Join(xdg.RuntimeDir, appName)), "player.sock")
}

// ConfigFiles returns candidate config file paths in load order (last wins).
func ConfigFiles() []string {
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName, "config.toml"))
	}
	paths = append(paths, "config.toml")
	return paths
}

func ensureDir(path string) string {
	lo.Must0(os.MkdirAll(path, 0o755))
	return path
}
