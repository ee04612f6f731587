package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestData_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "custom-data")
	t.Setenv(EnvDataPath, custom)

	got := Data()
	if got != custom {
		t.Errorf("Data() = %q, want %q", got, custom)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Errorf("Data() did not create directory: %v", err)
	}
}

func TestPositionCache_UnderData(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataPath, dir)

	got := PositionCache()
	want := filepath.Join(dir, "position.json")
	if got != want {
		t.Errorf("PositionCache() = %q, want %q", got, want)
	}
}

func TestConfigFiles_OrderAndFallback(t *testing.T) {
	paths := ConfigFiles()
	if len(paths) == 0 {
		t.Fatal("ConfigFiles() returned no paths")
	}
	// The working-directory config is always last so it wins.
	if paths[len(paths)-1] != "config.toml" {
		t.Errorf("last config path = %q, want config.toml", paths[len(paths)-1])
	}
}
