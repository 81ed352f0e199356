package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "purespice.conf")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBasicProperties(t *testing.T) {
	path := writeTempConf(t, `
# connection
host=192.168.1.50
port=5900
debug=true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.GetString("host", ""); got != "192.168.1.50" {
		t.Errorf("host = %q", got)
	}
	if got := cfg.GetInt("port", 0); got != 5900 {
		t.Errorf("port = %d", got)
	}
	if got := cfg.GetBool("debug", false); got != true {
		t.Errorf("debug = %v", got)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if got := cfg.GetString("host", "localhost"); got != "localhost" {
		t.Errorf("host = %q, want default", got)
	}
}
