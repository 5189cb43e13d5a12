package autostart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDesktopEntry(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if IsEnabled() {
		t.Fatal("Expected autostart disabled in a fresh config dir")
	}

	e := Entry{ExecutablePath: "/opt/air touch/airtouch", Args: []string{"-no-tray"}}
	if err := Enable(e); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected autostart enabled")
	}

	data, err := os.ReadFile(filepath.Join(dir, "autostart", "airtouch.desktop"))
	if err != nil {
		t.Fatal(err)
	}
	if want := `Exec="/opt/air touch/airtouch" -no-tray`; !strings.Contains(string(data), want) {
		t.Errorf("Expected %q in desktop entry, got:\n%s", want, data)
	}

	if err := Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if IsEnabled() {
		t.Error("Expected autostart disabled")
	}
	if err := Disable(); err != nil {
		t.Errorf("Expected second Disable to succeed, got %v", err)
	}
}
