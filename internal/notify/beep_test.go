package notify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBeep_MissingFile(t *testing.T) {
	if err := Beep(filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestBeep_NotMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beep.mp3")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Beep(path); err == nil {
		t.Error("expected decode error")
	}
}
