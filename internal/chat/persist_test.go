package chat

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPersist_RoundTrip(t *testing.T) {
	start := time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC)
	s := NewSession("sys", WithStart(start), WithTitles(false))
	s.AppendUser("turn on the lights")
	s.Insert(RoleAssistant, "done")
	s.messages = append(s.messages, Message{Role: RoleUser, Content: "thanks", Name: "alice"})

	dir := filepath.Join(t.TempDir(), "conversations")
	path, err := s.Persist(dir)
	if err != nil {
		t.Fatalf("Persist() error: %v", err)
	}
	if filepath.Base(path) != "2023-04-01T09:30:00Z.yaml" {
		t.Errorf("file name = %q, want timestamp only", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := ReadMessages(f)
	if err != nil {
		t.Fatalf("ReadMessages() error: %v", err)
	}
	want := s.Messages()
	if len(got) != len(want) {
		t.Fatalf("read %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWriteTo_OmitsEmptyName(t *testing.T) {
	s := NewSession("sys")
	var buf bytes.Buffer
	if err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "name:") {
		t.Errorf("output should not contain empty name field:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "role: system") {
		t.Errorf("output missing system role:\n%s", buf.String())
	}
}

func TestReadMessages_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown role", "messages:\n  - role: robot\n    content: hi\n"},
		{"no system first", "messages:\n  - role: user\n    content: hi\n"},
		{"empty", "messages: []\n"},
		{"not yaml", "messages: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadMessages(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_RecoversTitleAndStart(t *testing.T) {
	start := time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC)
	s := NewSession("sys", WithStart(start))
	s.title = "bedroom_lights"
	s.AppendUser("hi")

	dir := t.TempDir()
	path, err := s.Persist(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "bedroom_lights_2023-04-01T09:30:00Z.yaml" {
		t.Errorf("file name = %q", filepath.Base(path))
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Title() != "bedroom_lights" {
		t.Errorf("Title() = %q, want bedroom_lights", loaded.Title())
	}
	if !loaded.Started().Equal(start) {
		t.Errorf("Started() = %v, want %v", loaded.Started(), start)
	}
	if loaded.Len() != 2 {
		t.Errorf("Len() = %d, want 2", loaded.Len())
	}
	if loaded.FileName() != filepath.Base(path) {
		t.Errorf("FileName() = %q, want %q", loaded.FileName(), filepath.Base(path))
	}
}

func TestParseFileName_Fallback(t *testing.T) {
	fallback := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	title, ts := parseFileName("notes.yaml", fallback)
	if title != "" || !ts.Equal(fallback) {
		t.Errorf("parseFileName() = (%q, %v), want fallback", title, ts)
	}
}
