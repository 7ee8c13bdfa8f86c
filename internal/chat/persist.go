package chat

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type storedSession struct {
	Messages []Message `yaml:"messages"`
}

// FileName returns <title>_<RFC3339 start>.yaml, or just the timestamp
// when no title exists.
func (s *Session) FileName() string {
	ts := s.started.Format(time.RFC3339)
	if s.title == "" {
		return ts + ".yaml"
	}
	return s.title + "_" + ts + ".yaml"
}

// Persist writes the history to dir, creating it if needed, and returns
// the file path. The same session always maps to the same file once its
// title is known, so later turns replace the earlier snapshot.
func (s *Session) Persist(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(dir, s.FileName())

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create session file: %w", err)
	}
	if err := s.WriteTo(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close session file: %w", err)
	}
	return path, nil
}

// WriteTo encodes the history as YAML.
func (s *Session) WriteTo(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(storedSession{Messages: s.messages}); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return enc.Close()
}

// ReadMessages decodes a history written by WriteTo.
func ReadMessages(r io.Reader) ([]Message, error) {
	var stored storedSession
	if err := yaml.NewDecoder(r).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	for i, m := range stored.Messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("decode session: message %d has unknown role %q", i, m.Role)
		}
	}
	if len(stored.Messages) == 0 || stored.Messages[0].Role != RoleSystem {
		return nil, errors.New("decode session: first message must be a system message")
	}
	return stored.Messages, nil
}

// Load resumes a persisted conversation. Title and start time are
// recovered from the file name so further Persist calls update the same
// file.
func Load(path string, opts ...Option) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer f.Close()

	msgs, err := ReadMessages(f)
	if err != nil {
		return nil, err
	}

	s := NewSession(msgs[0].Content, opts...)
	s.messages = msgs
	s.title, s.started = parseFileName(filepath.Base(path), s.started)
	s.titleTried = s.title != ""
	return s, nil
}

func parseFileName(name string, fallback time.Time) (string, time.Time) {
	name = strings.TrimSuffix(name, ".yaml")
	title, ts := "", name
	if i := strings.LastIndex(name, "_"); i >= 0 {
		title, ts = name[:i], name[i+1:]
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", fallback
	}
	return title, t
}
