package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ErrTurnInProgress is returned when a completion is requested while
// another one on the same session has not finished.
var ErrTurnInProgress = errors.New("chat: a completion is already in flight for this session")

const titleRequest = "How would you title this conversation up until before this message? " +
	"Answer in all lowercase with underscores \"_\" between words so that it can be used as a file name. Be concise."

const maxTitleLen = 64

// Session is an ordered conversation. The first message is always the
// system prompt. A Session is owned by one goroutine; the only
// concurrency guarantee is that two completions never overlap.
type Session struct {
	model    string
	messages []Message
	started  time.Time
	title    string

	titles     bool
	titleTried bool
	usage      int64

	busy   atomic.Bool
	logger *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(s *Session) { s.model = model }
}

// WithTitles enables best-effort title generation after the first
// completion.
func WithTitles(enabled bool) Option {
	return func(s *Session) { s.titles = enabled }
}

// WithStart overrides the conversation start time.
func WithStart(t time.Time) Option {
	return func(s *Session) { s.started = t }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// NewSession starts a conversation with a single system message.
func NewSession(systemPrompt string, opts ...Option) *Session {
	s := &Session{
		messages: []Message{{Role: RoleSystem, Content: systemPrompt}},
		started:  time.Now(),
		titles:   true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Messages returns a copy of the history, oldest first.
func (s *Session) Messages() []Message {
	return append([]Message(nil), s.messages...)
}

// Len returns the number of messages including the system prompt.
func (s *Session) Len() int { return len(s.messages) }

// Title returns the generated title, or "" if none exists yet.
func (s *Session) Title() string { return s.title }

// Started returns when the conversation began.
func (s *Session) Started() time.Time { return s.started }

// TokenUsage returns the total token count reported by the last
// non-streaming completion, or 0 if unknown.
func (s *Session) TokenUsage() int64 { return s.usage }

// AppendUser pushes a user message.
func (s *Session) AppendUser(text string) Message {
	return s.Insert(RoleUser, text)
}

// Insert appends a message without talking to the API. It is meant for
// manipulating history, for example replaying a transcript.
func (s *Session) Insert(role Role, text string) Message {
	m := Message{Role: role, Content: text}
	s.messages = append(s.messages, m)
	return m
}

// Next appends a user message and runs a non-streaming completion. A
// rejected call appends nothing.
func (s *Session) Next(ctx context.Context, c Completer, text string) (string, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return "", ErrTurnInProgress
	}
	defer s.busy.Store(false)

	s.AppendUser(text)
	return s.complete(ctx, c)
}

// NextStreaming appends a user message and runs a streaming completion.
func (s *Session) NextStreaming(ctx context.Context, c Completer, text string, sink Sink) (string, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return "", ErrTurnInProgress
	}
	defer s.busy.Store(false)

	s.AppendUser(text)
	return s.completeStreaming(ctx, c, sink)
}

// Complete sends the whole history and appends the assistant reply. On
// failure the history is left as it was, including any user message
// appended before the call, so a retry resends it.
func (s *Session) Complete(ctx context.Context, c Completer) (string, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return "", ErrTurnInProgress
	}
	defer s.busy.Store(false)

	return s.complete(ctx, c)
}

func (s *Session) complete(ctx context.Context, c Completer) (string, error) {
	comp, err := c.Complete(ctx, s.request())
	if err != nil {
		return "", &APIError{Op: "complete", Err: err}
	}

	reply := comp.Message
	if !reply.Role.Valid() {
		reply.Role = RoleAssistant
	}
	s.messages = append(s.messages, Message{Role: reply.Role, Content: reply.Content})
	s.usage = comp.TotalTokens

	s.populateTitle(ctx, c)
	return reply.Content, nil
}

// CompleteStreaming is Complete over a token stream. Each fragment is
// forwarded to sink as it arrives and the concatenated text becomes one
// assistant message. The role comes from the first fragment that
// carries one.
func (s *Session) CompleteStreaming(ctx context.Context, c Completer, sink Sink) (string, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return "", ErrTurnInProgress
	}
	defer s.busy.Store(false)

	return s.completeStreaming(ctx, c, sink)
}

func (s *Session) completeStreaming(ctx context.Context, c Completer, sink Sink) (string, error) {
	var (
		role    Role
		buf     strings.Builder
		sinkErr error
	)
	err := c.Stream(ctx, s.request(), func(d Delta) error {
		if role == "" && d.Role != "" {
			role = d.Role
		}
		if d.Content == "" {
			return nil
		}
		buf.WriteString(d.Content)
		if sink == nil {
			return nil
		}
		if err := sink.WriteFragment(ctx, d.Content); err != nil {
			sinkErr = err
			return err
		}
		return nil
	})
	if sinkErr != nil {
		return "", &APIError{Op: "stream sink", Err: sinkErr}
	}
	if err != nil {
		return "", &APIError{Op: "stream", Err: err}
	}

	if !role.Valid() {
		role = RoleAssistant
	}
	text := buf.String()
	s.messages = append(s.messages, Message{Role: role, Content: text})

	s.populateTitle(ctx, c)
	return text, nil
}

func (s *Session) request() Request {
	return Request{Model: s.model, Messages: s.Messages()}
}

// populateTitle asks the model once for a filename-safe title. Failures
// are logged and never reach the caller.
func (s *Session) populateTitle(ctx context.Context, c Completer) {
	if !s.titles || s.titleTried || s.title != "" {
		return
	}
	s.titleTried = true

	msgs := append(s.Messages(), Message{Role: RoleUser, Content: titleRequest})
	comp, err := c.Complete(ctx, Request{Model: s.model, Messages: msgs})
	if err != nil {
		s.logger.Debug("conversation title generation failed", "error", err)
		return
	}
	s.title = SanitizeTitle(comp.Message.Content)
}

// SanitizeTitle lowercases t and keeps only characters safe in a file
// name, joining words with underscores.
func SanitizeTitle(t string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(t)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
		if b.Len() >= maxTitleLen {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
