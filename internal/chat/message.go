// Package chat keeps an ordered conversation with a chat completion model
// and persists it as YAML.
package chat

import (
	"context"
	"fmt"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single turn in a conversation. Messages are never mutated
// after they are appended to a session.
type Message struct {
	Role    Role   `yaml:"role"`
	Content string `yaml:"content"`
	// Name identifies the author in multi-user chats.
	Name string `yaml:"name,omitempty"`
}

// Request is one call to a chat completion model.
type Request struct {
	Model    string
	Messages []Message
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Message     Message
	TotalTokens int64
}

// Delta is one streamed fragment. Role and Content are both optional.
type Delta struct {
	Role    Role
	Content string
}

// Completer is the remote chat model.
type Completer interface {
	// Complete sends the request and waits for the whole response.
	Complete(ctx context.Context, req Request) (Completion, error)

	// Stream sends the request and calls fn for every fragment as it
	// arrives. An error returned by fn aborts the stream and is returned.
	Stream(ctx context.Context, req Request, fn func(Delta) error) error
}

// APIError wraps a failed call to the remote chat API.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }
