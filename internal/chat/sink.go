package chat

import "context"

// Sink receives streamed response fragments as they arrive.
type Sink interface {
	WriteFragment(ctx context.Context, fragment string) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, fragment string) error

func (f SinkFunc) WriteFragment(ctx context.Context, fragment string) error {
	return f(ctx, fragment)
}

// Sinks fans a fragment out to every non-nil sink in order and stops at
// the first error.
type Sinks []Sink

func (s Sinks) WriteFragment(ctx context.Context, fragment string) error {
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.WriteFragment(ctx, fragment); err != nil {
			return err
		}
	}
	return nil
}
