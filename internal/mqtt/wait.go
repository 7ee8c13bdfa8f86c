package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WaitForFirstMessage consumes queue until a message on topic decodes
// as JSON into T, then returns it. Messages on other topics are
// discarded. When timeout elapses first, the zero value of T is returned
// with a nil error. A payload that does not decode is skipped when
// ignoreParseErrors is set and returned as an error otherwise.
func WaitForFirstMessage[T any](ctx context.Context, queue <-chan Message, topic string, timeout time.Duration, ignoreParseErrors bool) (T, error) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			return zero, nil
		case msg, ok := <-queue:
			if !ok {
				return zero, nil
			}
			if msg.Topic != topic {
				continue
			}
			var v T
			if err := json.Unmarshal(msg.Payload, &v); err != nil {
				if ignoreParseErrors {
					continue
				}
				return zero, fmt.Errorf("decode message on %s: %w", topic, err)
			}
			return v, nil
		}
	}
}

// Drain returns every message already queued without blocking.
func Drain(queue <-chan Message) []Message {
	var out []Message
	for {
		select {
		case msg, ok := <-queue:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}
