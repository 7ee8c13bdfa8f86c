package smarthome

import (
	"fmt"
	"strings"
	"time"
)

// MessageMarker prefixes the part of a reply meant for the user.
const MessageMarker = "MESSAGE:"

// SystemPrompt instructs the model to answer with the updated state
// followed by a message for the user.
func SystemPrompt() (string, error) {
	schema, err := Schema()
	if err != nil {
		return "", err
	}
	return "You are an AI in charge of a smart home. Each message will start with\n" +
		"json of the current home status followed by a user request.\n" +
		"Respond with json of the updated smart home state followed by a message for the user.\n" +
		"Schema for smart home state is " + string(schema) + ".\n" +
		"Message for user should be prefaced with a line that says \"" + MessageMarker + "\"", nil
}

// ComposePrompt embeds the current time and state ahead of the request.
func ComposePrompt(state State, now time.Time, request string) (string, error) {
	js, err := state.JSON()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CURRENT_DATE_TIME: %s\nHOUSE_STATE:\n```json\n%s\n```\nUSER_REQUEST:\n%s",
		now.Format(time.RFC3339), js, request), nil
}

// MalformedStateError reports a brace-delimited span that is not a
// valid state document. It is recoverable: the previous state stays.
type MalformedStateError struct {
	Span string
	Err  error
}

func (e *MalformedStateError) Error() string {
	return fmt.Sprintf("malformed smart home state: %v", e.Err)
}

func (e *MalformedStateError) Unwrap() error { return e.Err }

// ExtractState parses the text between the first '{' and the last '}'
// inclusive. It returns nil, nil when there is no such pair.
func ExtractState(text string) (*State, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, nil
	}
	span := text[start : end+1]
	s, err := ParseState([]byte(span))
	if err != nil {
		return nil, &MalformedStateError{Span: span, Err: err}
	}
	return &s, nil
}

// ExtractUserMessage returns the text from the first marker on with
// every marker removed, trimmed. Without a marker the whole trimmed text
// is returned.
func ExtractUserMessage(text string) string {
	if i := strings.Index(text, MessageMarker); i >= 0 {
		text = text[i:]
	}
	return strings.TrimSpace(strings.ReplaceAll(text, MessageMarker, ""))
}
