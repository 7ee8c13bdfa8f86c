package chat

import (
	"fmt"
	"time"
)

const (
	// KnowledgeCutoff is quoted in the persona prompts.
	KnowledgeCutoff = "September 2021"

	// TokenLimit is the context size of the default model.
	TokenLimit = 4096

	DefaultPersona = "default"
	JoiPersona     = "joi"
)

// SystemInstructions returns the persona system prompts keyed by name.
func SystemInstructions(now time.Time) map[string]string {
	ts := now.Format(time.RFC3339)
	return map[string]string{
		DefaultPersona: fmt.Sprintf("You are ChatGPT, a large language model trained by OpenAI.\n"+
			"Answer as concisely as possible. Knowledge cutoff year %s Current date and time: %s", KnowledgeCutoff, ts),
		JoiPersona: fmt.Sprintf("You are Joi. The cheerful and helpful AI assistant.\n"+
			"Knowledge cutoff year %s Current date and time: %s", KnowledgeCutoff, ts),
	}
}
