// Package llm talks to the OpenAI chat and transcription endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"chatty/internal/chat"
)

// TranscribeModel is the remote speech-to-text model.
const TranscribeModel = openai.AudioModelWhisper1

// OpenAI implements chat.Completer and speech transcription on top of the
// official client.
type OpenAI struct {
	client openai.Client
	logger *slog.Logger
}

// NewOpenAI builds a client. httpClient may be nil; pass the SOCKS client
// from internal/proxy to route through a proxy.
func NewOpenAI(apiKey string, httpClient *http.Client, logger *slog.Logger) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

func (o *OpenAI) Complete(ctx context.Context, req chat.Request) (chat.Completion, error) {
	resp, err := o.client.Chat.Completions.New(ctx, params(req))
	if err != nil {
		return chat.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return chat.Completion{}, errors.New("no choices in response")
	}

	msg := resp.Choices[0].Message
	o.logger.Debug("completion received", "model", resp.Model, "tokens", resp.Usage.TotalTokens)

	return chat.Completion{
		Message:     chat.Message{Role: chat.Role(msg.Role), Content: msg.Content},
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

func (o *OpenAI) Stream(ctx context.Context, req chat.Request, fn func(chat.Delta) error) error {
	stream := o.client.Chat.Completions.NewStreaming(ctx, params(req))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if err := fn(chat.Delta{Role: chat.Role(delta.Role), Content: delta.Content}); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	return nil
}

// Transcribe sends audio to the remote transcription model. filename is
// used by the API to detect the container format.
func (o *OpenAI) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, ""),
		Model: TranscribeModel,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	o.logger.Debug("transcribed", "chars", len(resp.Text))
	return resp.Text, nil
}

func params(req chat.Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toParam(m))
	}
	return openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(req.Model),
	}
}

func toParam(m chat.Message) openai.ChatCompletionMessageParamUnion {
	var p openai.ChatCompletionMessageParamUnion
	switch m.Role {
	case chat.RoleSystem:
		p = openai.SystemMessage(m.Content)
		if m.Name != "" {
			p.OfSystem.Name = openai.String(m.Name)
		}
	case chat.RoleAssistant:
		p = openai.AssistantMessage(m.Content)
		if m.Name != "" {
			p.OfAssistant.Name = openai.String(m.Name)
		}
	default:
		p = openai.UserMessage(m.Content)
		if m.Name != "" {
			p.OfUser.Name = openai.String(m.Name)
		}
	}
	return p
}
