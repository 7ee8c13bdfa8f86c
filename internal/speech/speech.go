// Package speech turns recorded audio into text, locally or remotely,
// and carries recordings over MQTT as JSON audio commands.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Transcriber converts an encoded audio file to text. *llm.OpenAI and
// *stt.Transcriber implement it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// AudioMessage is the payload of an audio command.
type AudioMessage struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// FileName is the name the recording is sent to the transcriber under.
func (m AudioMessage) FileName() string {
	return "recorded." + m.Format
}

// EncodeAudioMessage wraps raw audio, for example a WAV file, as JSON.
func EncodeAudioMessage(audio []byte, format string) ([]byte, error) {
	if err := validFormat(format); err != nil {
		return nil, err
	}
	return json.Marshal(AudioMessage{
		Data:   base64.StdEncoding.EncodeToString(audio),
		Format: format,
	})
}

// DecodeAudioMessage parses an audio command and returns it with the
// decoded audio. Padded and unpadded base64 are both accepted.
func DecodeAudioMessage(payload []byte) (AudioMessage, []byte, error) {
	var msg AudioMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return AudioMessage{}, nil, fmt.Errorf("parse audio message: %w", err)
	}
	if err := validFormat(msg.Format); err != nil {
		return AudioMessage{}, nil, err
	}

	data := strings.TrimSpace(msg.Data)
	audio, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		audio, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	}
	if err != nil {
		return AudioMessage{}, nil, fmt.Errorf("decode audio message data: %w", err)
	}
	return msg, audio, nil
}

// TranscribeMessage decodes an audio command and transcribes it.
func TranscribeMessage(ctx context.Context, t Transcriber, payload []byte) (string, error) {
	msg, audio, err := DecodeAudioMessage(payload)
	if err != nil {
		return "", err
	}
	text, err := t.Transcribe(ctx, bytes.NewReader(audio), msg.FileName())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func validFormat(format string) error {
	if format == "" {
		return errors.New("audio message: missing format")
	}
	if strings.ContainsAny(format, `/\.`) {
		return fmt.Errorf("audio message: invalid format %q", format)
	}
	return nil
}
