package smarthome

import (
	"context"
	"fmt"
)

// MQTT topics shared with the other home automation components.
const (
	StateTopic        = "chatty/home_state/simple/v2"
	VoiceCommandTopic = "chatty/audio_command/simple"
	ResetTopic        = "chatty/audio_command/reset_chat_manager"
	TranscriptTopic   = "chatty/audio_command/response/transcript"
	SpeechTopic       = "home_speak/say/cheerful"
)

// Publisher sends one MQTT message. *mqtt.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
}

// PublishState writes the state as indented JSON, retained, so late
// subscribers recover the last known state.
func PublishState(ctx context.Context, p Publisher, topic string, state State) error {
	js, err := state.JSON()
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, topic, 0, true, js); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// PublishSpeech sends text to a text-to-speech topic.
func PublishSpeech(ctx context.Context, p Publisher, topic, text string) error {
	if err := p.Publish(ctx, topic, 0, false, []byte(text)); err != nil {
		return fmt.Errorf("publish speech: %w", err)
	}
	return nil
}
