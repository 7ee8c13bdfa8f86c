package smarthome

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseState_DefaultsMissingRooms(t *testing.T) {
	s, err := ParseState([]byte(`{"lights":{"bedroom":{"state":"On","brightness":10,"color":{"Color":{"hex_color":"#ff8800"}}}}}`))
	if err != nil {
		t.Fatalf("ParseState() error: %v", err)
	}
	if s.Lights.Bedroom.State != On || s.Lights.Bedroom.Brightness != 10 {
		t.Errorf("bedroom = %+v", s.Lights.Bedroom)
	}
	if hex, ok := s.Lights.Bedroom.Color.Hex(); !ok || hex != "#ff8800" {
		t.Errorf("bedroom color = %q, %v", hex, ok)
	}
	if s.Lights.Hallway != DefaultLight() {
		t.Errorf("hallway = %+v, want default light", s.Lights.Hallway)
	}
}

func TestParseState_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"brightness too high", `{"lights":{"bedroom":{"state":"On","brightness":256,"color":{"Temperature":{"color_temperature":"warm"}}}}}`},
		{"negative brightness", `{"lights":{"bedroom":{"state":"On","brightness":-1,"color":{"Temperature":{"color_temperature":"warm"}}}}}`},
		{"both color variants", `{"lights":{"bedroom":{"state":"On","brightness":1,"color":{"Temperature":{"color_temperature":"warm"},"Color":{"hex_color":"#000000"}}}}}`},
		{"no color variant", `{"lights":{"bedroom":{"state":"On","brightness":1,"color":{}}}}`},
		{"unknown temperature", `{"lights":{"bedroom":{"state":"On","brightness":1,"color":{"Temperature":{"color_temperature":"hot"}}}}}`},
		{"bad hex", `{"lights":{"bedroom":{"state":"On","brightness":1,"color":{"Color":{"hex_color":"orange"}}}}}`},
		{"missing brightness", `{"lights":{"bedroom":{"state":"On","color":{"Temperature":{"color_temperature":"warm"}}}}}`},
		{"unknown light state", `{"lights":{"bedroom":{"state":"Dim","brightness":1,"color":{"Temperature":{"color_temperature":"warm"}}}}}`},
		{"no lights", `{"alarms":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseState([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewLight_BrightnessNeverClamped(t *testing.T) {
	for _, b := range []int{-1, 256, 1000} {
		if _, err := NewLight(On, b, TemperatureColor(Warm)); !errors.Is(err, ErrBrightnessRange) {
			t.Errorf("NewLight(brightness=%d) error = %v, want ErrBrightnessRange", b, err)
		}
	}
	l, err := NewLight(On, 255, TemperatureColor(Warm))
	if err != nil {
		t.Fatalf("NewLight(255) error: %v", err)
	}
	if l.Brightness != 255 {
		t.Errorf("Brightness = %d, want 255", l.Brightness)
	}
}

func TestColorTemperature_CaseInsensitive(t *testing.T) {
	s, err := ParseState([]byte(`{"lights":{"bedroom":{"state":"On","brightness":255,"color":{"Temperature":{"color_temperature":"Neutral"}}}}}`))
	if err != nil {
		t.Fatalf("ParseState() error: %v", err)
	}
	temp, ok := s.Lights.Bedroom.Color.Temperature()
	if !ok || temp != Neutral {
		t.Errorf("temperature = %q, %v, want neutral", temp, ok)
	}

	js, err := s.JSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(js), `"color_temperature": "neutral"`) {
		t.Errorf("temperature should encode lower case:\n%s", js)
	}
}

func TestColorMode_ExactlyOneVariantOnWire(t *testing.T) {
	hex, err := HexColor("#00ff00")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []ColorMode{TemperatureColor(Warmest), hex} {
		out, err := json.Marshal(c)
		if err != nil {
			t.Fatal(err)
		}
		var tagged map[string]json.RawMessage
		if err := json.Unmarshal(out, &tagged); err != nil {
			t.Fatal(err)
		}
		if len(tagged) != 1 {
			t.Errorf("%s has %d variants, want 1", out, len(tagged))
		}
	}

	if _, err := json.Marshal(ColorMode{}); err == nil {
		t.Error("zero ColorMode should not marshal")
	}
}

func TestState_JSONRoundTrip(t *testing.T) {
	s := DefaultState()
	warm, _ := NewLight(On, 128, TemperatureColor(Warm))
	s.Lights.LivingRoom = warm
	s.Alarms = []Alarm{{ISO8601Time: "2023-04-01T07:00:00Z", Active: true, Name: "wake up"}}

	js, err := s.JSON()
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseState(js)
	if err != nil {
		t.Fatalf("ParseState() error: %v", err)
	}
	if back.Lights != s.Lights {
		t.Errorf("lights = %+v, want %+v", back.Lights, s.Lights)
	}
	if len(back.Alarms) != 1 || back.Alarms[0] != s.Alarms[0] {
		t.Errorf("alarms = %+v, want %+v", back.Alarms, s.Alarms)
	}
}

func TestState_IsZero(t *testing.T) {
	if !(State{}).IsZero() {
		t.Error("State{} should be zero")
	}
	if DefaultState().IsZero() {
		t.Error("DefaultState() should not be zero")
	}
}

func TestSchema(t *testing.T) {
	out, err := Schema()
	if err != nil {
		t.Fatalf("Schema() error: %v", err)
	}
	for _, want := range []string{"living_room_mood_lights", "color_temperature", "hex_color", "oneOf", "iso8601_time"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("schema missing %q", want)
		}
	}
}

func TestComposePrompt(t *testing.T) {
	now := time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC)
	got, err := ComposePrompt(DefaultState(), now, "turn on the bedroom light")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "CURRENT_DATE_TIME: 2023-04-01T09:30:00Z\nHOUSE_STATE:\n```json\n{") {
		t.Errorf("prompt prefix wrong:\n%s", got)
	}
	if !strings.HasSuffix(got, "}\n```\nUSER_REQUEST:\nturn on the bedroom light") {
		t.Errorf("prompt suffix wrong:\n%s", got)
	}
}

func TestSystemPrompt(t *testing.T) {
	got, err := SystemPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "You are an AI in charge of a smart home.") {
		t.Errorf("unexpected prompt start: %q", got[:40])
	}
	if !strings.HasSuffix(got, `prefaced with a line that says "MESSAGE:"`) {
		t.Errorf("prompt should end with the message rule")
	}
}

func TestExtractState(t *testing.T) {
	t.Run("no braces", func(t *testing.T) {
		s, err := ExtractState("nothing to see here")
		if s != nil || err != nil {
			t.Errorf("ExtractState() = %v, %v, want nil, nil", s, err)
		}
	})

	t.Run("closing brace before opening", func(t *testing.T) {
		s, err := ExtractState("} oops {")
		if s != nil || err != nil {
			t.Errorf("ExtractState() = %v, %v, want nil, nil", s, err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ExtractState("here {not json} MESSAGE: hi")
		var malformed *MalformedStateError
		if !errors.As(err, &malformed) {
			t.Fatalf("error = %v, want *MalformedStateError", err)
		}
		if malformed.Span != "{not json}" {
			t.Errorf("Span = %q", malformed.Span)
		}
	})

	t.Run("embedded in prose", func(t *testing.T) {
		text := "Sure!\n```json\n" + `{"lights":{"hallway":{"state":"On","brightness":5,"color":{"Temperature":{"color_temperature":"cool"}}}}}` + "\n```\nMESSAGE: Done."
		s, err := ExtractState(text)
		if err != nil {
			t.Fatalf("ExtractState() error: %v", err)
		}
		if s == nil || s.Lights.Hallway.State != On {
			t.Errorf("hallway not on: %+v", s)
		}
	})
}

func TestExtractUserMessage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"{...}\nMESSAGE: Bedroom light is on.", "Bedroom light is on."},
		{"  no marker at all  ", "no marker at all"},
		{"MESSAGE:MESSAGE: twice", "twice"},
		{"prefix MESSAGE:\n  Hello\n", "Hello"},
	}
	for _, tt := range tests {
		if got := ExtractUserMessage(tt.in); got != tt.want {
			t.Errorf("ExtractUserMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
