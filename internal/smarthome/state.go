// Package smarthome keeps the typed smart-home snapshot and reconciles it
// with a chat model and MQTT subscribers.
package smarthome

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// State is a snapshot of every controllable device.
type State struct {
	Lights Lights  `json:"lights"`
	Alarms []Alarm `json:"alarms,omitempty"`
}

// Lights holds one Light per room. A room missing from the JSON keeps the
// default light.
type Lights struct {
	Bedroom              Light `json:"bedroom"`
	LivingRoom           Light `json:"living_room"`
	Hallway              Light `json:"hallway"`
	LivingRoomMoodLights Light `json:"living_room_mood_lights"`
}

// Alarm is a scheduled alarm. Time is kept as the model wrote it.
type Alarm struct {
	ISO8601Time string `json:"iso8601_time"`
	Active      bool   `json:"active"`
	Name        string `json:"name"`
}

// Light is one dimmable light.
type Light struct {
	State      LightState `json:"state"`
	Brightness uint8      `json:"brightness" jsonschema:"minimum=0,maximum=255"`
	Color      ColorMode  `json:"color"`
}

// LightState is On or Off.
type LightState string

const (
	On  LightState = "On"
	Off LightState = "Off"
)

// ErrBrightnessRange is returned for brightness values outside 0..255.
var ErrBrightnessRange = errors.New("brightness must be between 0 and 255")

// DefaultLight is the state of a light nobody has touched.
func DefaultLight() Light {
	return Light{State: Off, Brightness: 0, Color: TemperatureColor(Neutral)}
}

// DefaultState returns every light at its default and no alarms.
func DefaultState() State {
	return State{Lights: Lights{
		Bedroom:              DefaultLight(),
		LivingRoom:           DefaultLight(),
		Hallway:              DefaultLight(),
		LivingRoomMoodLights: DefaultLight(),
	}}
}

// IsZero reports whether s was never populated, as returned by a wait
// that timed out.
func (s State) IsZero() bool {
	return s.Lights == (Lights{}) && len(s.Alarms) == 0
}

// NewLight validates brightness. Out of range values are rejected, never
// clamped.
func NewLight(state LightState, brightness int, color ColorMode) (Light, error) {
	if brightness < 0 || brightness > 255 {
		return Light{}, fmt.Errorf("%w: got %d", ErrBrightnessRange, brightness)
	}
	if err := state.validate(); err != nil {
		return Light{}, err
	}
	if err := color.validate(); err != nil {
		return Light{}, err
	}
	return Light{State: state, Brightness: uint8(brightness), Color: color}, nil
}

func (s LightState) validate() error {
	switch s {
	case On, Off:
		return nil
	}
	return fmt.Errorf("unknown light state %q", string(s))
}

func (s *LightState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("light state: %w", err)
	}
	v := LightState(raw)
	if err := v.validate(); err != nil {
		return err
	}
	*s = v
	return nil
}

func (LightState) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Enum: []any{string(On), string(Off)}}
}

func (l *Light) UnmarshalJSON(data []byte) error {
	var raw struct {
		State      *LightState `json:"state"`
		Brightness *int        `json:"brightness"`
		Color      *ColorMode  `json:"color"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.State == nil || raw.Brightness == nil || raw.Color == nil {
		return errors.New("light requires state, brightness and color")
	}
	light, err := NewLight(*raw.State, *raw.Brightness, *raw.Color)
	if err != nil {
		return err
	}
	*l = light
	return nil
}

func (l *Lights) UnmarshalJSON(data []byte) error {
	type plain Lights
	v := plain(DefaultState().Lights)
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*l = Lights(v)
	return nil
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lights *Lights `json:"lights"`
		Alarms []Alarm `json:"alarms"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Lights == nil {
		return errors.New("state requires lights")
	}
	*s = State{Lights: *raw.Lights, Alarms: raw.Alarms}
	return nil
}

// ParseState decodes a state document.
func ParseState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parse smart home state: %w", err)
	}
	return s, nil
}

// JSON renders the state as indented JSON.
func (s State) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode smart home state: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Schema returns the JSON schema of State as indented JSON.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(&State{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode smart home schema: %w", err)
	}
	return out, nil
}
