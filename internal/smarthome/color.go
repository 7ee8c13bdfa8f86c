package smarthome

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
)

// ColorTemperature is a fixed white point. Names decode case-insensitively
// and always encode in lower case.
type ColorTemperature string

const (
	Coolest ColorTemperature = "coolest"
	Cool    ColorTemperature = "cool"
	Neutral ColorTemperature = "neutral"
	Warm    ColorTemperature = "warm"
	Warmest ColorTemperature = "warmest"
)

var temperatures = []ColorTemperature{Coolest, Cool, Neutral, Warm, Warmest}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ParseColorTemperature accepts any letter case.
func ParseColorTemperature(s string) (ColorTemperature, error) {
	v := ColorTemperature(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range temperatures {
		if v == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown color temperature %q", s)
}

func (t *ColorTemperature) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("color temperature: %w", err)
	}
	v, err := ParseColorTemperature(raw)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (ColorTemperature) JSONSchema() *jsonschema.Schema {
	enum := make([]any, len(temperatures))
	for i, t := range temperatures {
		enum[i] = string(t)
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}

// ColorMode is either a color temperature or an arbitrary hex color.
// The zero value is invalid; use TemperatureColor or HexColor.
type ColorMode struct {
	temperature ColorTemperature
	hex         string
}

// TemperatureColor selects a fixed white point.
func TemperatureColor(t ColorTemperature) ColorMode {
	return ColorMode{temperature: t}
}

// HexColor selects an RGB color written as #rrggbb.
func HexColor(hex string) (ColorMode, error) {
	if !hexColor.MatchString(hex) {
		return ColorMode{}, fmt.Errorf("invalid hex color %q", hex)
	}
	return ColorMode{hex: hex}, nil
}

// Temperature returns the white point and whether this is a temperature
// color.
func (c ColorMode) Temperature() (ColorTemperature, bool) {
	return c.temperature, c.temperature != ""
}

// Hex returns the hex color and whether this is an RGB color.
func (c ColorMode) Hex() (string, bool) {
	return c.hex, c.hex != ""
}

func (c ColorMode) validate() error {
	switch {
	case c.temperature != "" && c.hex != "":
		return errors.New("color mode must not be both temperature and hex")
	case c.temperature == "" && c.hex == "":
		return errors.New("color mode must be temperature or hex")
	}
	return nil
}

type temperatureBody struct {
	ColorTemperature ColorTemperature `json:"color_temperature"`
}

type hexBody struct {
	HexColor string `json:"hex_color"`
}

// MarshalJSON writes the externally tagged form, for example
// {"Temperature":{"color_temperature":"neutral"}}.
func (c ColorMode) MarshalJSON() ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.hex != "" {
		return json.Marshal(map[string]hexBody{"Color": {HexColor: c.hex}})
	}
	return json.Marshal(map[string]temperatureBody{"Temperature": {ColorTemperature: c.temperature}})
}

func (c *ColorMode) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("color mode: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("color mode must have exactly one variant, got %d", len(tagged))
	}

	if body, ok := tagged["Temperature"]; ok {
		var v struct {
			ColorTemperature *ColorTemperature `json:"color_temperature"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return fmt.Errorf("color mode: %w", err)
		}
		if v.ColorTemperature == nil {
			return errors.New("color mode: missing color_temperature")
		}
		*c = TemperatureColor(*v.ColorTemperature)
		return nil
	}
	if body, ok := tagged["Color"]; ok {
		var v struct {
			HexColor *string `json:"hex_color"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return fmt.Errorf("color mode: %w", err)
		}
		if v.HexColor == nil {
			return errors.New("color mode: missing hex_color")
		}
		m, err := HexColor(*v.HexColor)
		if err != nil {
			return err
		}
		*c = m
		return nil
	}
	var name string
	for k := range tagged {
		name = k
	}
	return fmt.Errorf("color mode: unknown variant %q", name)
}

func (ColorMode) JSONSchema() *jsonschema.Schema {
	temp := jsonschema.NewProperties()
	temp.Set("color_temperature", ColorTemperature("").JSONSchema())
	tempSchema := &jsonschema.Schema{
		Type:                 "object",
		Properties:           temp,
		Required:             []string{"color_temperature"},
		AdditionalProperties: jsonschema.FalseSchema,
	}

	hex := jsonschema.NewProperties()
	hex.Set("hex_color", &jsonschema.Schema{Type: "string", Pattern: hexColor.String()})
	hexSchema := &jsonschema.Schema{
		Type:                 "object",
		Properties:           hex,
		Required:             []string{"hex_color"},
		AdditionalProperties: jsonschema.FalseSchema,
	}

	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{
		variant("Temperature", tempSchema),
		variant("Color", hexSchema),
	}}
}

func variant(tag string, body *jsonschema.Schema) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set(tag, body)
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             []string{tag},
		AdditionalProperties: jsonschema.FalseSchema,
	}
}
