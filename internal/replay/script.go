// ABOUTME: YAML replay scripts describing commands and provider events over time
// ABOUTME: Parses and validates scripts; step and fix times are offsets from the script start

package replay

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/recorder"
	"gopkg.in/yaml.v3"
)

// Script is a timed sequence of steps replayed against a controller.
type Script struct {
	Name     string             `yaml:"name"`
	Start    time.Time          `yaml:"start"`
	Settings *recorder.Settings `yaml:"settings,omitempty"`
	Steps    []Step             `yaml:"steps"`
}

// Step happens At after the script start and carries exactly one action.
type Step struct {
	At             time.Duration                `yaml:"at"`
	Command        string                       `yaml:"command,omitempty"`
	Name           string                       `yaml:"name,omitempty"`
	Fixes          []ScriptFix                  `yaml:"fixes,omitempty"`
	Heading        *ScriptHeading               `yaml:"heading,omitempty"`
	Authorization  recorder.AuthorizationStatus `yaml:"authorization,omitempty"`
	ProviderPaused bool                         `yaml:"provider_paused,omitempty"`
	ProviderError  recorder.ProviderErrorKind   `yaml:"provider_error,omitempty"`
	Background     *bool                        `yaml:"background,omitempty"`
}

// ScriptFix is a fix sensed At after the script start. It may be sensed
// long before the step that delivers it.
type ScriptFix struct {
	At        time.Duration `yaml:"at"`
	Latitude  float64       `yaml:"lat"`
	Longitude float64       `yaml:"lng"`
	Altitude  float64       `yaml:"alt,omitempty"`
	Accuracy  float64       `yaml:"accuracy"`
	Speed     float64       `yaml:"speed,omitempty"`
}

// ScriptHeading is a compass reading.
type ScriptHeading struct {
	Degrees  float64 `yaml:"degrees"`
	Accuracy float64 `yaml:"accuracy"`
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided script
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script. Unknown keys are rejected.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that steps are ordered and each carries one action.
func (s *Script) Validate() error {
	if s.Start.IsZero() {
		return errors.New("script start time is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("script has no steps")
	}
	var prev time.Duration
	for i, step := range s.Steps {
		if step.At < prev {
			return fmt.Errorf("step %d: at %v is before the previous step", i+1, step.At)
		}
		prev = step.At
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	actions := 0
	if st.Command != "" {
		actions++
		if _, err := recorder.ParseCommand(st.Command); err != nil {
			return err
		}
	}
	if st.Name != "" && st.Command != string(recorder.CommandStart) {
		return errors.New("name is only valid with the start command")
	}
	if len(st.Fixes) > 0 {
		actions++
		for j, f := range st.Fixes {
			if err := models.ValidateCoordinates(f.Latitude, f.Longitude); err != nil {
				return fmt.Errorf("fix %d: %w", j+1, err)
			}
		}
	}
	if st.Heading != nil {
		actions++
	}
	if st.Authorization != "" {
		actions++
		switch st.Authorization {
		case recorder.AuthNotDetermined, recorder.AuthRestricted, recorder.AuthDenied,
			recorder.AuthWhenInUse, recorder.AuthAlways:
		default:
			return fmt.Errorf("unknown authorization %q", st.Authorization)
		}
	}
	if st.ProviderPaused {
		actions++
	}
	if st.ProviderError != "" {
		actions++
	}
	if st.Background != nil {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("expected exactly one action, got %d", actions)
	}
	return nil
}

// Fix converts a script fix to a provider fix.
func (s *Script) Fix(f ScriptFix) models.Fix {
	return models.Fix{
		Timestamp:          s.Start.Add(f.At),
		Latitude:           f.Latitude,
		Longitude:          f.Longitude,
		Altitude:           f.Altitude,
		HorizontalAccuracy: f.Accuracy,
		Speed:              f.Speed,
	}
}
