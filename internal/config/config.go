// Package config defines the runtime settings and the scene script
// schema. Scripts are YAML (JSON parses as a YAML subset, so both work).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything the pipeline needs that is not in the script.
type Config struct {
	ScriptPath     string
	OutputDir      string
	Width          int
	Height         int
	FPS            int
	FadeDuration   float64
	TransitionType string
	VideoEncoder   string
	Quality        int
	FontSize       int
	DetectorName   string
	CaptionStyle   string // overrides the script when set
	SkipGeneration bool
	MaxAttempts    int
	BaseDelay      time.Duration
	MusicVolume    float64
	BuildVersion   string
}

// MusicSpec names a music source: either an existing file or a prompt for
// a generation backend, never both.
type MusicSpec struct {
	File   string `yaml:"file,omitempty"`
	Prompt string `yaml:"prompt,omitempty"`
}

func (m *MusicSpec) validate(section string) error {
	if m.File != "" && m.Prompt != "" {
		return fmt.Errorf("%s: file and prompt are mutually exclusive", section)
	}
	if m.File == "" && m.Prompt == "" {
		return fmt.Errorf("%s: one of file or prompt is required", section)
	}
	return nil
}

// Scene is one narrated shot. Style overrides the script-level art style.
type Scene struct {
	Text  string `yaml:"text"`
	Style string `yaml:"style,omitempty"`
}

// Script is the declarative input: what to say, how it should look, and
// what to put around it.
type Script struct {
	Title           string     `yaml:"title"`
	Style           string     `yaml:"style,omitempty"`
	CaptionStyle    string     `yaml:"caption_style,omitempty"`
	Scenes          []Scene    `yaml:"scenes"`
	BackgroundMusic *MusicSpec `yaml:"background_music,omitempty"`
	ClosingCredits  *MusicSpec `yaml:"closing_credits,omitempty"`
	CreditsLink     string     `yaml:"credits_link,omitempty"`
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return &s, nil
}

func (s *Script) Validate() error {
	if len(s.Scenes) == 0 {
		return fmt.Errorf("no scenes")
	}
	for i, sc := range s.Scenes {
		if sc.Text == "" {
			return fmt.Errorf("scene %d has no text", i)
		}
	}
	switch s.CaptionStyle {
	case "", "static", "dynamic":
	default:
		return fmt.Errorf("unknown caption_style %q", s.CaptionStyle)
	}
	if s.BackgroundMusic != nil {
		if err := s.BackgroundMusic.validate("background_music"); err != nil {
			return err
		}
	}
	if s.ClosingCredits != nil {
		if err := s.ClosingCredits.validate("closing_credits"); err != nil {
			return err
		}
	}
	return nil
}

// SceneStyle resolves the effective art style for scene i.
func (s *Script) SceneStyle(i int) string {
	if i >= 0 && i < len(s.Scenes) && s.Scenes[i].Style != "" {
		return s.Scenes[i].Style
	}
	return s.Style
}

// Save writes the script back out as YAML (used by scripting tools and
// tests).
func (s *Script) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding script: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the runtime defaults; cmd flags override them.
func Default() Config {
	return Config{
		OutputDir:      "output",
		Width:          1280,
		Height:         720,
		FPS:            30,
		FadeDuration:   0.5,
		TransitionType: "fade",
		Quality:        23,
		FontSize:       42,
		DetectorName:   "contrast",
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		MusicVolume:    0.3,
	}
}
