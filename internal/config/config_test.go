package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScriptYAML(t *testing.T) {
	path := writeScript(t, `
title: A short story
style: watercolor
caption_style: dynamic
scenes:
  - text: "Once upon a time."
  - text: "The end."
    style: oil painting
background_music:
  prompt: gentle piano
closing_credits:
  file: credits.mp3
credits_link: https://example.com/story
`)
	s, err := LoadScript(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Title != "A short story" || len(s.Scenes) != 2 {
		t.Errorf("unexpected script: %+v", s)
	}
	if s.SceneStyle(0) != "watercolor" {
		t.Errorf("SceneStyle(0) = %q", s.SceneStyle(0))
	}
	if s.SceneStyle(1) != "oil painting" {
		t.Errorf("SceneStyle(1) = %q", s.SceneStyle(1))
	}
	if s.BackgroundMusic.Prompt != "gentle piano" {
		t.Errorf("background music: %+v", s.BackgroundMusic)
	}
}

func TestLoadScriptJSON(t *testing.T) {
	path := writeScript(t, `{"title": "t", "scenes": [{"text": "hello"}]}`)
	s, err := LoadScript(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Scenes[0].Text != "hello" {
		t.Errorf("scenes = %+v", s.Scenes)
	}
}

func TestScriptValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"no scenes",
			`title: x`,
			"no scenes",
		},
		{
			"empty scene text",
			"scenes:\n  - text: \"\"",
			"scene 0",
		},
		{
			"bad caption style",
			"caption_style: karaoke\nscenes:\n  - text: hi",
			"caption_style",
		},
		{
			"music file and prompt",
			"scenes:\n  - text: hi\nbackground_music:\n  file: a.mp3\n  prompt: jazz",
			"mutually exclusive",
		},
		{
			"empty music block",
			"scenes:\n  - text: hi\nclosing_credits: {}",
			"one of file or prompt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScript(writeScript(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestScriptRoundTrip(t *testing.T) {
	s := &Script{
		Title:  "round trip",
		Scenes: []Scene{{Text: "one"}, {Text: "two", Style: "ink"}},
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadScript(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != s.Title || len(got.Scenes) != 2 || got.Scenes[1].Style != "ink" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
