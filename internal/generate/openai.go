package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/ivlev/script2video/internal/align"
	"github.com/ivlev/script2video/internal/retry"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIImages generates scene images through the images API.
type OpenAIImages struct {
	c     *client
	Model string
	Size  string
}

func NewOpenAIImages(apiKey string) *OpenAIImages {
	return &OpenAIImages{
		c:     newClient(openAIBaseURL, apiKey, 0.5),
		Model: "dall-e-3",
		Size:  "1792x1024",
	}
}

func (g *OpenAIImages) Generate(ctx context.Context, prompt, style, outPath string) (string, error) {
	full := prompt
	if style != "" {
		full = fmt.Sprintf("%s, in the style of %s", prompt, style)
	}
	data, err := g.c.postJSON(ctx, "/images/generations", map[string]any{
		"model":           g.Model,
		"prompt":          full,
		"size":            g.Size,
		"response_format": "b64_json",
		"n":               1,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Data []struct {
			B64 string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decoding image response: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", retry.Transientf("image response carried no data")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64)
	if err != nil {
		return "", fmt.Errorf("decoding image payload: %w", err)
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return outPath, nil
}

// OpenAISpeech narrates scene text through the TTS API.
type OpenAISpeech struct {
	c     *client
	Model string
	Voice string
}

func NewOpenAISpeech(apiKey string) *OpenAISpeech {
	return &OpenAISpeech{
		c:     newClient(openAIBaseURL, apiKey, 1),
		Model: "tts-1",
		Voice: "nova",
	}
}

func (s *OpenAISpeech) Synthesize(ctx context.Context, text, outPath string) (string, error) {
	data, err := s.c.postJSON(ctx, "/audio/speech", map[string]any{
		"model": s.Model,
		"voice": s.Voice,
		"input": text,
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing narration: %w", err)
	}
	return outPath, nil
}

// OpenAITranscriber implements align.Provider over the transcription API
// with segment-level timestamps.
type OpenAITranscriber struct {
	c     *client
	Model string
}

func NewOpenAITranscriber(apiKey string) *OpenAITranscriber {
	return &OpenAITranscriber{
		c:     newClient(openAIBaseURL, apiKey, 1),
		Model: "whisper-1",
	}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) ([]align.Span, error) {
	if err := t.c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", audioPath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	mw.WriteField("model", t.Model)
	mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.c.apiKey)

	resp, err := t.c.http.Do(req)
	if err != nil {
		return nil, retry.Transientf("transcribe: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transientf("transcribe: reading response: %v", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retry.Transientf("transcribe: status %d: %s", resp.StatusCode, truncate(data, 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed struct {
		Segments []struct {
			Text  string  `json:"text"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	spans := make([]align.Span, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		spans = append(spans, align.Span{Text: s.Text, Start: s.Start, End: s.End})
	}
	return spans, nil
}

// HTTPMusic talks to a self-hosted music generation endpoint (MusicGen
// style): POST a prompt and duration, get the track bytes back.
type HTTPMusic struct {
	c *client
}

func NewHTTPMusic(baseURL, apiKey string) *HTTPMusic {
	return &HTTPMusic{c: newClient(baseURL, apiKey, 0.2)}
}

func (m *HTTPMusic) Generate(ctx context.Context, prompt string, seconds float64, outPath string) (string, error) {
	data, err := m.c.postJSON(ctx, "/generate", map[string]any{
		"prompt":   prompt,
		"duration": seconds,
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing music: %w", err)
	}
	return outPath, nil
}
