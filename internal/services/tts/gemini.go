package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"episodegen/internal/audio"
	"episodegen/internal/ports"
	"episodegen/internal/services"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash-preview-tts"
	defaultGeminiTimeout = 240 * time.Second
)

// GeminiConfig holds Gemini speech generation settings.
type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Gemini synthesizes multi-speaker audio through the generateContent API.
type Gemini struct {
	cfg        GeminiConfig
	httpClient *http.Client
}

// NewGemini constructs a Gemini speech client.
func NewGemini(cfg GeminiConfig, httpClient *http.Client) *Gemini {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultGeminiModel
	}
	if httpClient == nil {
		timeout := defaultGeminiTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Gemini{cfg: cfg, httpClient: httpClient}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	Temperature        float64            `json:"temperature"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig             *geminiVoiceConfig        `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *geminiMultiSpeakerConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type geminiMultiSpeakerConfig struct {
	SpeakerVoiceConfigs []geminiSpeakerVoiceConfig `json:"speakerVoiceConfigs"`
}

type geminiSpeakerVoiceConfig struct {
	Speaker     string            `json:"speaker"`
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig struct {
		VoiceName string `json:"voiceName"`
	} `json:"prebuiltVoiceConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func prebuiltVoice(name string) geminiVoiceConfig {
	var vc geminiVoiceConfig
	vc.PrebuiltVoiceConfig.VoiceName = name
	return vc
}

// Synthesize renders the transcript. One voice uses a single-speaker config;
// two or more map each speaker label to its voice.
func (g *Gemini) Synthesize(ctx context.Context, transcript string, voices map[string]string) (ports.SpeechAudio, error) {
	var empty ports.SpeechAudio
	if strings.TrimSpace(transcript) == "" {
		return empty, services.Wrap(services.ErrValidation, "tts", "gemini", "transcript is empty", nil)
	}
	if g.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "tts", "gemini", "api key required", nil)
	}
	if len(voices) == 0 {
		return empty, services.Wrap(services.ErrValidation, "tts", "gemini", "at least one voice required", nil)
	}

	speech := geminiSpeechConfig{}
	labels := speakers(voices)
	if len(labels) == 1 {
		vc := prebuiltVoice(voices[labels[0]])
		speech.VoiceConfig = &vc
	} else {
		multi := &geminiMultiSpeakerConfig{}
		for _, label := range labels {
			multi.SpeakerVoiceConfigs = append(multi.SpeakerVoiceConfigs, geminiSpeakerVoiceConfig{
				Speaker:     label,
				VoiceConfig: prebuiltVoice(voices[label]),
			})
		}
		speech.MultiSpeakerVoiceConfig = multi
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: transcript}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			Temperature:        1,
			SpeechConfig:       speech,
		},
	})
	if err != nil {
		return empty, fmt.Errorf("gemini tts: encode body: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return empty, fmt.Errorf("gemini tts: new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return empty, err
		}
		return empty, services.Wrap(services.ErrExternalService, "tts", "gemini request", "", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrExternalService, "tts", "gemini read", "", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, services.Wrap(
			services.ErrExternalService,
			"tts",
			"gemini request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
			nil,
		)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return empty, services.Wrap(services.ErrExternalService, "tts", "gemini decode", "", err)
	}
	if decoded.Error != nil {
		return empty, services.Wrap(services.ErrExternalService, "tts", "gemini error", decoded.Error.Message, nil)
	}
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return empty, services.Wrap(services.ErrExternalService, "tts", "gemini decode audio", "", err)
			}
			return ports.SpeechAudio{PCM: pcm, Format: audio.DefaultFormat}, nil
		}
	}
	return empty, services.Wrap(services.ErrEmptyAudio, "tts", "gemini", "response contained no audio", nil)
}
