package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/storyloom/storyloom/pkg/config"
)

const (
	elevenLabsDefaultBaseURL = "https://api.elevenlabs.io"

	// elevenLabsOutputFormat keeps narration files small; storybook audio
	// does not need studio bitrates.
	elevenLabsOutputFormat = "mp3_22050_32"

	// Narration models. The v3 model is markedly better at expressive
	// storytelling but costs more per character.
	elevenLabsModelStandard = "eleven_monolingual_v1"
	elevenLabsModelV3       = "eleven_v3"
)

// ElevenLabs narrates scene text through the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	voiceID     string
	highQuality bool
}

var _ SpeechSynthesizer = (*ElevenLabs)(nil)

// NewElevenLabs constructs the audio adapter.
func NewElevenLabs(cfg *config.AudioProviderConfig, apiKey string) *ElevenLabs {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsDefaultBaseURL
	}
	return &ElevenLabs{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: cfg.Timeout},
		voiceID:     cfg.VoiceID,
		highQuality: cfg.HighQuality,
	}
}

// Name implements SpeechSynthesizer.
func (p *ElevenLabs) Name() string {
	return "elevenlabs"
}

// elevenLabsRequest is the request body for POST /v1/text-to-speech/{voice}.
type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id,omitempty"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

// elevenLabsVoiceSettings mirrors the ElevenLabs voice_settings object.
type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// elevenLabsErrorResponse is the error envelope ElevenLabs returns on
// non-2xx statuses.
type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// SynthesizeSpeech implements SpeechSynthesizer. It returns the narration as
// encoded MP3 bytes.
func (p *ElevenLabs) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewError("audio", KindBadRequest, "text must not be empty", nil)
	}

	reqBody := elevenLabsRequest{Text: text}
	if p.highQuality {
		reqBody.ModelID = elevenLabsModelV3
		reqBody.VoiceSettings = &elevenLabsVoiceSettings{
			Stability:       0.7,
			SimilarityBoost: 0.7,
			Style:           0.7,
			UseSpeakerBoost: true,
		}
	} else {
		reqBody.ModelID = elevenLabsModelStandard
		reqBody.VoiceSettings = &elevenLabsVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewError("audio", KindBadRequest, "marshal request", err)
	}

	endpoint := p.baseURL + "/v1/text-to-speech/" + p.voiceID + "?output_format=" + elevenLabsOutputFormat
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, NewError("audio", KindBadRequest, "build request", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewError("audio", KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError("audio", KindTransient, "read response", err)
	}
	if len(audio) == 0 {
		return nil, NewError("audio", KindUpstreamMalformed, "response carries no audio data", nil)
	}
	return audio, nil
}

// statusError decodes the ElevenLabs error envelope when present so the
// provider-specific status string survives into logs.
func (p *ElevenLabs) statusError(resp *http.Response) error {
	var errResp elevenLabsErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Detail.Message == "" {
		return NewStatusError("audio", resp.StatusCode, "unexpected status")
	}
	return NewStatusError("audio", resp.StatusCode,
		errResp.Detail.Status+": "+errResp.Detail.Message)
}
