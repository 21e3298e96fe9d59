package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/storyloom/storyloom/pkg/config"
)

const (
	togetherDefaultBaseURL = "https://api.together.xyz"

	// minImageBytes guards against degenerate payloads: a real render is
	// never this small.
	minImageBytes = 100

	// imageSafetySuffix is appended to every illustration prompt. The
	// product is a children's storybook generator.
	imageSafetySuffix = "\nThis image must be safe for children. No nudity, violence, or inappropriate content. G-rated. Wholesome. No NSFW elements."
)

// Together renders illustrations through a Together-compatible images API.
type Together struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
	width   int
	height  int
	steps   int
	seed    int64
}

var _ ImageGenerator = (*Together)(nil)

// NewTogether constructs the image adapter.
func NewTogether(cfg *config.ImageProviderConfig, apiKey string) *Together {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = togetherDefaultBaseURL
	}
	return &Together{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		model:   cfg.Model,
		width:   cfg.Width,
		height:  cfg.Height,
		steps:   cfg.Steps,
		seed:    cfg.Seed,
	}
}

// Name implements ImageGenerator.
func (p *Together) Name() string {
	return "together"
}

// togetherImageRequest is the request body for POST /v1/images/generations.
type togetherImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	Seed           int64  `json:"seed,omitempty"`
	ResponseFormat string `json:"response_format"`
}

// togetherImageResponse is the subset of the response we consume.
type togetherImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage implements ImageGenerator. It requests a base64 payload and
// returns the decoded image bytes.
func (p *Together) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewError("image", KindBadRequest, "prompt must not be empty", nil)
	}

	reqBody := togetherImageRequest{
		Model:          p.model,
		Prompt:         prompt + imageSafetySuffix,
		Width:          p.width,
		Height:         p.height,
		Steps:          p.steps,
		Seed:           p.seed,
		ResponseFormat: "b64_json",
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewError("image", KindBadRequest, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/images/generations", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, NewError("image", KindBadRequest, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewError("image", KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusError("image", resp.StatusCode, readErrorBody(resp.Body))
	}

	var parsed togetherImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewError("image", KindUpstreamMalformed, "decode response", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, NewError("image", KindUpstreamMalformed, "response carries no image data", nil)
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, NewError("image", KindUpstreamMalformed, "decode base64 image", err)
	}
	if len(raw) < minImageBytes {
		return nil, NewError("image", KindUpstreamMalformed,
			fmt.Sprintf("image payload is %d bytes, below the %d byte floor", len(raw), minImageBytes), nil)
	}
	return raw, nil
}

// readErrorBody extracts a short error description from a failed response.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return "unexpected status"
	}
	return string(bytes.TrimSpace(body))
}
