package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

// SpeechClient handles the text-to-speech vendor. It returns raw audio
// bytes and never plays anything; playback is a caller-side concern.
type SpeechClient struct {
	httpClient   *http.Client
	baseURL      string
	defaultVoice string
	creds        *credentials.Store
	logger       *logrus.Entry
}

type speechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewSpeechClient creates a new text-to-speech client
func NewSpeechClient(cfg *config.SpeechConfig, creds *credentials.Store, logger *logrus.Logger) *SpeechClient {
	return &SpeechClient{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      cfg.BaseURL,
		defaultVoice: cfg.VoiceID,
		creds:        creds,
		logger:       logger.WithField("component", "speech-client"),
	}
}

// Synthesize converts text to audio using the given voice, falling back to
// the configured default voice when none is provided.
func (c *SpeechClient) Synthesize(ctx context.Context, text, voice string) (*models.AudioClip, error) {
	const op = "synthesize"

	if voice == "" {
		voice = c.defaultVoice
	}

	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: "eleven_monolingual_v1",
	})
	if err != nil {
		return nil, transportError(models.VendorSpeech, op, err)
	}

	reqURL := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, transportError(models.VendorSpeech, op, err)
	}
	req.Header.Set("xi-api-key", c.creds.Get(models.VendorSpeech).Key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(models.VendorSpeech, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(models.VendorSpeech, op, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, decodeError(models.VendorSpeech, op, resp.StatusCode, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	c.logger.WithFields(logrus.Fields{
		"bytes": len(data),
		"voice": voice,
	}).Debug("Synthesized audio clip")

	return &models.AudioClip{ContentType: contentType, Data: data}, nil
}
