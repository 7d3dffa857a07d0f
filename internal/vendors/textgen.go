package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

// TextGenClient handles the text-generation vendor: one chat-completion
// style request per call. Output length is never truncated here; any
// truncation is a caller-side display decision.
type TextGenClient struct {
	httpClient    *http.Client
	baseURL       string
	model         string
	maxInputBytes int
	creds         *credentials.Store
	logger        *logrus.Entry
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewTextGenClient creates a new text-generation client
func NewTextGenClient(cfg *config.TextGenConfig, creds *credentials.Store, logger *logrus.Logger) *TextGenClient {
	return &TextGenClient{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		baseURL:       cfg.BaseURL,
		model:         cfg.Model,
		maxInputBytes: cfg.MaxInputBytes,
		creds:         creds,
		logger:        logger.WithField("component", "textgen-client"),
	}
}

// Model returns the configured model identifier
func (c *TextGenClient) Model() string {
	return c.model
}

// Generate sends one completion request carrying a system instruction and a
// user payload (serialized data to analyze) and returns the generated text.
func (c *TextGenClient) Generate(ctx context.Context, system, user string) (string, error) {
	const op = "generate"

	// The vendor enforces a hard request-size limit; cap the payload only
	// for that reason and pass it through unmodified otherwise. The cut
	// backs off to a rune boundary so the payload stays valid UTF-8.
	if c.maxInputBytes > 0 && len(user) > c.maxInputBytes {
		cut := c.maxInputBytes
		for cut > 0 && !utf8.RuneStart(user[cut]) {
			cut--
		}
		user = user[:cut]
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", transportError(models.VendorTextGen, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", transportError(models.VendorTextGen, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.Get(models.VendorTextGen).Key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(models.VendorTextGen, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(models.VendorTextGen, op, resp)
	}

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return "", decodeError(models.VendorTextGen, op, resp.StatusCode, err)
	}

	if len(wire.Choices) == 0 {
		return "", &Error{
			Vendor:     models.VendorTextGen,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "vendor returned no choices",
		}
	}

	text := wire.Choices[0].Message.Content
	c.logger.WithField("chars", len(text)).Debug("Generated insight text")
	return text, nil
}
