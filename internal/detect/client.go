package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Config holds the configuration for the detector HTTP client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:5000",
		Timeout:    10 * time.Second,
		RetryCount: 2,
	}
}

// Client is the HTTP client for the detector/embedder service.
type Client struct {
	httpClient *http.Client
	config     Config
}

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

type detectRequest struct {
	Img string `json:"img"`
}

type detectResponse struct {
	Faces []struct {
		BBox       [4]float64 `json:"bbox"`
		Embedding  []float32  `json:"embedding"`
		Confidence float64    `json:"confidence"`
	} `json:"faces"`
}

// DetectAndEmbed calls POST /detect with the base64-encoded image.
func (c *Client) DetectAndEmbed(ctx context.Context, image []byte) ([]Face, error) {
	req := detectRequest{Img: base64.StdEncoding.EncodeToString(image)}

	var resp detectResponse
	if err := c.doRequestWithRetry(ctx, "/detect", req, &resp); err != nil {
		return nil, domain.ErrDetectionFailed.WithError(err)
	}

	faces := make([]Face, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		faces = append(faces, Face{
			BoundingBox: domain.BoundingBox{
				X:      f.BBox[0],
				Y:      f.BBox[1],
				Width:  f.BBox[2],
				Height: f.BBox[3],
			},
			Embedding:  f.Embedding,
			Confidence: f.Confidence,
		})
	}
	return faces, nil
}

// maxBackoff caps the retry backoff between detector attempts.
const maxBackoff = 5 * time.Second

func calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	backoff := time.Second << (attempt - 1)
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

func (c *Client) doRequestWithRetry(ctx context.Context, path string, body, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		if err := c.doRequest(ctx, path, body, result); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("detector request failed after %d attempts: %w", c.config.RetryCount+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
