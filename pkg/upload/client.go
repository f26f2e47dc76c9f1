package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/teslashibe/go-snapclass/internal/httpc"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 512

// Client posts frames to a classification endpoint. It never retries.
type Client struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a new upload client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "upload.client"),
	}, nil
}

// URL returns the configured endpoint.
func (c *Client) URL() string {
	return c.config.URL
}

// Upload sends image as a multipart file and parses the classification.
func (c *Client) Upload(ctx context.Context, image []byte) (*Response, error) {
	start := time.Now()

	body, contentType, err := c.buildBody(image)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, body)
	if err != nil {
		return nil, fmt.Errorf("upload: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("upload failed", "error", err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	result, err := ParseResponse(raw, c.config.FallbackLabel)
	if err != nil {
		return nil, err
	}
	result.LatencyMs = time.Since(start).Milliseconds()

	c.logger.Debug("upload complete",
		"label", result.Label,
		"confidence", result.Confidence,
		"saved", result.Saved,
		"latency_ms", result.LatencyMs,
	)
	return result, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) buildBody(image []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(image) + 512)
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.config.FieldName, c.config.FileName))
	h.Set("Content-Type", c.config.ContentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("upload: create part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("upload: write part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("upload: close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	c.logger.Warn("endpoint returned error status",
		"status", resp.StatusCode,
		"body", string(body),
	)
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// apiResponse mirrors the endpoint JSON. Fields are raw so absent, null and
// oddly typed values can be told apart.
type apiResponse struct {
	Label         json.RawMessage `json:"label"`
	Confidence    json.RawMessage `json:"confidence"`
	SavedFilename json.RawMessage `json:"saved_filename"`
	Probs         []float64       `json:"probs"`
}

// ParseResponse decodes an endpoint body. A missing or empty label becomes
// fallback, a missing confidence becomes 0, and any truthy saved_filename
// marks the result saved.
func ParseResponse(raw []byte, fallback string) (*Response, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &MalformedResponseError{Err: errors.New("body is not a JSON object")}
	}

	var api apiResponse
	if err := json.Unmarshal(trimmed, &api); err != nil {
		return nil, &MalformedResponseError{Err: err}
	}

	label, err := decodeLabel(api.Label)
	if err != nil {
		return nil, &MalformedResponseError{Err: fmt.Errorf("label: %w", err)}
	}
	if label == "" {
		label = fallback
	}

	confidence, err := decodeConfidence(api.Confidence)
	if err != nil {
		return nil, &MalformedResponseError{Err: fmt.Errorf("confidence: %w", err)}
	}

	resp := &Response{
		Label:      label,
		Confidence: confidence,
		Saved:      truthy(api.SavedFilename),
		Probs:      api.Probs,
	}
	var name string
	if json.Unmarshal(api.SavedFilename, &name) == nil {
		resp.SavedFilename = name
	}
	return resp, nil
}

func decodeLabel(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeConfidence(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	switch {
	case f < 0:
		return 0, nil
	case f > 1:
		return 1, nil
	}
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// truthy follows JavaScript truthiness for a decoded JSON value.
func truthy(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	default:
		// objects and arrays
		return true
	}
}

// Verify Client implements Uploader at compile time.
var _ Uploader = (*Client)(nil)
