package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/mushroom/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
)

// Config is everything the client needs to reach the scoring endpoint
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// Retries is the number of extra attempts after a transport failure
	Retries int
	// StrictCardinality rejects responses that do not hold exactly one prediction
	StrictCardinality bool
}

// TransportError means the endpoint could not be reached or read
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError means the endpoint answered without usable predictions
type MalformedResponseError struct {
	StatusCode int
	Reason     string
	// ModelError is the endpoint's own "error" field, when present
	ModelError string
}

func (e *MalformedResponseError) Error() string {
	if e.ModelError != "" {
		return fmt.Sprintf("malformed response (status %d): %s: %s", e.StatusCode, e.Reason, e.ModelError)
	}
	return fmt.Sprintf("malformed response (status %d): %s", e.StatusCode, e.Reason)
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for attempt diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client calls the remote classification endpoint
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	retries  int
	strict   bool
	http     *http.Client
	logger   *zap.Logger
}

// New creates a Client from cfg
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("inference endpoint not set")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("inference api key not set")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		apiKey:   apiKey,
		timeout:  timeout,
		retries:  retries,
		strict:   cfg.StrictCardinality,
		http:     &http.Client{Timeout: timeout},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type scoreRequest struct {
	Data [][]domain.Code `json:"data"`
}

// Classify sends one feature vector and maps the returned label to a Verdict.
// Only transport failures are retried.
func (c *Client) Classify(ctx context.Context, vec domain.FeatureVector) (domain.Verdict, error) {
	body, err := json.Marshal(scoreRequest{Data: [][]domain.Code{vec[:]}})
	if err != nil {
		return domain.Edible, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying classification after transport failure",
				zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}

		status, raw, err := c.post(ctx, body)
		if err != nil {
			lastErr = err
			var te *TransportError
			if errors.As(err, &te) && ctx.Err() == nil {
				continue
			}
			return domain.Edible, err
		}

		label, err := c.parseLabel(status, raw)
		if err != nil {
			return domain.Edible, err
		}
		c.logger.Debug("classification received", zap.String("label", label), zap.Int("status", status))
		return domain.VerdictFromLabel(label), nil
	}
	return domain.Edible, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return 0, nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}
	if len(raw) > maxBodySize {
		return 0, nil, &MalformedResponseError{
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("response exceeds %d bytes", maxBodySize),
		}
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) parseLabel(status int, raw []byte) (string, error) {
	malformed := func(reason, modelErr string) error {
		return &MalformedResponseError{StatusCode: status, Reason: reason, ModelError: modelErr}
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return "", malformed("body is not a JSON object", "")
	}

	predRaw, ok := doc["predictions"]
	if !ok {
		var modelErr string
		if e, ok := doc["error"]; ok {
			if json.Unmarshal(e, &modelErr) != nil {
				modelErr = string(e)
			}
		}
		return "", malformed("missing predictions field", modelErr)
	}

	var preds []json.RawMessage
	if err := json.Unmarshal(predRaw, &preds); err != nil {
		return "", malformed("predictions is not a list", "")
	}
	if len(preds) == 0 {
		return "", malformed("no predictions returned", "")
	}
	if c.strict && len(preds) != 1 {
		return "", malformed(fmt.Sprintf("expected 1 prediction, got %d", len(preds)), "")
	}
	if len(preds) > 1 {
		c.logger.Warn("endpoint returned extra predictions, using the first", zap.Int("count", len(preds)))
	}

	var label string
	if err := json.Unmarshal(preds[0], &label); err != nil {
		// non-string labels are kept verbatim and never equal "p"
		label = string(preds[0])
	}
	return label, nil
}

// decodeDocument reads a JSON object, unwrapping one level of string
// encoding as produced by scoring scripts that return json.dumps output.
func decodeDocument(raw []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	err := json.Unmarshal(raw, &doc)
	if err == nil && doc != nil {
		return doc, nil
	}

	var inner string
	if json.Unmarshal(raw, &inner) != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	doc = nil
	if err := json.Unmarshal([]byte(inner), &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("decode wrapped response: %w", err)
	}
	return doc, nil
}
