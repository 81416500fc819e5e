package classifier

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
)

// RemoteConfig points at a TensorFlow Serving compatible REST endpoint.
type RemoteConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Remote forwards batches to a model server.
type Remote struct {
	httpClient *http.Client
	endpoint   string
}

// ErrMissingEndpoint is returned when no model server URL is configured.
var ErrMissingEndpoint = errors.New("classifier endpoint not configured")

// NewRemote constructs a Remote classifier.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingEndpoint
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "churn"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   fmt.Sprintf("%s/v1/models/%s:predict", baseURL, model),
	}, nil
}

// Endpoint returns the prediction URL.
func (r *Remote) Endpoint() string {
	return r.endpoint
}

type predictRequest struct {
	Instances [][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

// Predict posts the batch and returns the server's predictions.
func (r *Remote) Predict(ctx context.Context, batch [][]float32) ([][]float32, error) {
	body, err := json.Marshal(predictRequest{Instances: batch})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model server status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("model server: %s", decoded.Error)
	}
	if len(decoded.Predictions) != len(batch) {
		return nil, fmt.Errorf("%w: sent %d rows, got %d predictions", ErrShapeMismatch, len(batch), len(decoded.Predictions))
	}
	return decoded.Predictions, nil
}
