package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one completion round trip. The remote function has
// no deadline of its own, so the client enforces one.
const DefaultTimeout = 60 * time.Second

// functionRequest is the wire format the remote chat function accepts.
type functionRequest struct {
	Message string `json:"message"`
}

// functionResponse is the wire format the remote chat function returns.
// Exactly one of Response or Error is populated.
type functionResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// FunctionGateway calls a remote chat function over HTTP: it POSTs
// {"message": prompt} and expects {"response": completion} back.
type FunctionGateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewFunctionGateway creates a gateway for the function at endpoint.
func NewFunctionGateway(endpoint string) *FunctionGateway {
	return &FunctionGateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
}

// WithAPIKey sets a bearer token sent with each call
func (g *FunctionGateway) WithAPIKey(key string) *FunctionGateway {
	g.apiKey = key
	return g
}

// WithTimeout overrides the per-call timeout
func (g *FunctionGateway) WithTimeout(d time.Duration) *FunctionGateway {
	g.client.Timeout = d
	return g
}

// Complete sends one prompt and returns the completion text.
func (g *FunctionGateway) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(functionRequest{Message: prompt})
	if err != nil {
		return "", &InferenceError{Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &InferenceError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &InferenceError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &InferenceError{Message: "failed to read response", Err: err}
	}

	var parsed functionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &InferenceError{Message: "malformed response", Err: err}
	}
	if parsed.Error != "" {
		return "", &InferenceError{Message: "remote error: " + parsed.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &InferenceError{Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	if parsed.Response == "" {
		return "", &InferenceError{Message: "empty completion in response"}
	}

	return parsed.Response, nil
}
