// Package httprequest implements the HTTP request node handler.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

const defaultTimeout = 30 * time.Second

type Handler struct {
	client *http.Client
}

func NewHandler() *Handler {
	return &Handler{
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (h *Handler) Type() string {
	return "httpRequest"
}

func (h *Handler) Execute(ctx context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	url, _ := ec.Config["url"].(string)
	if url == "" {
		return &handler.Result{
			Success:      false,
			ErrorMessage: "httpRequest node requires a 'url' config value",
		}, nil
	}

	method, _ := ec.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader

	if rawBody, ok := ec.Config["body"]; ok {
		payload, err := json.Marshal(rawBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		body = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return &handler.Result{
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid request: %v", err),
		}, nil
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if headers, ok := ec.Config["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}

	if err := h.applyCredentials(ctx, req, ec); err != nil {
		return &handler.Result{
			Success:      false,
			ErrorMessage: err.Error(),
		}, nil
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &handler.Result{
			Success:      false,
			ErrorMessage: fmt.Sprintf("request failed: %v", err),
		}, nil
	}

	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &handler.Result{
			Success:      false,
			ErrorMessage: fmt.Sprintf("failed to read response body: %v", err),
		}, nil
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
	}

	var parsed any
	if err := json.Unmarshal(responseBody, &parsed); err == nil {
		output["body"] = parsed
	} else {
		output["body"] = string(responseBody)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &handler.Result{
			Success:      false,
			Output:       output,
			ErrorMessage: fmt.Sprintf("request returned status %d", resp.StatusCode),
		}, nil
	}

	return &handler.Result{Success: true, Output: output}, nil
}

// applyCredentials resolves a credential reference from config and attaches
// it as a bearer token or basic auth pair.
func (h *Handler) applyCredentials(ctx context.Context, req *http.Request, ec handler.ExecutionContext) error {
	credentialID, _ := ec.Config["credential_id"].(string)
	if credentialID == "" {
		return nil
	}

	if ec.Credentials == nil {
		return fmt.Errorf("node references credential %s but no resolver is configured", credentialID)
	}

	secret, err := ec.Credentials.Resolve(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("failed to resolve credential %s: %w", credentialID, err)
	}

	if token, ok := secret["token"]; ok {
		req.Header.Set("Authorization", "Bearer "+token)

		return nil
	}

	if user, ok := secret["username"]; ok {
		req.SetBasicAuth(user, secret["password"])
	}

	return nil
}

func flattenHeaders(headers http.Header) map[string]any {
	flat := make(map[string]any, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}

	return flat
}
