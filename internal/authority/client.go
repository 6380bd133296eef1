// Package authority is the HTTP client for the authorization service's
// signature-validation endpoint. Validation always happens remotely; the
// authority key never leaves that service.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client calls the remote signature authority.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a Client for the authority at baseURL, authenticating with
// the service API credential.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	Payload any    `json:"payload"`
	Firma   string `json:"firma"`
}

type validateResponse struct {
	FirmaValida bool `json:"firma_valida"`
}

// ValidateSignature submits the reconstructed payload and its signature.
// It returns true only on a 200 response carrying firma_valida=true; any
// transport failure is returned as an error so callers can distinguish
// "invalid" from "authority unreachable".
func (c *Client) ValidateSignature(ctx context.Context, payload any, firma string) (bool, error) {
	body, err := json.Marshal(validateRequest{Payload: payload, Firma: firma})
	if err != nil {
		return false, fmt.Errorf("authority: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate-signature", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("authority: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("i-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("authority: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Structurally invalid call or authority-side rejection; the
		// signature is not considered valid either way.
		return false, nil
	}

	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("authority: decode response: %w", err)
	}
	return out.FirmaValida, nil
}
