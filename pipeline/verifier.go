package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type verifierClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

// verifierConfigured reports whether closing should round-trip through the
// external verifier at all. An unset base URL means closings finish locally.
func verifierConfigured() bool {
	return strings.TrimSpace(os.Getenv("VERIFIER_API_BASE_URL")) != ""
}

func newVerifierClient() (*verifierClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("VERIFIER_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("VERIFIER_API_BASE_URL is required")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("VERIFIER_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}

	return &verifierClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(os.Getenv("VERIFIER_API_KEY")),
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *verifierClient) Verify(ctx context.Context, verifyReq VerificationRequest) (*VerificationResponse, error) {
	payload, err := json.Marshal(verifyReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("verifier api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed VerificationResponse
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, err
		}
	}
	return &parsed, nil
}

// CheckVerifierConfig returns a description of a broken verifier setup, or
// "" when the configuration is usable. Called at startup so a missing
// callback URL is loud long before the first closing.
func CheckVerifierConfig() string {
	if verifierConfigured() && callbackURL() == "" {
		return "VERIFIER_API_BASE_URL is set but WEBHOOK_PUBLIC_BASE_URL is not; closings would wait forever for verification callbacks"
	}
	return ""
}

// callbackURL is where the verifier should deliver its async result.
func callbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("WEBHOOK_PUBLIC_BASE_URL")), "/")
	if base == "" {
		return ""
	}
	return base + "/webhooks/pipeline"
}
