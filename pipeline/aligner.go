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

type alignerClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

func newAlignerClient() (*alignerClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("ALIGNER_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("ALIGNER_API_BASE_URL is required")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("ALIGNER_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	apiKey := strings.TrimSpace(os.Getenv("ALIGNER_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ALIGNER_API_KEY is empty")
	}

	return &alignerClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Align calls the external aligner synchronously. Non-2xx responses surface
// the body text so operators can see what the service complained about.
func (c *alignerClient) Align(ctx context.Context, alignReq AlignmentRequest) (*AlignmentResponse, error) {
	payload, err := json.Marshal(alignReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/align", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("aligner api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed AlignmentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
