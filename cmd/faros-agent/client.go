package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// credentials is the on-disk identity written by enroll and read by run.
type credentials struct {
	Server  string `json:"server"`
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "faros-credentials.json"
	}
	return filepath.Join(home, ".faros", "credentials.json")
}

func loadCredentials(path string) (credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return credentials{}, fmt.Errorf("failed to read credentials (run enroll first): %w", err)
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return credentials{}, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, nil
}

func saveCredentials(path string, creds credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// apiClient is a thin JSON client for the server's agent surface.
type apiClient struct {
	server string
	apiKey string
	http   *http.Client
}

func newAPIClient(server, apiKey string) *apiClient {
	return &apiClient{
		server: strings.TrimRight(server, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// postJSON posts the request body and decodes the response into out when
// out is non-nil. Non-2xx responses are returned as errors carrying the
// status code and body.
func (c *apiClient) postJSON(path string, body, out any) error {
	return c.doJSON(http.MethodPost, path, body, out)
}

func (c *apiClient) doJSON(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.server+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned HTTP %d: %s", e.StatusCode, e.Body)
}
