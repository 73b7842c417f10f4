// Package client holds the HTTP clients for the two remote collaborators:
// the document source (read-only pending-item listings) and the action
// service (the sole authority on approve/reject outcomes).
package client

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPError reports a non-2xx response from either remote service.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Config carries the shared connection settings for both clients.
type Config struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (c Config) normalize() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:8080"
	}
	c.Token = strings.TrimSpace(c.Token)
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

func authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
}
