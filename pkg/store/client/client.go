package client

import (
	"io"
	"net/http"
	"time"
)

const maxErrorBodyBytes = 4096

// New returns an http.Client with timeouts suited to the usage APIs, which can
// be slow on large query windows.
func New() *http.Client {
	return &http.Client{
		Timeout: 180 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// CheckResponse converts a non-2xx response into a *StatusError, reading a
// bounded amount of the body for context. The caller still owns resp.Body.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		Body:       string(body),
	}
}
