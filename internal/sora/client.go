// Package sora provides a client for the OpenAI Videos API.
package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"
)

var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("sora: API key not set")
	// ErrGenerationIDRequired is returned when a generation ID is missing.
	ErrGenerationIDRequired = errors.New("sora: generation ID is required")
	// ErrNoIDReturned is returned when the API accepts a request but returns no ID.
	ErrNoIDReturned = errors.New("sora: no generation ID returned")
	// ErrCreateFailed is returned when the create operation fails.
	ErrCreateFailed = errors.New("sora: create failed")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("sora: request failed")
)

// Client defines the operations supported by the Sora video API.
type Client interface {
	Create(ctx context.Context, opts CreateOptions) (string, error)
	Remix(ctx context.Context, generationID, prompt string) (string, error)
	Status(ctx context.Context, generationID string) (StatusResult, error)
	Download(ctx context.Context, generationID string) ([]byte, error)
}

// HTTPClient implements Client against the OpenAI Videos endpoints.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = client
	}
}

// WithMaxRetries sets the number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial retry backoff.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a Sora API client. The API key defaults to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	hc := &HTTPClient{
		apiKey:      os.Getenv("OPENAI_API_KEY"),
		baseURL:     "https://api.openai.com/v1",
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		maxRetries:  3,
		baseBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	return hc, nil
}

// Create starts a new video generation and returns its ID. Requests with
// a reference image are sent as multipart form data, plain prompts as JSON.
func (c *HTTPClient) Create(ctx context.Context, opts CreateOptions) (string, error) {
	var (
		body        []byte
		contentType string
	)

	if len(opts.ReferenceImage) > 0 {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fields := map[string]string{
			"model":   opts.Model,
			"prompt":  opts.Prompt,
			"seconds": strconv.Itoa(opts.Seconds),
			"size":    opts.Size,
		}
		for name, value := range fields {
			if err := mw.WriteField(name, value); err != nil {
				return "", fmt.Errorf("sora: write form field: %w", err)
			}
		}
		fw, err := mw.CreateFormFile("input_reference", "reference.png")
		if err != nil {
			return "", fmt.Errorf("sora: create form file: %w", err)
		}
		if _, err := fw.Write(opts.ReferenceImage); err != nil {
			return "", fmt.Errorf("sora: write reference image: %w", err)
		}
		if err := mw.Close(); err != nil {
			return "", fmt.Errorf("sora: close multipart writer: %w", err)
		}
		body = buf.Bytes()
		contentType = mw.FormDataContentType()
	} else {
		payload, err := json.Marshal(createRequest{
			Model:   opts.Model,
			Prompt:  opts.Prompt,
			Seconds: strconv.Itoa(opts.Seconds),
			Size:    opts.Size,
		})
		if err != nil {
			return "", fmt.Errorf("sora: marshal create request: %w", err)
		}
		body = payload
		contentType = "application/json"
	}

	var resp videoResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/videos", body, contentType, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if msg := errorMessage(resp.Error); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrCreateFailed, msg)
		}
		return "", ErrNoIDReturned
	}
	return resp.ID, nil
}

// Remix creates a new generation derived from an existing one.
func (c *HTTPClient) Remix(ctx context.Context, generationID, prompt string) (string, error) {
	if generationID == "" {
		return "", ErrGenerationIDRequired
	}

	payload, err := json.Marshal(remixRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("sora: marshal remix request: %w", err)
	}

	var resp videoResponse
	err = c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/videos/"+generationID+"/remix",
		payload, "application/json", &resp)
	if err != nil {
		return "", err
	}

	if resp.ID == "" {
		if msg := errorMessage(resp.Error); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrCreateFailed, msg)
		}
		return "", ErrNoIDReturned
	}
	return resp.ID, nil
}

// Status checks the state of a generation.
func (c *HTTPClient) Status(ctx context.Context, generationID string) (StatusResult, error) {
	if generationID == "" {
		return StatusResult{}, ErrGenerationIDRequired
	}

	var resp videoResponse
	err := c.doRequestWithRetry(ctx, http.MethodGet, c.baseURL+"/videos/"+generationID, nil, "", &resp)
	if err != nil {
		return StatusResult{}, err
	}

	var mapped State
	switch resp.Status {
	case "queued":
		mapped = StateQueued
	case "in_progress", "processing":
		mapped = StateInProgress
	case "completed", "succeeded":
		mapped = StateCompleted
	case "failed", "error":
		mapped = StateFailed
	default:
		mapped = State(resp.Status)
	}

	result := StatusResult{
		State:    mapped,
		Progress: resp.Progress,
	}
	if mapped == StateFailed {
		result.Error = errorMessage(resp.Error)
	}
	return result, nil
}

// Download fetches the finished video bytes from the content endpoint.
func (c *HTTPClient) Download(ctx context.Context, generationID string) ([]byte, error) {
	if generationID == "" {
		return nil, ErrGenerationIDRequired
	}

	url := c.baseURL + "/videos/" + generationID + "/content"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("sora: create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sora: download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sora: read download body: %w", err)
	}
	return data, nil
}

// retryableError marks an error as eligible for another attempt.
type retryableError struct {
	err error
}

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, contentType string, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(c.baseBackoff) * math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.doRequest(ctx, method, url, body, contentType, result)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, contentType string, result interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("sora: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("sora: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("sora: read response body: %w", err)}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &retryableError{err: fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("sora: unmarshal response: %w", err)
		}
	}
	return nil
}
