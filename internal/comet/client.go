package comet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Static errors for CometAPI client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is provided.
	ErrAPIKeyNotSet = errors.New("comet: COMET_API_KEY is not set")
	// ErrGenerationIDRequired is returned when the generation ID is not provided.
	ErrGenerationIDRequired = errors.New("comet: generation ID is required")
	// ErrNoIDReturned is returned when the create response contains no id.
	ErrNoIDReturned = errors.New("comet: create failed: no generation ID returned")
	// ErrCreateFailed is returned when the create operation fails.
	ErrCreateFailed = errors.New("comet: create failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("comet: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("comet: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("comet: request failed")
	// ErrNotReady is returned when a download is attempted before completion.
	ErrNotReady = errors.New("comet: generation is not completed")
)

// Client defines the interface for interacting with a CometAPI endpoint.
type Client interface {
	// Create starts a video generation and returns the generation ID.
	Create(ctx context.Context, opts CreateOptions) (generationID string, err error)

	// Status checks the state of a generation.
	Status(ctx context.Context, generationID string) (StatusResult, error)

	// Download fetches the finished video. ref is the output URL from
	// Status when one was returned, otherwise the generation ID (the
	// /videos/{id}/download endpoint is used as fallback).
	Download(ctx context.Context, ref string) ([]byte, error)
}

// HTTPClient is the HTTP implementation of the CometAPI Client interface.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new CometAPI HTTP client. The API key can be set
// via WithAPIKey; if not provided it is read from COMET_API_KEY.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:     "https://api.cometapi.com/v1",
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("COMET_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Create starts a video generation and returns the generation ID.
// The request is multipart form data per the CometAPI /videos contract.
func (c *HTTPClient) Create(ctx context.Context, opts CreateOptions) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"prompt":  opts.Prompt,
		"model":   opts.Model,
		"seconds": strconv.Itoa(opts.Seconds),
		"size":    opts.Size,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return "", fmt.Errorf("comet: write form field: %w", err)
		}
	}

	if len(opts.ReferenceImage) > 0 {
		fw, err := mw.CreateFormFile("input_reference", "reference.png")
		if err != nil {
			return "", fmt.Errorf("comet: create form file: %w", err)
		}
		if _, err := fw.Write(opts.ReferenceImage); err != nil {
			return "", fmt.Errorf("comet: write reference image: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("comet: close multipart writer: %w", err)
	}

	var resp createResponse
	err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/videos",
		body.Bytes(), mw.FormDataContentType(), &resp)
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

	var resp statusResponse
	err := c.doRequestWithRetry(ctx, http.MethodGet, c.baseURL+"/videos/"+generationID, nil, "", &resp)
	if err != nil {
		return StatusResult{}, err
	}

	var mapped State
	switch resp.Status {
	case "queued", "pending":
		mapped = StateQueued
	case "in_progress", "processing", "running":
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

	switch mapped {
	case StateCompleted:
		result.OutputURL = resp.outputURL()
	case StateFailed:
		result.Error = errorMessage(resp.Error)
	}

	return result, nil
}

// Download fetches the finished video bytes. Output URLs are fetched
// directly; anything else is treated as a generation ID and fetched
// through the authenticated /videos/{id}/download endpoint.
func (c *HTTPClient) Download(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, ErrGenerationIDRequired
	}

	url := ref
	authenticated := false
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		url = c.baseURL + "/videos/" + ref + "/download"
		authenticated = true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("comet: create download request: %w", err)
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comet: download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("comet: read download body: %w", err)
	}
	return data, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, contentType string, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("comet: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.doRequest(ctx, method, url, body, contentType, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("comet: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, contentType string, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("comet: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("comet: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("comet: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("comet: unmarshal response: %w", err)
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
