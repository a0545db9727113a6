package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrTokenNotSet is returned when no bot token is configured.
	ErrTokenNotSet = errors.New("telegram: bot token not set")
	// ErrSendFailed is returned when the Bot API rejects a send.
	ErrSendFailed = errors.New("telegram: send failed")
)

// TelegramDeliverer implements Deliverer over the Telegram Bot API.
type TelegramDeliverer struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// TelegramOption configures a TelegramDeliverer.
type TelegramOption func(*TelegramDeliverer)

// WithBaseURL overrides the Bot API base URL.
func WithBaseURL(url string) TelegramOption {
	return func(d *TelegramDeliverer) {
		d.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(d *TelegramDeliverer) {
		d.httpClient = client
	}
}

// NewTelegramDeliverer creates a Deliverer that sends through a
// Telegram bot.
func NewTelegramDeliverer(token string, opts ...TelegramOption) (*TelegramDeliverer, error) {
	if token == "" {
		return nil, ErrTokenNotSet
	}

	d := &TelegramDeliverer{
		token:   token,
		baseURL: "https://api.telegram.org",
		// Uploads of multi-clip videos can be large.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

var _ Deliverer = (*TelegramDeliverer)(nil)

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type message struct {
	MessageID int64 `json:"message_id"`
}

// Deliver uploads the video via sendVideo and returns the resulting
// message id as the message reference.
func (d *TelegramDeliverer) Deliver(ctx context.Context, chatID int64, video []byte, caption string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return "", fmt.Errorf("telegram: write chat_id: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return "", fmt.Errorf("telegram: write caption: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("video", "video.mp4")
	if err != nil {
		return "", fmt.Errorf("telegram: create form file: %w", err)
	}
	if _, err := fw.Write(video); err != nil {
		return "", fmt.Errorf("telegram: write video: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("telegram: close multipart writer: %w", err)
	}

	resp, err := d.call(ctx, "sendVideo", body.Bytes(), mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var msg message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return "", fmt.Errorf("telegram: unmarshal message: %w", err)
	}
	return strconv.FormatInt(msg.MessageID, 10), nil
}

// NotifyFailure sends a plain text message via sendMessage.
func (d *TelegramDeliverer) NotifyFailure(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal message: %w", err)
	}

	_, err = d.call(ctx, "sendMessage", payload, "application/json")
	return err
}

func (d *TelegramDeliverer) call(ctx context.Context, method string, body []byte, contentType string) (*apiResponse, error) {
	url := fmt.Sprintf("%s/bot%s/%s", d.baseURL, d.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram: read response body: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("telegram: unmarshal response: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("%w: %s", ErrSendFailed, apiResp.Description)
	}
	return &apiResp, nil
}
