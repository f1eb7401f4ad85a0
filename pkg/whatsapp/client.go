package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatbridge/internal/errors"
)

// Client sends messages through the WhatsApp Cloud API and resolves
// webhook media identifiers to downloadable content.
type Client interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
	ResolveMediaURL(ctx context.Context, mediaID string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error)
}

type ClientConfig struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

type cloudClient struct {
	cfg    ClientConfig
	client *http.Client
}

func NewClient(cfg ClientConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &cloudClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type textPayload struct {
	Body string `json:"body"`
}

type imagePayload struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textPayload  `json:"text,omitempty"`
	Image            *imagePayload `json:"image,omitempty"`
}

// SendText delivers a text reply. Destination and body are validated before
// any network I/O; a 4xx/5xx from the channel API is a delivery failure
// surfaced to the caller, never retried here.
func (c *cloudClient) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return errors.New(errors.ErrCodeValidationFailed, "recipient phone number is required")
	}
	if body == "" {
		return errors.New(errors.ErrCodeValidationFailed, "message text is required")
	}

	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	})
}

// SendImage delivers an image by URL with an optional caption.
func (c *cloudClient) SendImage(ctx context.Context, to, imageURL, caption string) error {
	if to == "" {
		return errors.New(errors.ErrCodeValidationFailed, "recipient phone number is required")
	}
	if imageURL == "" {
		return errors.New(errors.ErrCodeValidationFailed, "image URL is required")
	}

	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image:            &imagePayload{Link: imageURL, Caption: caption},
	})
}

func (c *cloudClient) send(ctx context.Context, payload sendRequest) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDeliveryFailed, "failed to reach WhatsApp API")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return errors.Wrap(
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
			errors.ErrCodeDeliveryFailed, "WhatsApp API rejected the message").
			WithContext("status", resp.StatusCode)
	}

	return nil
}

type mediaURLResponse struct {
	URL string `json:"url"`
}

// ResolveMediaURL exchanges a webhook media identifier for a short-lived
// signed download URL.
func (c *cloudClient) ResolveMediaURL(ctx context.Context, mediaID string) (string, error) {
	if mediaID == "" {
		return "", errors.New(errors.ErrCodeValidationFailed, "media ID is required")
	}

	url := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.APIVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to resolve media URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Wrap(
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
			errors.ErrCodeMediaDownload, "media URL lookup failed")
	}

	var result mediaURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to decode media URL response")
	}
	if result.URL == "" {
		return "", errors.New(errors.ErrCodeMediaDownload, "media URL response missing url field")
	}

	return result.URL, nil
}

// DownloadMedia fetches the signed URL returned by ResolveMediaURL. The
// caller owns the returned body.
func (c *cloudClient) DownloadMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to download media")
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Wrap(
			fmt.Errorf("status %d", resp.StatusCode),
			errors.ErrCodeMediaDownload, "media download failed")
	}

	return resp.Body, nil
}
