package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Session is the established WhatsApp session owned by an external
// collaborator. Lifecycle (pairing, QR, reconnects) lives there, not here.
type Session interface {
	Connected(ctx context.Context) bool
	SendText(ctx context.Context, jid, body string) (string, error)
	SendMedia(ctx context.Context, jid, mediaURL, caption string) (string, error)
}

// SessionClient talks to the session sidecar over HTTP.
type SessionClient struct {
	baseURL string
	client  *http.Client
}

func NewSessionClient(baseURL string) *SessionClient {
	return &SessionClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sessionStatusResponse struct {
	Connected bool `json:"connected"`
}

type sessionSendRequest struct {
	JID      string `json:"jid"`
	Message  string `json:"message,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type sessionSendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (c *SessionClient) Connected(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/session/status", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var sr sessionStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return false
	}
	return sr.Connected
}

func (c *SessionClient) SendText(ctx context.Context, jid, body string) (string, error) {
	return c.send(ctx, sessionSendRequest{JID: jid, Message: body})
}

func (c *SessionClient) SendMedia(ctx context.Context, jid, mediaURL, caption string) (string, error) {
	return c.send(ctx, sessionSendRequest{JID: jid, MediaURL: mediaURL, Caption: caption})
}

func (c *SessionClient) send(ctx context.Context, sr sessionSendRequest) (string, error) {
	reqBody, err := json.Marshal(sr)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session/send", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var out sessionSendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(body))
	}

	return out.MessageID, nil
}
