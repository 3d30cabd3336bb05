package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dniswara/wanotify/internal/config"
	"github.com/dniswara/wanotify/internal/model"
	"github.com/dniswara/wanotify/internal/phone"
)

// CloudAPI is the official cloud HTTP backend: base URL + bearer token,
// one request per send, no retries of its own.
type CloudAPI struct {
	settings *config.Settings
	client   *http.Client
}

func NewCloudAPI(settings *config.Settings) *CloudAPI {
	return &CloudAPI{
		settings: settings,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *CloudAPI) ID() model.GatewayID { return model.GatewayCloudAPI }

func (g *CloudAPI) Configured() bool {
	return g.settings.Current().CloudAPI.Configured()
}

type cloudMessagesResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (g *CloudAPI) SendText(ctx context.Context, to, body string) (Result, error) {
	cfg := g.settings.Current()
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone.Normalize(to, cfg.CountryCode),
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return g.post(ctx, payload)
}

// SendTemplate sends a pre-approved named template with structured
// components, using the configured language code.
func (g *CloudAPI) SendTemplate(ctx context.Context, to, name string, components []map[string]any) (Result, error) {
	cfg := g.settings.Current()
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone.Normalize(to, cfg.CountryCode),
		"type":              "template",
		"template": map[string]any{
			"name":       name,
			"language":   map[string]any{"code": cfg.CloudAPI.LanguageCode},
			"components": components,
		},
	}
	return g.post(ctx, payload)
}

func (g *CloudAPI) SendMedia(ctx context.Context, to, mediaURL, caption string) (Result, error) {
	return g.SendMediaType(ctx, to, "image", mediaURL, caption)
}

// SendMediaType builds the type-specific payload. Caption is dropped
// for audio, which does not support one.
func (g *CloudAPI) SendMediaType(ctx context.Context, to, mediaType, mediaURL, caption string) (Result, error) {
	cfg := g.settings.Current()

	media := map[string]any{"link": mediaURL}
	if caption != "" && mediaType != "audio" {
		media["caption"] = caption
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone.Normalize(to, cfg.CountryCode),
		"type":              mediaType,
		mediaType:           media,
	}
	return g.post(ctx, payload)
}

// PhoneNumberStatus queries the registered phone number resource.
func (g *CloudAPI) PhoneNumberStatus(ctx context.Context) (map[string]any, error) {
	cfg := g.settings.Current().CloudAPI
	url := fmt.Sprintf("%s/%s", cfg.BaseURL, cfg.PhoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	return out, nil
}

func (g *CloudAPI) post(ctx context.Context, payload map[string]any) (Result, error) {
	cfg := g.settings.Current().CloudAPI

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return failure(g.ID(), err.Error()), err
	}

	url := fmt.Sprintf("%s/%s/messages", cfg.BaseURL, cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return failure(g.ID(), err.Error()), err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.Token)

	resp, err := g.client.Do(req)
	if err != nil {
		return failure(g.ID(), err.Error()), err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
		return failure(g.ID(), err.Error()), err
	}

	var out cloudMessagesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		err = fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
		return failure(g.ID(), err.Error()), err
	}

	res := Result{Success: true, Gateway: g.ID()}
	if len(out.Messages) > 0 {
		res.MessageID = out.Messages[0].ID
	}
	return res, nil
}
