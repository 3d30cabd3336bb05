package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dniswara/wanotify/internal/config"
	"github.com/dniswara/wanotify/internal/model"
	"github.com/dniswara/wanotify/internal/phone"
)

const relayBulkSpacing = time.Second

// Relay is the third-party HTTP relay backend. It is configured iff a
// non-empty API token is present. The relay reports success in a
// "status" field that may be boolean true or the string "true".
type Relay struct {
	settings *config.Settings
	client   *http.Client

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRelay(settings *config.Settings) *Relay {
	return &Relay{
		settings: settings,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		sleep: sleepCtx,
	}
}

func (g *Relay) ID() model.GatewayID { return model.GatewayRelay }

func (g *Relay) Configured() bool {
	return g.settings.Current().Relay.Configured()
}

type relayResponse struct {
	Status any    `json:"status"`
	Reason string `json:"reason"`
}

func (g *Relay) SendText(ctx context.Context, to, body string) (Result, error) {
	cfg := g.settings.Current()
	form := url.Values{
		"target":      {phone.Normalize(to, cfg.CountryCode)},
		"message":     {body},
		"countryCode": {cfg.CountryCode},
	}
	return g.post(ctx, form)
}

func (g *Relay) SendMedia(ctx context.Context, to, mediaURL, caption string) (Result, error) {
	cfg := g.settings.Current()
	form := url.Values{
		"target":      {phone.Normalize(to, cfg.CountryCode)},
		"message":     {caption},
		"url":         {mediaURL},
		"countryCode": {cfg.CountryCode},
	}
	return g.post(ctx, form)
}

// SendBulk issues a single relay call when every message shares the same
// body (comma-joined targets plus a jittered per-recipient delay), and
// falls back to sequential sends with fixed spacing otherwise.
func (g *Relay) SendBulk(ctx context.Context, msgs []BulkMessage) (BulkResult, error) {
	if len(msgs) == 0 {
		return BulkResult{}, nil
	}

	identical := true
	for _, m := range msgs[1:] {
		if m.Body != msgs[0].Body {
			identical = false
			break
		}
	}

	if identical {
		cfg := g.settings.Current()
		targets := make([]string, len(msgs))
		for i, m := range msgs {
			targets[i] = phone.Normalize(m.To, cfg.CountryCode)
		}

		form := url.Values{
			"target":      {strings.Join(targets, ",")},
			"message":     {msgs[0].Body},
			"countryCode": {cfg.CountryCode},
			"delay":       {fmt.Sprintf("%d", 2+rand.Intn(4))},
		}

		res, err := g.post(ctx, form)
		out := BulkResult{Success: res.Success, Results: []Result{res}}
		if res.Success {
			out.SuccessCount = len(msgs)
		} else {
			out.FailedCount = len(msgs)
		}
		return out, err
	}

	var out BulkResult
	for i, m := range msgs {
		if i > 0 {
			if err := g.sleep(ctx, relayBulkSpacing); err != nil {
				return out, err
			}
		}

		res, _ := g.SendText(ctx, m.To, m.Body)
		out.Results = append(out.Results, res)
		if res.Success {
			out.SuccessCount++
		} else {
			out.FailedCount++
		}
	}
	out.Success = out.SuccessCount > 0
	return out, nil
}

// DeviceStatus reports relay-side device connectivity.
func (g *Relay) DeviceStatus(ctx context.Context) (map[string]any, error) {
	cfg := g.settings.Current().Relay

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/device", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", cfg.Token)

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

func (g *Relay) post(ctx context.Context, form url.Values) (Result, error) {
	cfg := g.settings.Current().Relay

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/send", strings.NewReader(form.Encode()))
	if err != nil {
		return failure(g.ID(), err.Error()), err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", cfg.Token)

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

	var out relayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		err = fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
		return failure(g.ID(), err.Error()), err
	}

	if !relayStatusTrue(out.Status) {
		reason := out.Reason
		if reason == "" {
			reason = fmt.Sprintf("relay rejected send body=%q", string(body))
		}
		return failure(g.ID(), reason), fmt.Errorf("relay rejected send: %s", reason)
	}

	return Result{Success: true, Gateway: g.ID()}, nil
}

// relayStatusTrue accepts the relay's two spellings of success.
func relayStatusTrue(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case string:
		return s == "true"
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
