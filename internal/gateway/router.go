package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/dniswara/wanotify/internal/config"
	"github.com/dniswara/wanotify/internal/model"
)

// Router picks exactly one backend per send and falls back to
// Interactive when the chosen backend fails. It never returns a Go
// error to its caller; every outcome is a Result.
type Router struct {
	settings    *config.Settings
	interactive *Interactive
	cloud       *CloudAPI
	relay       *Relay

	bulkDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

type SendOptions struct {
	// Gateway forces a specific backend when it is configured.
	Gateway model.GatewayID
	// NoFallback disables the Interactive retry.
	NoFallback bool
}

func NewRouter(settings *config.Settings, interactive *Interactive, cloud *CloudAPI, relay *Relay, bulkDelay time.Duration) *Router {
	if bulkDelay <= 0 {
		bulkDelay = 1500 * time.Millisecond
	}
	return &Router{
		settings:    settings,
		interactive: interactive,
		cloud:       cloud,
		relay:       relay,
		bulkDelay:   bulkDelay,
		sleep:       sleepCtx,
	}
}

// Resolve applies the routing policy: explicit choice if configured,
// then the configured notification gateway, then Relay > CloudAPI >
// Interactive. Interactive is always available.
func (r *Router) Resolve(explicit model.GatewayID) model.GatewayID {
	if explicit != "" && r.available(explicit) {
		return explicit
	}

	gs := r.settings.Current()
	if gs.NotificationGateway != "" && r.available(gs.NotificationGateway) {
		return gs.NotificationGateway
	}

	if gs.Relay.Configured() {
		return model.GatewayRelay
	}
	if gs.CloudAPI.Configured() {
		return model.GatewayCloudAPI
	}
	return model.GatewayInteractive
}

func (r *Router) available(id model.GatewayID) bool {
	switch id {
	case model.GatewayInteractive:
		return true
	case model.GatewayRelay:
		return r.relay.Configured()
	case model.GatewayCloudAPI:
		return r.cloud.Configured()
	default:
		return false
	}
}

func (r *Router) gateway(id model.GatewayID) Gateway {
	switch id {
	case model.GatewayRelay:
		return r.relay
	case model.GatewayCloudAPI:
		return r.cloud
	default:
		return r.interactive
	}
}

func (r *Router) SendText(ctx context.Context, to, body string, opts SendOptions) Result {
	id := r.Resolve(opts.Gateway)

	res, err := r.gateway(id).SendText(ctx, to, body)
	if err != nil && res.Error == "" {
		res = failure(id, err.Error())
	}
	res.Gateway = id

	if !res.Success && r.shouldFallBack(id, opts) {
		slog.Warn("gateway send failed, falling back to interactive",
			"gateway", id, "error", res.Error)
		return r.fallbackText(ctx, to, body)
	}
	return res
}

func (r *Router) SendMedia(ctx context.Context, to, mediaURL, caption string, opts SendOptions) Result {
	id := r.Resolve(opts.Gateway)

	res, err := r.gateway(id).SendMedia(ctx, to, mediaURL, caption)
	if err != nil && res.Error == "" {
		res = failure(id, err.Error())
	}
	res.Gateway = id

	if !res.Success && r.shouldFallBack(id, opts) {
		slog.Warn("gateway media send failed, falling back to interactive",
			"gateway", id, "error", res.Error)
		res, err = r.interactive.SendMedia(ctx, to, mediaURL, caption)
		if err != nil && res.Error == "" {
			res = failure(model.GatewayInteractive, err.Error())
		}
		res.Gateway = model.GatewayInteractive
	}
	return res
}

// SendBulk uses the relay's native bulk path when the relay is the
// resolved backend, otherwise degrades to sequential SendText calls
// with a fixed inter-message delay.
func (r *Router) SendBulk(ctx context.Context, msgs []BulkMessage, opts SendOptions) BulkResult {
	if len(msgs) == 0 {
		return BulkResult{}
	}

	id := r.Resolve(opts.Gateway)
	if id == model.GatewayRelay {
		br, err := r.relay.SendBulk(ctx, msgs)
		if err == nil && br.Success {
			return br
		}
		slog.Warn("relay bulk send failed, degrading to sequential sends",
			"error", err, "failed", br.FailedCount)
	}

	var out BulkResult
	for i, m := range msgs {
		if i > 0 {
			if err := r.sleep(ctx, r.bulkDelay); err != nil {
				break
			}
		}

		res := r.SendText(ctx, m.To, m.Body, opts)
		out.Results = append(out.Results, res)
		if res.Success {
			out.SuccessCount++
		} else {
			out.FailedCount++
		}
	}
	out.Success = out.SuccessCount > 0
	return out
}

func (r *Router) shouldFallBack(attempted model.GatewayID, opts SendOptions) bool {
	return !opts.NoFallback && attempted != model.GatewayInteractive
}

func (r *Router) fallbackText(ctx context.Context, to, body string) Result {
	res, err := r.interactive.SendText(ctx, to, body)
	if err != nil && res.Error == "" {
		res = failure(model.GatewayInteractive, err.Error())
	}
	res.Gateway = model.GatewayInteractive
	return res
}

// Interactive exposes the session-backed adapter for callers that must
// bypass routing (direct sends require an established session).
func (r *Router) Interactive() *Interactive { return r.interactive }

type BackendStatus struct {
	Enabled    bool `json:"enabled"`
	Connected  bool `json:"connected,omitempty"`
	Configured bool `json:"configured,omitempty"`
}

type RouterStatus struct {
	NotificationGateway model.GatewayID `json:"notificationGateway"`
	Gateways            struct {
		Interactive BackendStatus `json:"interactive"`
		Relay       BackendStatus `json:"relay"`
		CloudAPI    BackendStatus `json:"cloudApi"`
	} `json:"gateways"`
}

func (r *Router) Status(ctx context.Context) RouterStatus {
	gs := r.settings.Current()

	var st RouterStatus
	st.NotificationGateway = gs.NotificationGateway
	st.Gateways.Interactive = BackendStatus{
		Enabled:   gs.Interactive.Enabled,
		Connected: r.interactive.Connected(ctx),
	}
	st.Gateways.Relay = BackendStatus{
		Enabled:    gs.Relay.Enabled,
		Configured: gs.Relay.Configured(),
	}
	st.Gateways.CloudAPI = BackendStatus{
		Enabled:    gs.CloudAPI.Enabled,
		Configured: gs.CloudAPI.Configured(),
	}
	return st
}

// Reload re-derives adapter availability from current settings.
func (r *Router) Reload() {
	r.settings.Reload()
	slog.Info("gateway settings reloaded",
		"notificationGateway", r.settings.Current().NotificationGateway)
}
