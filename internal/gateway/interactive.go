package gateway

import (
	"context"

	"github.com/dniswara/wanotify/internal/config"
	"github.com/dniswara/wanotify/internal/model"
	"github.com/dniswara/wanotify/internal/phone"
)

// Interactive delivers through the established WhatsApp session. It is
// the default and last-resort backend, always considered available by
// the router even when nothing else is configured.
type Interactive struct {
	settings *config.Settings
	session  Session
}

func NewInteractive(settings *config.Settings, session Session) *Interactive {
	return &Interactive{settings: settings, session: session}
}

func (g *Interactive) ID() model.GatewayID { return model.GatewayInteractive }

func (g *Interactive) Connected(ctx context.Context) bool {
	return g.session != nil && g.session.Connected(ctx)
}

func (g *Interactive) SendText(ctx context.Context, to, body string) (Result, error) {
	if !g.Connected(ctx) {
		return failure(g.ID(), model.ErrServiceUnavailable.Error()), model.ErrServiceUnavailable
	}

	jid := g.jid(to)
	id, err := g.session.SendText(ctx, jid, body)
	if err != nil {
		return failure(g.ID(), err.Error()), err
	}

	return Result{Success: true, MessageID: id, Gateway: g.ID()}, nil
}

func (g *Interactive) SendMedia(ctx context.Context, to, mediaURL, caption string) (Result, error) {
	if !g.Connected(ctx) {
		return failure(g.ID(), model.ErrServiceUnavailable.Error()), model.ErrServiceUnavailable
	}

	jid := g.jid(to)
	id, err := g.session.SendMedia(ctx, jid, mediaURL, caption)
	if err != nil {
		return failure(g.ID(), err.Error()), err
	}

	return Result{Success: true, MessageID: id, Gateway: g.ID()}, nil
}

func (g *Interactive) jid(to string) string {
	cc := g.settings.Current().CountryCode
	return phone.JID(phone.Normalize(to, cc))
}
