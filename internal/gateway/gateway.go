// Package gateway holds the delivery backends and the router that picks
// one per send. Adapters never let an error escape as anything other
// than a failed Result once they pass through the Router.
package gateway

import (
	"context"

	"github.com/dniswara/wanotify/internal/model"
)

// Result reports one delivery attempt. Gateway is always the backend
// that performed the final attempt.
type Result struct {
	Success   bool            `json:"success"`
	MessageID string          `json:"messageId,omitempty"`
	Gateway   model.GatewayID `json:"gateway"`
	Error     string          `json:"error,omitempty"`
}

type BulkMessage struct {
	To   string `json:"to"`
	Body string `json:"message"`
}

type BulkResult struct {
	Success      bool     `json:"success"`
	SuccessCount int      `json:"successCount"`
	FailedCount  int      `json:"failedCount"`
	Results      []Result `json:"results"`
}

// Gateway is the minimal capability surface every backend implements.
type Gateway interface {
	ID() model.GatewayID
	SendText(ctx context.Context, to, body string) (Result, error)
	SendMedia(ctx context.Context, to, mediaURL, caption string) (Result, error)
}

// BulkSender marks a backend with native fan-out support. Backends
// without it get the router's sequential fallback.
type BulkSender interface {
	SendBulk(ctx context.Context, msgs []BulkMessage) (BulkResult, error)
}

func failure(id model.GatewayID, reason string) Result {
	return Result{Success: false, Gateway: id, Error: reason}
}
