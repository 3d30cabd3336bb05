package cache

import (
	"context"
	"time"

	"github.com/dniswara/wanotify/internal/model"
)

// MessageCache records delivered messages for quick lookup by the admin
// dashboard. Writes are best-effort; a miss here never fails a send.
type MessageCache interface {
	StoreSent(ctx context.Context, messageID, recipient string, gw model.GatewayID, sentAt time.Time) error
}
