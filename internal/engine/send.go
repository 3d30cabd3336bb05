package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dniswara/wanotify/internal/model"
)

// SendReceipt is what a direct send returns to the caller. StoreID is
// empty when the best-effort history write failed.
type SendReceipt struct {
	MessageID string `json:"messageId"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
	StoreID   string `json:"storeId,omitempty"`
}

// SendDirect delivers immediately through the interactive session. It
// requires an established session regardless of how queued traffic is
// routed; the relay and cloud backends are never consulted here.
func (e *Engine) SendDirect(ctx context.Context, phone, body, msgType string) (SendReceipt, error) {
	if phone == "" || body == "" {
		return SendReceipt{}, fmt.Errorf("%w: phone and message are required", model.ErrValidation)
	}
	if msgType == "" {
		msgType = model.TypeDirect
	}

	res, err := e.router.Interactive().SendText(ctx, phone, body)
	if errors.Is(err, model.ErrServiceUnavailable) {
		return SendReceipt{}, model.ErrServiceUnavailable
	}
	if err != nil {
		return SendReceipt{}, fmt.Errorf("send failed: %w", err)
	}

	now := e.now()
	receipt := SendReceipt{MessageID: res.MessageID, Phone: phone, Status: string(model.Sent)}

	// Delivery already succeeded; a history write failure is logged
	// and swallowed.
	saved, err := e.store.Save(ctx, model.Message{
		Recipient:   phone,
		Body:        body,
		Status:      model.Sent,
		MessageType: msgType,
		SentAt:      &now,
	})
	if err != nil {
		slog.Warn("persisting direct send failed", "phone", phone, "error", err)
	} else {
		receipt.StoreID = saved.ID
		e.cacheSent(ctx, res.MessageID, saved, res.Gateway, now)
	}

	e.sentCount.Add(1)
	return receipt, nil
}

// Schedule persists a message for future delivery; the promotion tick
// enqueues it once due.
func (e *Engine) Schedule(ctx context.Context, phone, body, msgType string, at time.Time) (model.Message, error) {
	if phone == "" || body == "" {
		return model.Message{}, fmt.Errorf("%w: phone and message are required", model.ErrValidation)
	}
	if at.IsZero() {
		return model.Message{}, fmt.Errorf("%w: scheduledAt is required", model.ErrValidation)
	}
	if msgType == "" {
		msgType = model.TypeDirect
	}

	saved, err := e.store.Save(ctx, model.Message{
		Recipient:   phone,
		Body:        body,
		Status:      model.Scheduled,
		MessageType: msgType,
		ScheduledAt: &at,
	})
	if err != nil {
		return model.Message{}, err
	}

	slog.Info("message scheduled", "id", saved.ID, "scheduledAt", at)
	return saved, nil
}

// CancelScheduled flips a not-yet-promoted message to cancelled.
func (e *Engine) CancelScheduled(ctx context.Context, id string) error {
	if err := e.store.CancelScheduled(ctx, id); err != nil {
		return err
	}
	slog.Info("scheduled message cancelled", "id", id)
	return nil
}
