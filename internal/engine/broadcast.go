package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dniswara/wanotify/internal/model"
	"github.com/dniswara/wanotify/internal/template"
)

type BroadcastRequest struct {
	Name            string            `json:"name"`
	Recipients      []string          `json:"recipients"`
	Message         string            `json:"message"`
	TemplateID      string            `json:"templateId,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
	ScheduledAt     *time.Time        `json:"scheduledAt,omitempty"`
	SendImmediately bool              `json:"sendImmediately,omitempty"`
}

// CreateBroadcast expands one request into per-recipient messages. With
// a future scheduledAt the children are persisted as scheduled and the
// promotion tick enqueues them when due; otherwise they go straight to
// the pending bucket.
func (e *Engine) CreateBroadcast(ctx context.Context, req BroadcastRequest) (model.Broadcast, error) {
	if len(req.Recipients) == 0 {
		return model.Broadcast{}, fmt.Errorf("%w: recipients are required", model.ErrValidation)
	}

	body := req.Message
	if req.TemplateID != "" {
		tpl, err := e.templates.Get(req.TemplateID)
		if err != nil {
			return model.Broadcast{}, err
		}
		body = template.Render(tpl.Content, req.Variables)
		e.templates.IncrementUsage(req.TemplateID)
	}
	if body == "" {
		return model.Broadcast{}, fmt.Errorf("%w: message or templateId is required", model.ErrValidation)
	}

	scheduled := req.ScheduledAt != nil && !req.SendImmediately

	now := e.now()
	total := len(req.Recipients)

	e.mu.Lock()
	e.nextBroadcastID++
	b := &model.Broadcast{
		ID:          e.nextBroadcastID,
		Name:        req.Name,
		Recipients:  append([]string(nil), req.Recipients...),
		Body:        body,
		TemplateID:  req.TemplateID,
		Variables:   req.Variables,
		ScheduledAt: req.ScheduledAt,
		Status:      model.BroadcastQueued,
		Stats:       model.BroadcastStats{Total: total, Pending: total},
		CreatedAt:   now,
	}
	if scheduled {
		b.Status = model.BroadcastScheduled
	}
	e.broadcasts[b.ID] = b
	e.mu.Unlock()

	for _, rcpt := range req.Recipients {
		m := model.Message{
			ID:          uuid.NewString(),
			Recipient:   rcpt,
			Body:        body,
			MessageType: model.TypeBroadcast,
			BroadcastID: b.ID,
			TemplateID:  req.TemplateID,
			MaxAttempts: model.DefaultMaxAttempts,
		}

		if scheduled {
			m.Status = model.Scheduled
			m.ScheduledAt = req.ScheduledAt
			if _, err := e.store.Save(ctx, m); err != nil {
				slog.Warn("persisting scheduled broadcast message failed",
					"broadcast", b.ID, "recipient", rcpt, "error", err)
			}
			continue
		}

		m.Status = model.Pending
		if _, err := e.store.Save(ctx, m); err != nil {
			slog.Warn("persisting broadcast message failed",
				"broadcast", b.ID, "recipient", rcpt, "error", err)
		}
		e.buckets.Enqueue(m)
	}

	slog.Info("broadcast created",
		"id", b.ID, "name", b.Name, "recipients", total, "scheduled", scheduled)

	return e.snapshotBroadcast(b.ID), nil
}

// Broadcasts lists history, optionally filtered by status, newest
// first.
func (e *Engine) Broadcasts(status model.BroadcastStatus) []model.Broadcast {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Broadcast, 0, len(e.broadcasts))
	for _, b := range e.broadcasts {
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, *b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (e *Engine) BroadcastByID(id int64) (model.Broadcast, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.broadcasts[id]
	if !ok {
		return model.Broadcast{}, fmt.Errorf("broadcast %d: %w", id, model.ErrNotFound)
	}
	return *b, nil
}

func (e *Engine) snapshotBroadcast(id int64) model.Broadcast {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.broadcasts[id]
}
