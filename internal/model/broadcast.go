package model

import "time"

type BroadcastStatus string

const (
	BroadcastScheduled BroadcastStatus = "scheduled"
	BroadcastQueued    BroadcastStatus = "queued"
)

// BroadcastStats is mutated in place as child messages reach a terminal
// state. Invariant: Sent + Failed + Pending == Total. Delivered is
// reserved for delivery-receipt integration and never changed here.
type BroadcastStats struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Broadcast is one send-to-many operation. Body is stored with template
// variables already substituted.
type Broadcast struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Recipients  []string          `json:"recipients"`
	Body        string            `json:"message"`
	TemplateID  string            `json:"templateId,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	ScheduledAt *time.Time        `json:"scheduledAt,omitempty"`
	Status      BroadcastStatus   `json:"status"`
	Stats       BroadcastStats    `json:"statistics"`
	CreatedAt   time.Time         `json:"createdAt"`
}
