// Package store is the durable history of every message attempt,
// independent of the in-memory queue. Retention keeps it capacity
// bounded.
package store

import (
	"context"
	"time"

	"github.com/dniswara/wanotify/internal/model"
)

// Retention thresholds, in message counts.
const (
	WarningThreshold  = 800
	CriticalThreshold = 950
	MaxMessages       = 1000

	autoCleanupAt   = 900
	autoCleanupKeep = 800
)

const DefaultPageSize = 20

type Filters struct {
	Status    string
	Template  string
	Recipient string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	Limit     int
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// HistoryRow annotates a stored message with a relative time label.
type HistoryRow struct {
	model.Message
	TimeAgo string `json:"timeAgo"`
}

// StatusUpdate merges the set fields into a stored row. Nil fields are
// left untouched; updated_at is always stamped.
type StatusUpdate struct {
	Status   *model.Status
	Error    *string
	Attempts *int
	SentAt   *time.Time
	FailedAt *time.Time
}

type Snapshot struct {
	Processing []model.Message `json:"processing"`
	Pending    []model.Message `json:"pending"`
	Scheduled  []model.Message `json:"scheduled"`
	Summary    SnapshotSummary `json:"summary"`
}

type SnapshotSummary struct {
	Processing int `json:"processing"`
	Pending    int `json:"pending"`
	Scheduled  int `json:"scheduled"`
	Total      int `json:"total"`
}

type Stats struct {
	TotalMessages     int    `json:"totalMessages"`
	SentMessages      int    `json:"sentMessages"`
	FailedMessages    int    `json:"failedMessages"`
	ActiveMessages    int    `json:"activeMessages"`
	ScheduledMessages int    `json:"scheduledMessages"`
	StorageLevel      string `json:"storageLevel"`
	WarningMessage    string `json:"warningMessage,omitempty"`
	NeedsCleanup      bool   `json:"needsCleanup"`
	StoragePercentage int    `json:"storagePercentage"`
}

type CleanupResult struct {
	DeletedCount int        `json:"deletedCount"`
	KeptCount    int        `json:"keptCount"`
	CutoffDate   *time.Time `json:"cutoffDate,omitempty"`
}

type MessageStore interface {
	Save(ctx context.Context, m model.Message) (model.Message, error)
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*model.Message, error)
	CancelScheduled(ctx context.Context, id string) error
	History(ctx context.Context, f Filters) ([]HistoryRow, Pagination, error)
	QueueSnapshot(ctx context.Context) (Snapshot, error)
	DueScheduled(ctx context.Context, now time.Time) ([]model.Message, error)
	Stats(ctx context.Context) (Stats, error)
	Cleanup(ctx context.Context, keep int) (CleanupResult, error)
}

func storageLevel(total int) (level, warning string) {
	switch {
	case total >= MaxMessages:
		return "critical", "Message history is at capacity; oldest rows are being purged"
	case total >= CriticalThreshold:
		return "warning", "Message history is nearly full"
	case total >= WarningThreshold:
		return "caution", "Message history is filling up"
	default:
		return "normal", ""
	}
}
