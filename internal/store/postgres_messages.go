package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dniswara/wanotify/internal/model"
)

type PostgresMessageStore struct {
	db *sql.DB
}

func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

// EnsureSchema creates the messages table when it does not exist yet.
func (s *PostgresMessageStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id            TEXT PRIMARY KEY,
			recipient     TEXT NOT NULL,
			message       TEXT NOT NULL,
			status        TEXT NOT NULL,
			message_type  TEXT NOT NULL,
			broadcast_id  BIGINT,
			template_id   TEXT,
			error_message TEXT,
			attempts      INT NOT NULL DEFAULT 0,
			max_attempts  INT NOT NULL DEFAULT 3,
			scheduled_at  TIMESTAMPTZ,
			sent_at       TIMESTAMPTZ,
			failed_at     TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_status ON messages (status);
		CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_scheduled_at ON messages (scheduled_at)
			WHERE status = 'scheduled';
	`)
	return err
}

const messageColumns = `
	id, recipient, message, status, message_type, broadcast_id, template_id,
	error_message, attempts, max_attempts, scheduled_at, sent_at, failed_at,
	created_at, updated_at`

func (s *PostgresMessageStore) Save(ctx context.Context, m model.Message) (model.Message, error) {
	s.autoCleanup(ctx)

	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = model.Pending
	}
	if m.MessageType == "" {
		m.MessageType = model.TypeDirect
	}
	if m.MaxAttempts == 0 {
		m.MaxAttempts = model.DefaultMaxAttempts
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, recipient, message, status, message_type, broadcast_id, template_id,
			error_message, attempts, max_attempts, scheduled_at, sent_at, failed_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		m.ID, m.Recipient, m.Body, string(m.Status), m.MessageType,
		nullInt64(m.BroadcastID), nullString(m.TemplateID), nullString(m.Error),
		m.Attempts, m.MaxAttempts,
		nullTime(m.ScheduledAt), nullTime(m.SentAt), nullTime(m.FailedAt),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return model.Message{}, err
	}
	return m, nil
}

func (s *PostgresMessageStore) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*model.Message, error) {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Error != nil {
		add("error_message", *u.Error)
	}
	if u.Attempts != nil {
		add("attempts", *u.Attempts)
	}
	if u.SentAt != nil {
		add("sent_at", u.SentAt.UTC())
	}
	if u.FailedAt != nil {
		add("failed_at", u.FailedAt.UTC())
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE messages SET %s
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), len(args), messageColumns)

	row := s.db.QueryRowContext(ctx, query, args...)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CancelScheduled flips a not-yet-promoted message to cancelled. A
// message that already left the scheduled state is reported as not
// found.
func (s *PostgresMessageStore) CancelScheduled(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *PostgresMessageStore) History(ctx context.Context, f Filters) ([]HistoryRow, Pagination, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}

	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Template != "" {
		add("template_id ILIKE '%%' || $%d || '%%'", f.Template)
	}
	if f.Recipient != "" {
		add("recipient ILIKE '%%' || $%d || '%%'", f.Recipient)
	}
	if f.DateFrom != nil {
		add("created_at >= $%d", f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		add("created_at <= $%d", f.DateTo.UTC())
	}

	cond := ""
	if len(where) > 0 {
		cond = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM messages "+cond, args...,
	).Scan(&total); err != nil {
		return nil, Pagination{}, err
	}

	offset := (f.Page - 1) * f.Limit
	query := fmt.Sprintf(`
		SELECT %s FROM messages %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, messageColumns, cond, f.Limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []HistoryRow
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, Pagination{}, err
		}
		out = append(out, HistoryRow{Message: m, TimeAgo: relativeTime(eventTime(m), now)})
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, err
	}

	pages := (total + f.Limit - 1) / f.Limit
	return out, Pagination{Page: f.Page, Limit: f.Limit, Total: total, TotalPages: pages}, nil
}

func (s *PostgresMessageStore) QueueSnapshot(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE status IN ('pending', 'processing', 'scheduled')
		ORDER BY CASE status
			WHEN 'processing' THEN 0
			WHEN 'pending' THEN 1
			ELSE 2
		END, created_at ASC
	`, messageColumns))
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return Snapshot{}, err
		}
		switch m.Status {
		case model.Processing:
			snap.Processing = append(snap.Processing, m)
		case model.Pending:
			snap.Pending = append(snap.Pending, m)
		case model.Scheduled:
			snap.Scheduled = append(snap.Scheduled, m)
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	snap.Summary = SnapshotSummary{
		Processing: len(snap.Processing),
		Pending:    len(snap.Pending),
		Scheduled:  len(snap.Scheduled),
	}
	snap.Summary.Total = snap.Summary.Processing + snap.Summary.Pending + snap.Summary.Scheduled
	return snap, nil
}

func (s *PostgresMessageStore) DueScheduled(ctx context.Context, now time.Time) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
	`, messageColumns), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresMessageStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'sent'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status IN ('pending', 'processing')),
			count(*) FILTER (WHERE status = 'scheduled')
		FROM messages
	`).Scan(&st.TotalMessages, &st.SentMessages, &st.FailedMessages, &st.ActiveMessages, &st.ScheduledMessages)
	if err != nil {
		return Stats{}, err
	}

	st.StorageLevel, st.WarningMessage = storageLevel(st.TotalMessages)
	st.NeedsCleanup = st.TotalMessages >= WarningThreshold
	st.StoragePercentage = st.TotalMessages * 100 / MaxMessages
	return st, nil
}

// Cleanup deletes every row strictly older than the (keep+1)-th newest
// one. With fewer than keep+1 rows it is a no-op.
func (s *PostgresMessageStore) Cleanup(ctx context.Context, keep int) (CleanupResult, error) {
	if keep <= 0 {
		keep = autoCleanupKeep
	}

	var cutoff time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM messages
		ORDER BY created_at DESC
		OFFSET $1 LIMIT 1
	`, keep).Scan(&cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		var kept int
		if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM messages").Scan(&kept); err != nil {
			return CleanupResult{}, err
		}
		return CleanupResult{KeptCount: kept}, nil
	}
	if err != nil {
		return CleanupResult{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return CleanupResult{}, err
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, err
	}

	var kept int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM messages").Scan(&kept); err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{DeletedCount: int(deleted), KeptCount: kept, CutoffDate: &cutoff}, nil
}

func (s *PostgresMessageStore) autoCleanup(ctx context.Context) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM messages").Scan(&total); err != nil {
		slog.Error("auto-cleanup count failed", "error", err)
		return
	}
	if total < autoCleanupAt {
		return
	}

	res, err := s.Cleanup(ctx, autoCleanupKeep)
	if err != nil {
		slog.Error("auto-cleanup failed", "error", err)
		return
	}
	slog.Info("auto-cleanup completed",
		"deleted", res.DeletedCount, "kept", res.KeptCount)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (model.Message, error) {
	var m model.Message
	var status string
	var broadcastID sql.NullInt64
	var templateID, errMsg sql.NullString
	var scheduledAt, sentAt, failedAt sql.NullTime

	if err := row.Scan(
		&m.ID,
		&m.Recipient,
		&m.Body,
		&status,
		&m.MessageType,
		&broadcastID,
		&templateID,
		&errMsg,
		&m.Attempts,
		&m.MaxAttempts,
		&scheduledAt,
		&sentAt,
		&failedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return model.Message{}, err
	}

	m.Status = model.Status(status)
	if broadcastID.Valid {
		m.BroadcastID = broadcastID.Int64
	}
	if templateID.Valid {
		m.TemplateID = templateID.String
	}
	if errMsg.Valid {
		m.Error = errMsg.String
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		m.ScheduledAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		m.FailedAt = &t
	}
	return m, nil
}

func eventTime(m model.Message) time.Time {
	switch {
	case m.SentAt != nil:
		return *m.SentAt
	case m.FailedAt != nil:
		return *m.FailedAt
	default:
		return m.CreatedAt
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
