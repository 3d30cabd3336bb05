// Package engine owns the queue control loop: the periodic drain that
// delivers pending messages through the gateway router, the promotion
// of due scheduled messages, and broadcast fan-out. All queue and
// broadcast state is mutated behind the engine's own locks; nothing
// else writes to it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dniswara/wanotify/internal/cache"
	"github.com/dniswara/wanotify/internal/config"
	"github.com/dniswara/wanotify/internal/gateway"
	"github.com/dniswara/wanotify/internal/model"
	"github.com/dniswara/wanotify/internal/queue"
	"github.com/dniswara/wanotify/internal/scheduler"
	"github.com/dniswara/wanotify/internal/store"
	"github.com/dniswara/wanotify/internal/template"
)

type Engine struct {
	cfg       config.QueueConfig
	buckets   *queue.Buckets
	router    *gateway.Router
	store     store.MessageStore
	templates *template.Store
	cache     cache.MessageCache

	drain   *scheduler.Scheduler
	promote *scheduler.Scheduler

	mu              sync.Mutex
	broadcasts      map[int64]*model.Broadcast
	nextBroadcastID int64

	sentCount atomic.Int64

	now func() time.Time
}

// New wires the engine. msgCache may be nil; sent-record caching is
// best-effort and optional.
func New(cfg config.QueueConfig, buckets *queue.Buckets, router *gateway.Router, st store.MessageStore, templates *template.Store, msgCache cache.MessageCache) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		buckets:    buckets,
		router:     router,
		store:      st,
		templates:  templates,
		cache:      msgCache,
		broadcasts: make(map[int64]*model.Broadcast),
		now:        func() time.Time { return time.Now().UTC() },
	}

	var err error
	e.drain, err = scheduler.New("queue-drain", cfg.DrainInterval, e.DrainTick)
	if err != nil {
		return nil, err
	}
	e.promote, err = scheduler.New("scheduled-promotion", cfg.PromoteInterval, e.PromoteTick)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) Start() {
	e.drain.Start()
	e.promote.Start()
}

func (e *Engine) Stop() {
	e.drain.Stop()
	e.promote.Stop()
}

// DrainTick takes one capped FIFO batch off the pending bucket and
// attempts delivery for the whole batch concurrently. Failures are
// terminal; there is no automatic re-enqueue.
func (e *Engine) DrainTick(ctx context.Context) {
	batch := e.buckets.StartBatch(e.cfg.BatchSize)
	if len(batch) == 0 {
		return
	}

	slog.Info("draining queue batch", "size", len(batch))

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range batch {
		g.Go(func() error {
			e.deliver(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) deliver(ctx context.Context, m model.Message) {
	processing := model.Processing
	e.persist(ctx, m.ID, store.StatusUpdate{Status: &processing, Attempts: &m.Attempts})

	res := e.router.SendText(ctx, m.Recipient, m.Body, gateway.SendOptions{})
	now := e.now()

	if _, found := e.buckets.Finish(m.ID, res.Success, res.Error, now); !found {
		slog.Warn("message left processing bucket mid-flight", "id", m.ID)
	}

	if res.Success {
		sent := model.Sent
		e.persist(ctx, m.ID, store.StatusUpdate{Status: &sent, SentAt: &now})
		e.sentCount.Add(1)
		e.cacheSent(ctx, res.MessageID, m, res.Gateway, now)
		e.noteBroadcastResult(m.BroadcastID, true)

		slog.Info("message delivered",
			"id", m.ID, "gateway", res.Gateway, "attempts", m.Attempts)
		return
	}

	failed := model.Failed
	e.persist(ctx, m.ID, store.StatusUpdate{Status: &failed, FailedAt: &now, Error: &res.Error})
	e.noteBroadcastResult(m.BroadcastID, false)

	slog.Warn("message delivery failed",
		"id", m.ID, "gateway", res.Gateway, "error", res.Error)
}

// PromoteTick moves due scheduled messages into the pending bucket, in
// due-time order.
func (e *Engine) PromoteTick(ctx context.Context) {
	due, err := e.store.DueScheduled(ctx, e.now())
	if err != nil {
		slog.Error("fetching due scheduled messages failed", "error", err)
		return
	}

	for _, m := range due {
		pending := model.Pending
		if _, err := e.store.UpdateStatus(ctx, m.ID, store.StatusUpdate{Status: &pending}); err != nil {
			slog.Warn("promoting scheduled message failed", "id", m.ID, "error", err)
			continue
		}

		m.Status = model.Pending
		e.buckets.Enqueue(m)
		slog.Info("scheduled message promoted", "id", m.ID, "recipient", m.Recipient)
	}
}

func (e *Engine) noteBroadcastResult(broadcastID int64, success bool) {
	if broadcastID == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.broadcasts[broadcastID]
	if !ok {
		return
	}
	if success {
		b.Stats.Sent++
	} else {
		b.Stats.Failed++
	}
	b.Stats.Pending--
}

// persist is the best-effort store write used along the delivery path.
// A store failure is logged, never allowed to halt the batch.
func (e *Engine) persist(ctx context.Context, id string, u store.StatusUpdate) {
	if _, err := e.store.UpdateStatus(ctx, id, u); err != nil && !errors.Is(err, model.ErrNotFound) {
		slog.Warn("persisting message status failed", "id", id, "error", err)
	}
}

func (e *Engine) cacheSent(ctx context.Context, remoteID string, m model.Message, gw model.GatewayID, at time.Time) {
	if e.cache == nil {
		return
	}
	if err := e.cache.StoreSent(ctx, m.ID, m.Recipient, gw, at); err != nil {
		slog.Warn("caching sent record failed", "id", m.ID, "remoteId", remoteID, "error", err)
	}
}

// Status is the operational snapshot served to the admin UI.
type Status struct {
	Gateway        gateway.RouterStatus `json:"gateway"`
	Queue          map[queue.Bucket]int `json:"queue"`
	SentCount      int64                `json:"sentCount"`
	DrainRunning   bool                 `json:"drainRunning"`
	PromoteRunning bool                 `json:"promoteRunning"`
}

func (e *Engine) Status(ctx context.Context) Status {
	return Status{
		Gateway:        e.router.Status(ctx),
		Queue:          e.buckets.Counts(),
		SentCount:      e.sentCount.Load(),
		DrainRunning:   e.drain.IsRunning(),
		PromoteRunning: e.promote.IsRunning(),
	}
}

// QueueContents returns one bucket, or all four for queue.All.
func (e *Engine) QueueContents(b queue.Bucket) (map[queue.Bucket][]model.Message, error) {
	if !queue.ValidBucket(b) {
		return nil, fmt.Errorf("unknown bucket %q: %w", b, model.ErrValidation)
	}
	if b == queue.All {
		return e.buckets.Snapshot(), nil
	}
	return map[queue.Bucket][]model.Message{b: e.buckets.Get(b)}, nil
}

// ClearQueue empties the chosen bucket(s). Clearing processing drops
// bookkeeping for in-flight sends; their terminal store updates still
// land when the network call returns.
func (e *Engine) ClearQueue(b queue.Bucket) (int, error) {
	if !queue.ValidBucket(b) {
		return 0, fmt.Errorf("unknown bucket %q: %w", b, model.ErrValidation)
	}
	n := e.buckets.Clear(b)
	slog.Info("queue cleared", "bucket", b, "removed", n)
	return n, nil
}

func (e *Engine) Reload() {
	e.router.Reload()
}
