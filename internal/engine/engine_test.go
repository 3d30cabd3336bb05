package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dniswara/wanotify/internal/config"
	"github.com/dniswara/wanotify/internal/gateway"
	"github.com/dniswara/wanotify/internal/model"
	"github.com/dniswara/wanotify/internal/queue"
	"github.com/dniswara/wanotify/internal/store"
	"github.com/dniswara/wanotify/internal/template"
)

// stubSession is an always-reachable interactive session unless
// connected is false or failJIDs marks a recipient as failing.
type stubSession struct {
	mu        sync.Mutex
	connected bool
	failJIDs  map[string]error

	sent []string
}

func (s *stubSession) Connected(ctx context.Context) bool { return s.connected }

func (s *stubSession) SendText(ctx context.Context, jid, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failJIDs[jid]; ok {
		return "", err
	}
	s.sent = append(s.sent, jid)
	return "wa-" + jid, nil
}

func (s *stubSession) SendMedia(ctx context.Context, jid, mediaURL, caption string) (string, error) {
	return s.SendText(ctx, jid, caption)
}

func (s *stubSession) sentJIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.sent...)
	sort.Strings(out)
	return out
}

// memStore is an in-memory store.MessageStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]*model.Message
	saveErr error
}

var _ store.MessageStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*model.Message)}
}

func (s *memStore) Save(ctx context.Context, m model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return model.Message{}, s.saveErr
	}

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
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	cp := m
	s.rows[m.ID] = &cp
	return m, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, u store.StatusUpdate) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.Error != nil {
		m.Error = *u.Error
	}
	if u.Attempts != nil {
		m.Attempts = *u.Attempts
	}
	if u.SentAt != nil {
		m.SentAt = u.SentAt
	}
	if u.FailedAt != nil {
		m.FailedAt = u.FailedAt
	}
	m.UpdatedAt = time.Now().UTC()

	cp := *m
	return &cp, nil
}

func (s *memStore) CancelScheduled(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.rows[id]
	if !ok || m.Status != model.Scheduled {
		return model.ErrNotFound
	}
	m.Status = model.Cancelled
	return nil
}

func (s *memStore) History(ctx context.Context, f store.Filters) ([]store.HistoryRow, store.Pagination, error) {
	return nil, store.Pagination{}, nil
}

func (s *memStore) QueueSnapshot(ctx context.Context) (store.Snapshot, error) {
	return store.Snapshot{}, nil
}

func (s *memStore) DueScheduled(ctx context.Context, now time.Time) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, m := range s.rows {
		if m.Status == model.Scheduled && m.ScheduledAt != nil && !m.ScheduledAt.After(now) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

func (s *memStore) Stats(ctx context.Context) (store.Stats, error) {
	return store.Stats{}, nil
}

func (s *memStore) Cleanup(ctx context.Context, keep int) (store.CleanupResult, error) {
	return store.CleanupResult{}, nil
}

func (s *memStore) get(t *testing.T, id string) model.Message {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.rows[id]
	if !ok {
		t.Fatalf("message %q not in store", id)
	}
	return *m
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func newTestEngine(t *testing.T, sess gateway.Session, st store.MessageStore) (*Engine, *queue.Buckets, *template.Store) {
	t.Helper()

	settings := config.NewSettings(func() config.GatewaySettings {
		return config.GatewaySettings{
			CountryCode: "62",
			Interactive: config.InteractiveSettings{Enabled: true},
		}
	})

	buckets := queue.New()
	templates := template.NewStore()
	router := gateway.NewRouter(
		settings,
		gateway.NewInteractive(settings, sess),
		gateway.NewCloudAPI(settings),
		gateway.NewRelay(settings),
		time.Millisecond,
	)

	cfg := config.QueueConfig{
		DrainInterval:   time.Hour,
		PromoteInterval: time.Hour,
		BatchSize:       5,
	}

	e, err := New(cfg, buckets, router, st, templates, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e, buckets, templates
}

func TestCreateBroadcast_FanOut(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, buckets, _ := newTestEngine(t, &stubSession{connected: true}, st)

	b, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Name:            "outage notice",
		Recipients:      []string{"0811", "0812", "0813"},
		Message:         "Hi",
		SendImmediately: true,
	})
	if err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	want := model.BroadcastStats{Total: 3, Sent: 0, Failed: 0, Pending: 3}
	if b.Stats != want {
		t.Fatalf("unexpected stats: %+v", b.Stats)
	}

	pending := buckets.Get(queue.Pending)
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending messages, got %d", len(pending))
	}
	for _, m := range pending {
		if m.BroadcastID != b.ID {
			t.Fatalf("expected broadcastId %d, got %d", b.ID, m.BroadcastID)
		}
		if m.MessageType != model.TypeBroadcast {
			t.Fatalf("unexpected message type: %q", m.MessageType)
		}
	}

	if st.count() != 3 {
		t.Fatalf("expected 3 persisted rows, got %d", st.count())
	}
}

func TestCreateBroadcast_TemplateRendering(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, buckets, templates := newTestEngine(t, &stubSession{connected: true}, st)

	if _, err := templates.Create(template.CreateInput{
		ID:      "due",
		Name:    "Payment due",
		Content: "Halo {{name}}, tagihan {{amount}} jatuh tempo {{due}}",
	}); err != nil {
		t.Fatalf("Create template error: %v", err)
	}

	_, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients: []string{"0811"},
		TemplateID: "due",
		Variables:  map[string]string{"name": "Budi", "amount": "Rp150.000"},
	})
	if err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	pending := buckets.Get(queue.Pending)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}

	wantBody := "Halo Budi, tagihan Rp150.000 jatuh tempo {{due}}"
	if pending[0].Body != wantBody {
		t.Fatalf("unexpected body: %q", pending[0].Body)
	}

	tpl, err := templates.Get("due")
	if err != nil {
		t.Fatalf("Get template error: %v", err)
	}
	if tpl.UsageCount != 1 {
		t.Fatalf("expected usage count 1, got %d", tpl.UsageCount)
	}
}

func TestCreateBroadcast_Validation(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	_, err := e.CreateBroadcast(context.Background(), BroadcastRequest{Message: "hi"})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty recipients, got %v", err)
	}

	_, err = e.CreateBroadcast(context.Background(), BroadcastRequest{Recipients: []string{"0811"}})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty message, got %v", err)
	}

	_, err = e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients: []string{"0811"},
		TemplateID: "missing",
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown template, got %v", err)
	}
}

func TestDrainTick_DeliversBatchAndUpdatesStats(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	sess := &stubSession{connected: true}
	e, buckets, _ := newTestEngine(t, sess, st)

	b, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients:      []string{"0811", "0812", "0813"},
		Message:         "Hi",
		SendImmediately: true,
	})
	if err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	e.DrainTick(context.Background())

	counts := buckets.Counts()
	if counts[queue.Pending] != 0 || counts[queue.Processing] != 0 || counts[queue.Completed] != 3 {
		t.Fatalf("unexpected bucket counts: %v", counts)
	}

	got, err := e.BroadcastByID(b.ID)
	if err != nil {
		t.Fatalf("BroadcastByID() error: %v", err)
	}
	want := model.BroadcastStats{Total: 3, Sent: 3, Failed: 0, Pending: 0}
	if got.Stats != want {
		t.Fatalf("unexpected stats after drain: %+v", got.Stats)
	}

	if jids := sess.sentJIDs(); len(jids) != 3 {
		t.Fatalf("expected 3 session sends, got %v", jids)
	}

	for _, m := range buckets.Get(queue.Completed) {
		row := st.get(t, m.ID)
		if row.Status != model.Sent || row.SentAt == nil {
			t.Fatalf("expected persisted sent row, got %+v", row)
		}
		if row.Attempts != 1 {
			t.Fatalf("expected attempts=1, got %d", row.Attempts)
		}
	}
}

func TestDrainTick_PartialFailureKeepsInvariant(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	sess := &stubSession{
		connected: true,
		failJIDs:  map[string]error{"62812@s.whatsapp.net": errors.New("recipient unknown")},
	}
	e, buckets, _ := newTestEngine(t, sess, st)

	b, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients:      []string{"0811", "0812", "0813"},
		Message:         "Hi",
		SendImmediately: true,
	})
	if err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	e.DrainTick(context.Background())

	got, err := e.BroadcastByID(b.ID)
	if err != nil {
		t.Fatalf("BroadcastByID() error: %v", err)
	}
	if got.Stats.Sent != 2 || got.Stats.Failed != 1 || got.Stats.Pending != 0 {
		t.Fatalf("unexpected stats: %+v", got.Stats)
	}
	if sum := got.Stats.Sent + got.Stats.Failed + got.Stats.Pending; sum != got.Stats.Total {
		t.Fatalf("stats invariant broken: %+v", got.Stats)
	}

	failed := buckets.Get(queue.Failed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed message, got %d", len(failed))
	}

	row := st.get(t, failed[0].ID)
	if row.Status != model.Failed || row.Error == "" || row.FailedAt == nil {
		t.Fatalf("expected persisted failure with error, got %+v", row)
	}
	if !strings.Contains(row.Error, "recipient unknown") {
		t.Fatalf("unexpected persisted error: %q", row.Error)
	}
}

func TestDrainTick_NoAutomaticRetry(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	sess := &stubSession{
		connected: true,
		failJIDs:  map[string]error{"62811@s.whatsapp.net": errors.New("boom")},
	}
	e, buckets, _ := newTestEngine(t, sess, st)

	_, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients:      []string{"0811"},
		Message:         "Hi",
		SendImmediately: true,
	})
	if err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	e.DrainTick(context.Background())
	e.DrainTick(context.Background())

	counts := buckets.Counts()
	if counts[queue.Failed] != 1 || counts[queue.Pending] != 0 {
		t.Fatalf("failed message must stay terminal: %v", counts)
	}
}

func TestPromoteTick_EnqueuesDueScheduled(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, buckets, _ := newTestEngine(t, &stubSession{connected: true}, st)

	past := time.Now().UTC().Add(-time.Second)
	saved, err := e.Schedule(context.Background(), "0811", "reminder", "", past)
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}

	due, err := st.DueScheduled(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DueScheduled() error: %v", err)
	}
	if len(due) != 1 || due[0].ID != saved.ID {
		t.Fatalf("expected the scheduled message due, got %v", due)
	}

	e.PromoteTick(context.Background())

	pending := buckets.Get(queue.Pending)
	if len(pending) != 1 || pending[0].ID != saved.ID {
		t.Fatalf("expected promoted message in pending bucket, got %v", pending)
	}
	if row := st.get(t, saved.ID); row.Status != model.Pending {
		t.Fatalf("expected persisted status pending, got %q", row.Status)
	}
}

func TestPromoteTick_FutureMessagesStay(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, buckets, _ := newTestEngine(t, &stubSession{connected: true}, st)

	future := time.Now().UTC().Add(time.Hour)
	if _, err := e.Schedule(context.Background(), "0811", "later", "", future); err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}

	e.PromoteTick(context.Background())

	if n := buckets.Counts()[queue.Pending]; n != 0 {
		t.Fatalf("future message must not be promoted, pending=%d", n)
	}
}

func TestCreateBroadcast_ScheduledNotEnqueued(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, buckets, _ := newTestEngine(t, &stubSession{connected: true}, st)

	future := time.Now().UTC().Add(time.Hour)
	b, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients:  []string{"0811", "0812"},
		Message:     "maintenance tonight",
		ScheduledAt: &future,
	})
	if err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	if b.Status != model.BroadcastScheduled {
		t.Fatalf("expected scheduled status, got %q", b.Status)
	}
	if n := buckets.Counts()[queue.Pending]; n != 0 {
		t.Fatalf("scheduled broadcast must not enqueue, pending=%d", n)
	}
	if st.count() != 2 {
		t.Fatalf("expected 2 persisted scheduled rows, got %d", st.count())
	}
}

func TestSendDirect_NoSession(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: false}, st)

	_, err := e.SendDirect(context.Background(), "081234567890", "Hi", "")
	if !errors.Is(err, model.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if err.Error() != "WhatsApp is not connected" {
		t.Fatalf("unexpected error message: %q", err.Error())
	}
	if st.count() != 0 {
		t.Fatalf("no record must be persisted, got %d", st.count())
	}
}

func TestSendDirect_Success(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	sess := &stubSession{connected: true}
	e, _, _ := newTestEngine(t, sess, st)

	receipt, err := e.SendDirect(context.Background(), "081234567890", "Hi", "")
	if err != nil {
		t.Fatalf("SendDirect() error: %v", err)
	}
	if receipt.Status != "sent" || receipt.MessageID == "" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.StoreID == "" {
		t.Fatalf("expected store id in receipt")
	}

	row := st.get(t, receipt.StoreID)
	if row.Status != model.Sent || row.SentAt == nil || row.MessageType != model.TypeDirect {
		t.Fatalf("unexpected persisted row: %+v", row)
	}

	if got := e.Status(context.Background()).SentCount; got != 1 {
		t.Fatalf("expected sent counter 1, got %d", got)
	}
}

func TestSendDirect_StoreFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.saveErr = errors.New("db down")
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	receipt, err := e.SendDirect(context.Background(), "0811", "Hi", "")
	if err != nil {
		t.Fatalf("delivery succeeded, persistence failure must be swallowed: %v", err)
	}
	if receipt.StoreID != "" {
		t.Fatalf("expected empty store id, got %q", receipt.StoreID)
	}
}

func TestSendDirect_Validation(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	if _, err := e.SendDirect(context.Background(), "", "Hi", ""); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := e.SendDirect(context.Background(), "0811", "", ""); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCancelScheduled(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	saved, err := e.Schedule(context.Background(), "0811", "later", "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}

	if err := e.CancelScheduled(context.Background(), saved.ID); err != nil {
		t.Fatalf("CancelScheduled() error: %v", err)
	}
	if row := st.get(t, saved.ID); row.Status != model.Cancelled {
		t.Fatalf("expected cancelled, got %q", row.Status)
	}

	// Already cancelled: no longer in the scheduled state.
	if err := e.CancelScheduled(context.Background(), saved.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearQueue_UnknownBucket(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	if _, err := e.ClearQueue("archived"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if _, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients:      []string{"0811", "0812"},
		Message:         "x",
		SendImmediately: true,
	}); err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	n, err := e.ClearQueue(queue.All)
	if err != nil {
		t.Fatalf("ClearQueue() error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
}

func TestBroadcasts_ListAndFilter(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	mustCreate := func(req BroadcastRequest) model.Broadcast {
		t.Helper()
		b, err := e.CreateBroadcast(context.Background(), req)
		if err != nil {
			t.Fatalf("CreateBroadcast() error: %v", err)
		}
		return b
	}

	mustCreate(BroadcastRequest{Recipients: []string{"0811"}, Message: "a", SendImmediately: true})
	future := time.Now().Add(time.Hour)
	scheduled := mustCreate(BroadcastRequest{Recipients: []string{"0812"}, Message: "b", ScheduledAt: &future})

	all := e.Broadcasts("")
	if len(all) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(all))
	}
	if all[0].ID < all[1].ID {
		t.Fatalf("expected newest first, got %v then %v", all[0].ID, all[1].ID)
	}

	got := e.Broadcasts(model.BroadcastScheduled)
	if len(got) != 1 || got[0].ID != scheduled.ID {
		t.Fatalf("unexpected filtered list: %+v", got)
	}

	if _, err := e.BroadcastByID(999); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueueContents(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	if _, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
		Recipients:      []string{"0811"},
		Message:         "x",
		SendImmediately: true,
	}); err != nil {
		t.Fatalf("CreateBroadcast() error: %v", err)
	}

	one, err := e.QueueContents(queue.Pending)
	if err != nil {
		t.Fatalf("QueueContents() error: %v", err)
	}
	if len(one[queue.Pending]) != 1 {
		t.Fatalf("expected 1 pending, got %v", one)
	}

	all, err := e.QueueContents(queue.All)
	if err != nil {
		t.Fatalf("QueueContents(all) error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected all four buckets, got %d", len(all))
	}

	if _, err := e.QueueContents("bogus"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestEngine_StartStop(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	e.Start()
	status := e.Status(context.Background())
	if !status.DrainRunning || !status.PromoteRunning {
		t.Fatalf("expected both schedulers running: %+v", status)
	}

	e.Stop()
	status = e.Status(context.Background())
	if status.DrainRunning || status.PromoteRunning {
		t.Fatalf("expected both schedulers stopped: %+v", status)
	}
}

func TestStatus_QueueCounts(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	e, _, _ := newTestEngine(t, &stubSession{connected: true}, st)

	for i := 0; i < 3; i++ {
		if _, err := e.CreateBroadcast(context.Background(), BroadcastRequest{
			Recipients:      []string{fmt.Sprintf("081%d", i)},
			Message:         "x",
			SendImmediately: true,
		}); err != nil {
			t.Fatalf("CreateBroadcast() error: %v", err)
		}
	}

	status := e.Status(context.Background())
	if status.Queue[queue.Pending] != 3 {
		t.Fatalf("unexpected queue counts: %v", status.Queue)
	}
	if !status.Gateway.Gateways.Interactive.Connected {
		t.Fatalf("expected interactive connected in status")
	}
}
