// Package queue holds the in-flight message buckets. All mutation goes
// through one mutex; callers never see the slices themselves, only
// copies.
package queue

import (
	"sync"
	"time"

	"github.com/dniswara/wanotify/internal/model"
)

type Bucket string

const (
	Pending    Bucket = "pending"
	Processing Bucket = "processing"
	Completed  Bucket = "completed"
	Failed     Bucket = "failed"
	All        Bucket = "all"
)

func ValidBucket(b Bucket) bool {
	switch b {
	case Pending, Processing, Completed, Failed, All:
		return true
	}
	return false
}

type Buckets struct {
	mu         sync.Mutex
	pending    []model.Message
	processing []model.Message
	completed  []model.Message
	failed     []model.Message
}

func New() *Buckets {
	return &Buckets{}
}

// Enqueue appends to the back of the pending bucket.
func (b *Buckets) Enqueue(m model.Message) {
	m.Status = model.Pending

	b.mu.Lock()
	b.pending = append(b.pending, m)
	b.mu.Unlock()
}

// StartBatch takes up to max pending messages FIFO and moves them to
// processing, bumping attempts. Backpressure: when processing already
// holds max items, or pending is empty, nothing moves.
func (b *Buckets) StartBatch(max int) []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.processing) >= max || len(b.pending) == 0 {
		return nil
	}

	n := max
	if len(b.pending) < n {
		n = len(b.pending)
	}

	batch := make([]model.Message, n)
	copy(batch, b.pending[:n])
	b.pending = append([]model.Message(nil), b.pending[n:]...)

	now := time.Now().UTC()
	for i := range batch {
		batch[i].Status = model.Processing
		batch[i].Attempts++
		batch[i].UpdatedAt = now
	}
	b.processing = append(b.processing, batch...)

	out := make([]model.Message, n)
	copy(out, batch)
	return out
}

// Finish moves a processing message to its terminal bucket and stamps
// the terminal fields. The second return is false when the message is
// no longer in processing (e.g. the bucket was cleared mid-flight).
func (b *Buckets) Finish(id string, success bool, errMsg string, at time.Time) (model.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, m := range b.processing {
		if m.ID != id {
			continue
		}

		b.processing = append(b.processing[:i], b.processing[i+1:]...)

		m.UpdatedAt = at
		if success {
			m.Status = model.Sent
			m.SentAt = &at
			b.completed = append(b.completed, m)
		} else {
			m.Status = model.Failed
			m.Error = errMsg
			m.FailedAt = &at
			b.failed = append(b.failed, m)
		}
		return m, true
	}
	return model.Message{}, false
}

func (b *Buckets) Get(bucket Bucket) []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyMessages(*b.slot(bucket))
}

func (b *Buckets) Snapshot() map[Bucket][]model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[Bucket][]model.Message{
		Pending:    copyMessages(b.pending),
		Processing: copyMessages(b.processing),
		Completed:  copyMessages(b.completed),
		Failed:     copyMessages(b.failed),
	}
}

func (b *Buckets) Counts() map[Bucket]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[Bucket]int{
		Pending:    len(b.pending),
		Processing: len(b.processing),
		Completed:  len(b.completed),
		Failed:     len(b.failed),
	}
}

// Clear empties the chosen bucket (or every bucket for All) and returns
// the number of messages removed. Clearing processing does not cancel
// outstanding sends; their Finish calls will simply find nothing.
func (b *Buckets) Clear(bucket Bucket) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bucket == All {
		n := len(b.pending) + len(b.processing) + len(b.completed) + len(b.failed)
		b.pending, b.processing, b.completed, b.failed = nil, nil, nil, nil
		return n
	}

	slot := b.slot(bucket)
	n := len(*slot)
	*slot = nil
	return n
}

func (b *Buckets) slot(bucket Bucket) *[]model.Message {
	switch bucket {
	case Processing:
		return &b.processing
	case Completed:
		return &b.completed
	case Failed:
		return &b.failed
	default:
		return &b.pending
	}
}

func copyMessages(s []model.Message) []model.Message {
	out := make([]model.Message, len(s))
	copy(out, s)
	return out
}
