// Package events provides the message bus of the simulation and the
// journal, an append-only record of everything that was published on it.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is an immutable journal record of one bus message.
type Entry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"-"`
	TypeName  string      `json:"type"`
	ActorID   string      `json:"actor_id,omitempty"`
	Payload   any         `json:"payload,omitempty"`
}

// EventPersister defines how an entry is durably stored.
type EventPersister interface {
	Append(ctx context.Context, entry Entry) error
}

// WriteObserver is told the outcome of every persisted entry.
type WriteObserver interface {
	RecordEventWrite(latency time.Duration, err error)
}

// JournalOptions configures a Journal.
type JournalOptions struct {
	Size      int               // entries kept in memory, oldest dropped first
	Persister EventPersister    // optional write-through store
	Observer  WriteObserver     // optional
	Now       func() time.Time  // defaults to time.Now
	Skip      []MessageType     // types never recorded
	OnDrop    func(entry Entry) // called when the write queue is full
}

// Journal is the in-memory append-only log of bus messages, bounded to the
// most recent Size entries, written through to an optional persister.
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
	start   int // ring start once full
	size    int
	skip    map[MessageType]bool

	persister EventPersister
	observer  WriteObserver
	now       func() time.Time
	onDrop    func(Entry)
	queue     chan Entry
}

// NewJournal creates a journal.
func NewJournal(opts JournalOptions) *Journal {
	if opts.Size <= 0 {
		opts.Size = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	j := &Journal{
		entries:   make([]Entry, 0, opts.Size),
		size:      opts.Size,
		skip:      make(map[MessageType]bool),
		persister: opts.Persister,
		observer:  opts.Observer,
		now:       opts.Now,
		onDrop:    opts.OnDrop,
	}
	for _, t := range opts.Skip {
		j.skip[t] = true
	}
	if j.persister != nil {
		j.queue = make(chan Entry, opts.Size)
	}
	return j
}

// Attach subscribes the journal to every given type on bus.
func (j *Journal) Attach(bus *Bus, types ...MessageType) Subscription {
	return bus.ObserveFunc(func(m Message) {
		j.Record(m)
	}, types...)
}

// Record appends a bus message to the journal.
func (j *Journal) Record(m Message) {
	if j.skip[m.Type] {
		return
	}
	j.Append(Entry{
		ID:        uuid.NewString(),
		Timestamp: j.now(),
		Type:      m.Type,
		TypeName:  m.Type.String(),
		ActorID:   actorOf(m.Payload),
		Payload:   m.Payload,
	})
}

// Append adds an entry. Entries are immutable once appended.
func (j *Journal) Append(e Entry) {
	j.mu.Lock()
	if len(j.entries) < j.size {
		j.entries = append(j.entries, e)
	} else {
		j.entries[j.start] = e
		j.start = (j.start + 1) % j.size
	}
	j.mu.Unlock()

	if j.queue == nil {
		return
	}
	select {
	case j.queue <- e:
	default:
		if j.onDrop != nil {
			j.onDrop(e)
		}
	}
}

// Run writes queued entries to the persister until ctx is done, then
// flushes what is left. It returns immediately without a persister.
func (j *Journal) Run(ctx context.Context) {
	if j.queue == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-j.queue:
					j.write(context.Background(), e)
				default:
					return
				}
			}
		case e := <-j.queue:
			j.write(ctx, e)
		}
	}
}

func (j *Journal) write(ctx context.Context, e Entry) {
	start := time.Now()
	err := j.persister.Append(ctx, e)
	if j.observer != nil {
		j.observer.RecordEventWrite(time.Since(start), err)
	}
}

// Replay returns the retained history, oldest first.
func (j *Journal) Replay() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, 0, len(j.entries))
	out = append(out, j.entries[j.start:]...)
	out = append(out, j.entries[:j.start]...)
	return out
}

// ByType returns the retained entries of one type.
func (j *Journal) ByType(t MessageType) []Entry {
	var result []Entry
	for _, e := range j.Replay() {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// ByActor returns the retained entries concerning one person or incident.
func (j *Journal) ByActor(actorID string) []Entry {
	var result []Entry
	for _, e := range j.Replay() {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// Since returns the retained entries recorded after t.
func (j *Journal) Since(t time.Time) []Entry {
	var result []Entry
	for _, e := range j.Replay() {
		if e.Timestamp.After(t) {
			result = append(result, e)
		}
	}
	return result
}

func actorOf(payload any) string {
	switch p := payload.(type) {
	case ActionPayload:
		return p.PersonID
	case PersonPayload:
		return p.PersonID
	case IncidentPayload:
		return p.IncidentID
	case ResourcePayload:
		return p.Source
	}
	return ""
}
