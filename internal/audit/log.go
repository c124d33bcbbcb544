package audit

import (
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Sink receives a copy of every record after it is appended.
type Sink interface {
	Write(Record) error
}

// Log is the in-memory audit trail. Sequence numbers start at 1 and are
// gapless; records are never updated or removed.
type Log struct {
	mu      sync.RWMutex
	records []Record
	sinks   []Sink
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithSink mirrors every appended record to s.
func WithSink(s Sink) Option {
	return func(l *Log) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLog creates an empty log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns the next sequence number and chain hash and stores the
// record. Sink failures are logged and do not fail the append.
func (l *Log) Append(e Entry) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		Seq:      uint64(len(l.records)) + 1,
		Time:     l.now().UTC(),
		Tool:     e.Tool,
		Args:     e.Args,
		Risk:     e.Risk,
		Decision: e.Decision,
		Detail:   e.Detail,
		ActionID: e.ActionID,
	}
	if n := len(l.records); n > 0 {
		rec.PrevHash = l.records[n-1].Hash
	}
	rec.Hash = hashRecord(rec)
	l.records = append(l.records, rec)

	for _, s := range l.sinks {
		if err := s.Write(rec); err != nil {
			l.logger.Warn("audit sink write failed", "seq", rec.Seq, "error", err)
		}
	}
	return rec
}

// Len returns the number of records appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Query yields up to limit records matching f, newest first. limit <= 0
// means no limit. The sequence covers the records present when Query was
// called and can be ranged over any number of times.
func (l *Log) Query(limit int, f Filter) iter.Seq[Record] {
	l.mu.RLock()
	// Records are immutable once appended, so the prefix stays valid even
	// if later appends grow the backing array.
	records := l.records[:len(l.records):len(l.records)]
	l.mu.RUnlock()

	return func(yield func(Record) bool) {
		emitted := 0
		for i := len(records) - 1; i >= 0; i-- {
			if limit > 0 && emitted >= limit {
				return
			}
			if !f.Match(records[i]) {
				continue
			}
			emitted++
			if !yield(records[i]) {
				return
			}
		}
	}
}

// Recent collects Query into a slice.
func (l *Log) Recent(limit int, f Filter) []Record {
	out := slices.Collect(l.Query(limit, f))
	if out == nil {
		return []Record{}
	}
	return out
}

// Verify checks sequence numbers and the hash chain from the first record.
func (l *Log) Verify() error {
	l.mu.RLock()
	records := l.records[:len(l.records):len(l.records)]
	l.mu.RUnlock()
	return VerifyChain(records)
}
