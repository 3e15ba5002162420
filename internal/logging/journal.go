package logging

import (
	"sync"
	"time"

	"ghostshell/internal/domain"
)

const (
	DefaultCapacity = 500
	VisibleEntries  = 5
	VisibleFor      = 5 * time.Second
)

// Journal is the volatile in-memory log shown by the UI. It never touches disk.
type Journal struct {
	mu       sync.Mutex
	capacity int
	entries  []journalEntry
	nextSub  int
	subs     map[int]func(domain.LogEntry)
	now      func() time.Time
}

type journalEntry struct {
	entry domain.LogEntry
	at    time.Time
}

func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		capacity: capacity,
		subs:     make(map[int]func(domain.LogEntry)),
		now:      time.Now,
	}
}

// Append stores entry and pushes it to every subscriber.
func (j *Journal) Append(entry domain.LogEntry, at time.Time) {
	j.mu.Lock()
	j.entries = append(j.entries, journalEntry{entry: entry, at: at})
	if overflow := len(j.entries) - j.capacity; overflow > 0 {
		j.entries = append([]journalEntry(nil), j.entries[overflow:]...)
	}
	subs := make([]func(domain.LogEntry), 0, len(j.subs))
	for _, fn := range j.subs {
		subs = append(subs, fn)
	}
	j.mu.Unlock()

	for _, fn := range subs {
		fn(entry)
	}
}

// Recent returns at most limit entries younger than maxAge, oldest first.
func (j *Journal) Recent(limit int, maxAge time.Duration) []domain.LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().Add(-maxAge)
	out := make([]domain.LogEntry, 0, limit)
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if maxAge > 0 && j.entries[i].at.Before(cutoff) {
			break
		}
		out = append(out, j.entries[i].entry)
	}
	for left, right := 0, len(out)-1; left < right; left, right = left+1, right-1 {
		out[left], out[right] = out[right], out[left]
	}
	return out
}

// Visible returns what the UI overlay shows right now.
func (j *Journal) Visible() []domain.LogEntry {
	return j.Recent(VisibleEntries, VisibleFor)
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Subscribe registers fn for every future entry and returns its cancel func.
func (j *Journal) Subscribe(fn func(domain.LogEntry)) func() {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = fn
	return func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		delete(j.subs, id)
	}
}

// Purge drops every entry. Called on shutdown.
func (j *Journal) Purge() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}
