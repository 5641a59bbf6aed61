package journal

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
)

// DefaultMemoryCap is how many entries NewMemory keeps before evicting the oldest.
const DefaultMemoryCap = 10000

// Memory is the journal used when no DATABASE_URL is set. It is a ring of the
// most recent entries.
type Memory struct {
    mu      sync.Mutex
    entries []Entry
    next    int
    size    int
}

func NewMemory() *Memory { return NewMemoryCap(DefaultMemoryCap) }

// NewMemoryCap keeps at most n entries; n < 1 means DefaultMemoryCap.
func NewMemoryCap(n int) *Memory {
    if n < 1 { n = DefaultMemoryCap }
    return &Memory{size: n}
}

func (m *Memory) Record(ctx context.Context, e Entry) error {
    if e.ID == "" { e.ID = uuid.NewString() }
    if e.At.IsZero() { e.At = time.Now().UTC() }
    m.mu.Lock(); defer m.mu.Unlock()
    if m.size == 0 { m.size = DefaultMemoryCap }
    if len(m.entries) < m.size {
        m.entries = append(m.entries, e)
        return nil
    }
    m.entries[m.next] = e
    m.next = (m.next + 1) % m.size
    return nil
}

func (m *Memory) List(ctx context.Context, routeID string, limit int) ([]Entry, error) {
    limit = clampLimit(limit)
    m.mu.Lock(); defer m.mu.Unlock()
    out := []Entry{}
    n := len(m.entries)
    // newest is just before next once the ring has wrapped
    for i := 0; i < n && len(out) < limit; i++ {
        e := m.entries[(m.next-1-i+2*n)%n]
        if routeID == "" || e.RouteID == routeID { out = append(out, e) }
    }
    return out, nil
}
