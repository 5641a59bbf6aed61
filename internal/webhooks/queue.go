package webhooks

import (
    "sync"
    "time"

    "github.com/google/uuid"
)

// Delivery is one pending webhook POST.
type Delivery struct {
    ID            string
    EventType     string
    URL           string
    Secret        string
    Payload       []byte
    Attempts      int
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
}

// Queue is an in-memory delivery queue with a dead-letter list.
type Queue struct {
    mu      sync.Mutex
    pending map[string]*Delivery
    order   []string
    dead    []Delivery
    done    int
}

func NewQueue() *Queue {
    return &Queue{pending: map[string]*Delivery{}}
}

func (q *Queue) Enqueue(eventType, url, secret string, payload []byte) string {
    q.mu.Lock(); defer q.mu.Unlock()
    d := &Delivery{ID: uuid.NewString(), EventType: eventType, URL: url, Secret: secret, Payload: payload, NextAttemptAt: time.Now()}
    q.pending[d.ID] = d
    q.order = append(q.order, d.ID)
    return d.ID
}

// Due returns up to limit deliveries whose next attempt time has passed.
func (q *Queue) Due(now time.Time, limit int) []Delivery {
    q.mu.Lock(); defer q.mu.Unlock()
    var out []Delivery
    for _, id := range q.order {
        if len(out) >= limit { break }
        d := q.pending[id]
        if d != nil && !d.NextAttemptAt.After(now) { out = append(out, *d) }
    }
    return out
}

// Mark records an attempt. Successful deliveries leave the queue.
func (q *Queue) Mark(id string, success bool, next time.Time, lastErr string, code int) {
    q.mu.Lock(); defer q.mu.Unlock()
    d := q.pending[id]
    if d == nil { return }
    if success {
        q.remove(id)
        q.done++
        return
    }
    d.Attempts++
    d.NextAttemptAt = next
    d.LastError = lastErr
    d.ResponseCode = code
}

// Fail moves a delivery to the dead-letter list.
func (q *Queue) Fail(id string, lastErr string, code int) {
    q.mu.Lock(); defer q.mu.Unlock()
    d := q.pending[id]
    if d == nil { return }
    d.Attempts++
    d.LastError = lastErr
    d.ResponseCode = code
    q.dead = append(q.dead, *d)
    q.remove(id)
}

func (q *Queue) remove(id string) {
    delete(q.pending, id)
    for i, x := range q.order {
        if x == id { q.order = append(q.order[:i], q.order[i+1:]...); break }
    }
}

// Stats reports pending, delivered and dead-lettered counts.
func (q *Queue) Stats() (pending, delivered, dead int) {
    q.mu.Lock(); defer q.mu.Unlock()
    return len(q.pending), q.done, len(q.dead)
}

func (q *Queue) Dead() []Delivery {
    q.mu.Lock(); defer q.mu.Unlock()
    return append([]Delivery(nil), q.dead...)
}
