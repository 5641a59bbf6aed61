package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"ridetrack/internal/model"
)

func quietWorker(q *Queue, client *http.Client, max int) *Worker {
	l := log.New()
	l.SetOutput(io.Discard)
	return &Worker{Queue: q, HTTP: client, MaxAttempts: max, Interval: time.Millisecond, Log: l}
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotType = r.Header.Get(HeaderEventType)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	q := NewQueue()
	p := NewPublisher(q, srv.URL, "secret")
	p.Notify(context.Background(), model.Notice{ID: "n1", Message: "Trip A finalizou!", Variant: model.VariantSuccess})

	w := quietWorker(q, srv.Client(), 3)
	w.processOnce(context.Background())

	if gotType != EventNotice {
		t.Fatalf("event type header = %q", gotType)
	}
	if !Verify("secret", gotBody, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if pending, delivered, dead := q.Stats(); pending != 0 || delivered != 1 || dead != 0 {
		t.Fatalf("stats = %d/%d/%d", pending, delivered, dead)
	}
}

func TestWorkerProcessOnce_RetryThenDeadLetter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	q := NewQueue()
	id := q.Enqueue(EventNotice, srv.URL, "", []byte(`{}`))
	w := quietWorker(q, srv.Client(), 2)

	w.processOnce(context.Background())
	if pending, _, dead := q.Stats(); pending != 1 || dead != 0 {
		t.Fatalf("after first attempt: pending=%d dead=%d", pending, dead)
	}
	if due := q.Due(time.Now(), 10); len(due) != 0 {
		t.Fatalf("delivery should be backing off, got %d due", len(due))
	}

	// make it due again; the second attempt reaches MaxAttempts
	q.mu.Lock()
	q.pending[id].NextAttemptAt = time.Now().Add(-time.Second)
	q.mu.Unlock()
	w.processOnce(context.Background())
	dead := q.Dead()
	if len(dead) != 1 || dead[0].ResponseCode != 500 {
		t.Fatalf("expected dead-lettered delivery, got %+v", dead)
	}
}

func TestPublisherWithoutURLIsNoop(t *testing.T) {
	q := NewQueue()
	NewPublisher(q, "", "").Notify(context.Background(), model.Notice{Message: "x"})
	if pending, _, _ := q.Stats(); pending != 0 {
		t.Fatalf("pending = %d", pending)
	}
}

func TestSignVerify(t *testing.T) {
	sig := Sign("k", []byte("body"))
	if !Verify("k", []byte("body"), sig) { t.Fatal("valid signature rejected") }
	if Verify("k", []byte("other"), sig) { t.Fatal("signature accepted for other body") }
	if Verify("k", []byte("body"), "zz") { t.Fatal("non-hex signature accepted") }
}
