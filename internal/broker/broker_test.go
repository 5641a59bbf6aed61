package broker

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe(TopicMap)

    evt := Event{Type: "marker.moved", Data: map[string]any{"x": 1}}
    b.Publish(TopicMap, evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["x"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(TopicMap, ch)
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    if n := b.Subscribers(TopicMap); n != 0 { t.Fatalf("subscribers = %d, want 0", n) }
    // second unsubscribe must not panic on double close
    b.Unsubscribe(TopicMap, ch)
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
    b := NewBroker()
    mapCh := b.Subscribe(TopicMap)
    noticeCh := b.Subscribe(TopicNotices)
    defer b.Unsubscribe(TopicMap, mapCh)
    defer b.Unsubscribe(TopicNotices, noticeCh)

    b.Publish(TopicNotices, Event{Type: "notice"})
    select {
    case evt := <-mapCh:
        t.Fatalf("map subscriber got %+v", evt)
    case <-noticeCh:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for notice")
    }
}

func TestBrokerPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe(TopicMap)
    defer b.Unsubscribe(TopicMap, ch)
    done := make(chan struct{})
    go func() {
        for i := 0; i < cap(ch)*2; i++ { b.Publish(TopicMap, Event{Type: "marker.moved"}) }
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("publish blocked on a full subscriber")
    }
    if len(ch) != cap(ch) { t.Fatalf("buffered %d, want %d", len(ch), cap(ch)) }
}
