package journal

import (
    "context"
    "testing"
)

func TestMemoryRecordAndListNewestFirst(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    for _, e := range []Entry{
        {RouteID: "A", Kind: KindStarted},
        {RouteID: "B", Kind: KindStarted},
        {RouteID: "A", Kind: KindConflict},
        {RouteID: "A", Kind: KindFinished},
    } {
        if err := m.Record(ctx, e); err != nil { t.Fatalf("record: %v", err) }
    }

    all, _ := m.List(ctx, "", 0)
    if len(all) != 4 { t.Fatalf("all: got %d", len(all)) }
    if all[0].Kind != KindFinished || all[3].RouteID != "A" { t.Fatalf("order: %+v", all) }
    if all[0].ID == "" || all[0].At.IsZero() { t.Fatalf("id/at not stamped: %+v", all[0]) }

    a, _ := m.List(ctx, "A", 2)
    if len(a) != 2 || a[0].Kind != KindFinished || a[1].Kind != KindConflict { t.Fatalf("route A: %+v", a) }

    none, _ := m.List(ctx, "Z", 10)
    if none == nil || len(none) != 0 { t.Fatalf("unknown route should be empty non-nil, got %#v", none) }
}

func TestMemoryEvictsOldestPastCap(t *testing.T) {
    m := NewMemoryCap(3)
    ctx := context.Background()
    for _, id := range []string{"A", "B", "C", "D", "E"} {
        if err := m.Record(ctx, Entry{RouteID: id, Kind: KindStarted}); err != nil { t.Fatalf("record: %v", err) }
    }

    all, _ := m.List(ctx, "", 0)
    if len(all) != 3 { t.Fatalf("kept %d entries, want 3", len(all)) }
    for i, want := range []string{"E", "D", "C"} {
        if all[i].RouteID != want { t.Fatalf("entry %d: got %s want %s (%+v)", i, all[i].RouteID, want, all) }
    }
    if a, _ := m.List(ctx, "A", 10); len(a) != 0 { t.Fatalf("evicted route still listed: %+v", a) }

    top, _ := m.List(ctx, "", 2)
    if len(top) != 2 || top[0].RouteID != "E" || top[1].RouteID != "D" { t.Fatalf("limit: %+v", top) }

    if d := NewMemoryCap(0); d.size != DefaultMemoryCap { t.Fatalf("default cap: got %d", d.size) }
}

func TestNullIfEmpty(t *testing.T) {
    if v := nullIfEmpty(""); v != nil { t.Fatalf("empty -> nil expected") }
    if v := nullIfEmpty("x"); v != "x" { t.Fatalf("non-empty passthrough expected, got %v", v) }
}
