package journal

import (
    "context"
    "database/sql"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `CREATE TABLE IF NOT EXISTS tracking_journal (
    id         uuid PRIMARY KEY,
    route_id   text        NOT NULL,
    kind       text        NOT NULL,
    title      text,
    color      text,
    lat        double precision NOT NULL DEFAULT 0,
    lng        double precision NOT NULL DEFAULT 0,
    at         timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tracking_journal_route_at ON tracking_journal (route_id, at DESC);`

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate creates the journal table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, schema)
    return err
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
    if e.ID == "" { e.ID = uuid.NewString() }
    if e.At.IsZero() { e.At = time.Now().UTC() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO tracking_journal (id, route_id, kind, title, color, lat, lng, at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        e.ID, e.RouteID, string(e.Kind), nullIfEmpty(e.Title), nullIfEmpty(e.Color), e.Lat, e.Lng, e.At)
    return err
}

func (p *Postgres) List(ctx context.Context, routeID string, limit int) ([]Entry, error) {
    limit = clampLimit(limit)
    var rows *sql.Rows
    var err error
    if routeID != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, route_id, kind, title, color, lat, lng, at FROM tracking_journal WHERE route_id=$1 ORDER BY at DESC LIMIT $2`, routeID, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, route_id, kind, title, color, lat, lng, at FROM tracking_journal ORDER BY at DESC LIMIT $1`, limit)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []Entry{}
    for rows.Next() {
        var e Entry
        var kind string
        var title, color sql.NullString
        if err := rows.Scan(&e.ID, &e.RouteID, &kind, &title, &color, &e.Lat, &e.Lng, &e.At); err != nil { return nil, err }
        e.Kind = Kind(kind)
        e.Title = title.String
        e.Color = color.String
        out = append(out, e)
    }
    return out, rows.Err()
}

func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}
