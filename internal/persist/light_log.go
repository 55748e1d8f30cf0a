package persist

import (
	"context"
	"fmt"
	"math"
	"time"
)

// LightEventKind names a light history transition.
type LightEventKind string

const (
	LightApplied      LightEventKind = "applied"
	LightReplaced     LightEventKind = "replaced"
	LightExtinguished LightEventKind = "extinguished"
	LightExpired      LightEventKind = "expired"
)

// LightLogEntry is one row of the append-only light history.
type LightLogEntry struct {
	Session         string
	EntityID        string
	DisplayName     string
	SourceKey       string
	Kind            LightEventKind
	StartedAt       time.Time
	DurationSeconds float64 // +Inf stored as NULL
	LoggedAt        time.Time
}

type LightLogRepo struct {
	db *DB
}

func NewLightLogRepo(db *DB) *LightLogRepo {
	return &LightLogRepo{db: db}
}

// Append writes a batch of entries in a single transaction.
func (r *LightLogRepo) Append(ctx context.Context, entries []LightLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("light log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO light_log (session, entity_id, display_name, source_key, kind, started_at, duration_seconds, logged_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.Session, e.EntityID, e.DisplayName, e.SourceKey, string(e.Kind),
			e.StartedAt, DurationColumn(e.DurationSeconds), e.LoggedAt,
		); err != nil {
			return fmt.Errorf("light log insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Recent returns the newest entries of a session, newest first.
func (r *LightLogRepo) Recent(ctx context.Context, session string, limit int) ([]LightLogEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT entity_id, display_name, source_key, kind, started_at, duration_seconds, logged_at
		 FROM light_log WHERE session = $1 ORDER BY id DESC LIMIT $2`,
		session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("light log query: %w", err)
	}
	defer rows.Close()

	var out []LightLogEntry
	for rows.Next() {
		var (
			e    LightLogEntry
			kind string
			dur  *float64
		)
		if err := rows.Scan(&e.EntityID, &e.DisplayName, &e.SourceKey, &kind, &e.StartedAt, &dur, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("light log scan: %w", err)
		}
		e.Session = session
		e.Kind = LightEventKind(kind)
		e.DurationSeconds = DurationFromColumn(dur)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DurationColumn maps a duration to its column value; permanent lights are NULL.
func DurationColumn(seconds float64) *float64 {
	if math.IsInf(seconds, 1) || math.IsNaN(seconds) {
		return nil
	}
	return &seconds
}

// DurationFromColumn reverses DurationColumn.
func DurationFromColumn(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}
