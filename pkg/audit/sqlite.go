package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/leasegate/pkg/models"
)

// SQLiteWriter writes and queries audit events in a dedicated SQLite database.
type SQLiteWriter struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
	once          sync.Once
}

// NewSQLiteWriter opens the audit database at dbPath and creates the schema.
// When retentionDays is positive, events older than that are purged hourly.
func NewSQLiteWriter(dbPath string, retentionDays int) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	w := &SQLiteWriter{
		db:            db,
		retentionDays: retentionDays,
		done:          make(chan struct{}),
	}
	if retentionDays > 0 {
		w.wg.Add(1)
		go w.retentionLoop()
	}
	return w, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_events (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type           TEXT NOT NULL,
		timestamp_utc        DATETIME NOT NULL,
		protocol_version     TEXT NOT NULL,
		policy_hash          TEXT,
		lease_id             TEXT,
		actor_id             TEXT,
		workspace_id         TEXT,
		action_type          TEXT,
		model_id             TEXT,
		estimated_cost_cents INTEGER NOT NULL DEFAULT 0,
		actual_cost_cents    INTEGER NOT NULL DEFAULT 0,
		decision             TEXT,
		reason               TEXT,
		recommendation       TEXT
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_time ON audit_events(timestamp_utc)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_lease ON audit_events(lease_id)`)
	return err
}

// Write inserts ev.
func (w *SQLiteWriter) Write(ctx context.Context, ev models.AuditEvent) error {
	if w == nil || w.db == nil {
		return nil
	}
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO audit_events
		(event_type, timestamp_utc, protocol_version, policy_hash, lease_id,
		 actor_id, workspace_id, action_type, model_id,
		 estimated_cost_cents, actual_cost_cents, decision, reason, recommendation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventType, ev.TimestampUTC.UTC(), ev.ProtocolVersion, ev.PolicyHash, ev.LeaseID,
		ev.ActorID, ev.WorkspaceID, ev.ActionType, ev.ModelID,
		ev.EstimatedCostCents, ev.ActualCostCents, ev.Decision, ev.Reason, ev.Recommendation,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns events matching opts, newest first.
func (w *SQLiteWriter) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEvent, error) {
	q := `SELECT event_type, timestamp_utc, protocol_version, policy_hash, lease_id,
		actor_id, workspace_id, action_type, model_id,
		estimated_cost_cents, actual_cost_cents, decision, reason, recommendation
		FROM audit_events WHERE 1=1`
	var args []any

	if opts.EventType != "" {
		q += " AND event_type = ?"
		args = append(args, opts.EventType)
	}
	if opts.ActorID != "" {
		q += " AND actor_id = ?"
		args = append(args, opts.ActorID)
	}
	if opts.WorkspaceID != "" {
		q += " AND workspace_id = ?"
		args = append(args, opts.WorkspaceID)
	}
	if opts.LeaseID != "" {
		q += " AND lease_id = ?"
		args = append(args, opts.LeaseID)
	}
	if !opts.Since.IsZero() {
		q += " AND timestamp_utc >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY timestamp_utc DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := w.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var (
			e                                       models.AuditEvent
			hash, lease, actor, workspace, action   sql.NullString
			model, decision, reason, recommendation sql.NullString
		)
		if err := rows.Scan(
			&e.EventType, &e.TimestampUTC, &e.ProtocolVersion, &hash, &lease,
			&actor, &workspace, &action, &model,
			&e.EstimatedCostCents, &e.ActualCostCents, &decision, &reason, &recommendation,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.PolicyHash = hash.String
		e.LeaseID = lease.String
		e.ActorID = actor.String
		e.WorkspaceID = workspace.String
		e.ActionType = action.String
		e.ModelID = model.String
		e.Decision = decision.String
		e.Reason = reason.String
		e.Recommendation = recommendation.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Stats returns event counts and actual spend grouped by event type and day.
func (w *SQLiteWriter) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT event_type, date(timestamp_utc) AS day, count(*) AS cnt, sum(actual_cost_cents)
		 FROM audit_events GROUP BY event_type, day ORDER BY day DESC, event_type`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.EventType, &day, &s.Count, &s.CostCents); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes events older than the retention period. A writer without
// retention deletes nothing.
func (w *SQLiteWriter) Cleanup(ctx context.Context) (int64, error) {
	if w.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -w.retentionDays)
	res, err := w.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp_utc < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (w *SQLiteWriter) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.db.Close()
	})
	return err
}

func (w *SQLiteWriter) retentionLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			_, _ = w.Cleanup(context.Background())
		}
	}
}
