// Package store provides the Postgres adapter for the mission store
// contract.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrilink/fleetcore/core/model"
	corestore "github.com/agrilink/fleetcore/core/store"
)

// Schema is the DDL for the mission tables. Applied by the operator or a
// migration tool, not by the service itself.
const Schema = `
CREATE TABLE IF NOT EXISTS missions (
    id            TEXT PRIMARY KEY,
    shipper_id    TEXT NOT NULL,
    receiver_id   TEXT NOT NULL,
    product       TEXT NOT NULL,
    quantity      DOUBLE PRECISION NOT NULL,
    unit          TEXT NOT NULL DEFAULT '',
    priority      TEXT NOT NULL,
    origin_name   TEXT NOT NULL,
    origin_lat    DOUBLE PRECISION,
    origin_lon    DOUBLE PRECISION,
    dest_name     TEXT NOT NULL,
    dest_lat      DOUBLE PRECISION,
    dest_lon      DOUBLE PRECISION,
    required_tags TEXT[] NOT NULL DEFAULT '{}',
    driver_id     TEXT NOT NULL DEFAULT '',
    truck_id      TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS mission_history (
    mission_id TEXT NOT NULL REFERENCES missions(id),
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    actor       TEXT NOT NULL,
    evidence    TEXT NOT NULL DEFAULT '',
    notes       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS mission_history_mission_idx ON mission_history (mission_id, ts);
CREATE INDEX IF NOT EXISTS missions_status_idx ON missions (status);
`

// PgStore implements corestore.MissionStore on a pgx connection pool.
type PgStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for the given DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

// NewPgStore wraps an existing pool, mainly for tests.
func NewPgStore(pool *pgxpool.Pool) *PgStore { return &PgStore{pool: pool} }

// Save upserts the mission record. History rows are written separately
// through AppendHistory inside the same transaction so the mission row
// and its audit log stay consistent.
func (s *PgStore) Save(ctx context.Context, m model.Mission) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO missions (id, shipper_id, receiver_id, product, quantity, unit, priority,
			origin_name, origin_lat, origin_lon, dest_name, dest_lat, dest_lon,
			required_tags, driver_id, truck_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			truck_id = EXCLUDED.truck_id,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`
	var oLat, oLon, dLat, dLon *float64
	if m.Origin.HasCoords {
		oLat, oLon = &m.Origin.Lat, &m.Origin.Lon
	}
	if m.Destination.HasCoords {
		dLat, dLon = &m.Destination.Lat, &m.Destination.Lon
	}
	_, err = tx.Exec(ctx, upsert,
		m.ID, m.ShipperID, m.ReceiverID, m.Product, m.Quantity, m.Unit, m.Priority.String(),
		m.Origin.Name, oLat, oLon, m.Destination.Name, dLat, dLon,
		m.RequiredTags, m.DriverID, m.TruckID, m.Status.String(), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	// Replay missing history entries; rows already present are counted
	// and skipped so Save stays idempotent on retry.
	var have int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM mission_history WHERE mission_id = $1`, m.ID).Scan(&have); err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}
	for i := have; i < len(m.History); i++ {
		if err := insertHistory(ctx, tx, m.History[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// FindByID loads the mission and its ordered history.
func (s *PgStore) FindByID(ctx context.Context, id string) (model.Mission, error) {
	const q = `
		SELECT id, shipper_id, receiver_id, product, quantity, unit, priority,
			origin_name, origin_lat, origin_lon, dest_name, dest_lat, dest_lon,
			required_tags, driver_id, truck_id, status, created_at, updated_at
		FROM missions WHERE id = $1`
	m, err := scanMission(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return model.Mission{}, err
	}
	history, err := s.loadHistory(ctx, id)
	if err != nil {
		return model.Mission{}, err
	}
	m.History = history
	return m, nil
}

// AppendHistory appends one immutable audit entry.
func (s *PgStore) AppendHistory(ctx context.Context, id string, entry model.HistoryEntry) error {
	entry.MissionID = id
	return insertHistory(ctx, s.pool, entry)
}

// FindActive returns non-terminal missions matching the filter.
func (s *PgStore) FindActive(ctx context.Context, f corestore.Filter) ([]model.Mission, error) {
	var (
		conds = []string{`status NOT IN ('CONFIRMED','CANCELLED','FAILED')`}
		args  []any
	)
	if f.Status != nil {
		args = append(args, f.Status.String())
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Region != "" {
		args = append(args, f.Region)
		conds = append(conds, fmt.Sprintf("(origin_name = $%d OR dest_name = $%d)", len(args), len(args)))
	}
	q := `
		SELECT id, shipper_id, receiver_id, product, quantity, unit, priority,
			origin_name, origin_lat, origin_lon, dest_name, dest_lat, dest_lon,
			required_tags, driver_id, truck_id, status, created_at, updated_at
		FROM missions WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store.FindActive: %w", err)
	}
	defer rows.Close()
	var res []model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountByStatus returns the mission count per status.
func (s *PgStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM missions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("store.CountByStatus: %w", err)
	}
	defer rows.Close()
	counts := make(map[model.Status]int)
	for rows.Next() {
		var (
			raw string
			n   int
		)
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, err
		}
		st, err := model.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// Close releases the pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertHistory(ctx context.Context, db execer, entry model.HistoryEntry) error {
	const q = `
		INSERT INTO mission_history (mission_id, from_status, to_status, ts, actor, evidence, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := db.Exec(ctx, q,
		entry.MissionID, entry.From.String(), entry.To.String(), entry.Timestamp,
		entry.Actor, entry.Evidence, entry.Notes)
	if err != nil {
		return fmt.Errorf("store.AppendHistory: %w", err)
	}
	return nil
}

func (s *PgStore) loadHistory(ctx context.Context, id string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mission_id, from_status, to_status, ts, actor, evidence, notes
		FROM mission_history WHERE mission_id = $1 ORDER BY ts`, id)
	if err != nil {
		return nil, fmt.Errorf("store.loadHistory: %w", err)
	}
	defer rows.Close()
	var history []model.HistoryEntry
	for rows.Next() {
		var (
			e        model.HistoryEntry
			from, to string
		)
		if err := rows.Scan(&e.MissionID, &from, &to, &e.Timestamp, &e.Actor, &e.Evidence, &e.Notes); err != nil {
			return nil, err
		}
		if e.From, err = model.ParseStatus(from); err != nil {
			return nil, err
		}
		if e.To, err = model.ParseStatus(to); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func scanMission(row pgx.Row) (model.Mission, error) {
	var (
		m                      model.Mission
		priority, status       string
		oLat, oLon, dLat, dLon *float64
	)
	err := row.Scan(&m.ID, &m.ShipperID, &m.ReceiverID, &m.Product, &m.Quantity, &m.Unit, &priority,
		&m.Origin.Name, &oLat, &oLon, &m.Destination.Name, &dLat, &dLon,
		&m.RequiredTags, &m.DriverID, &m.TruckID, &status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Mission{}, model.ErrNotFound
		}
		return model.Mission{}, fmt.Errorf("scan mission: %w", err)
	}
	if oLat != nil && oLon != nil {
		m.Origin.Lat, m.Origin.Lon, m.Origin.HasCoords = *oLat, *oLon, true
	}
	if dLat != nil && dLon != nil {
		m.Destination.Lat, m.Destination.Lon, m.Destination.HasCoords = *dLat, *dLon, true
	}
	if m.Priority, err = model.ParsePriority(priority); err != nil {
		return model.Mission{}, err
	}
	if m.Status, err = model.ParseStatus(status); err != nil {
		return model.Mission{}, err
	}
	return m, nil
}
