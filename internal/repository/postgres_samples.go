package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"radiotest-data/internal/domain"

	"github.com/lib/pq"
)

// PostgresSamplesRepo location_samples 表的 PostgreSQL 实现
type PostgresSamplesRepo struct {
	db *sql.DB
}

func NewPostgresSamplesRepo(db *sql.DB) *PostgresSamplesRepo {
	return &PostgresSamplesRepo{db: db}
}

// 确保实现了接口
var _ SamplesRepository = (*PostgresSamplesRepo)(nil)

// "user" is a reserved word in PostgreSQL, hence the quoting.
const sampleColumns = `
	server_id::text,
	client_id,
	lat,
	lon,
	acc,
	sample_date,
	sample_time,
	captured_at_utc,
	provider,
	freq,
	rf_pwr,
	comm_state,
	"user",
	station,
	device_id,
	sync,
	attempt_count,
	last_error,
	synced_at_utc,
	received_at,
	processed`

func scanSample(row interface{ Scan(...any) error }) (*domain.LocationSample, error) {
	var s domain.LocationSample
	err := row.Scan(
		&s.ServerID,
		&s.ClientID,
		&s.Lat,
		&s.Lon,
		&s.Acc,
		&s.SampleDate,
		&s.SampleTime,
		&s.CapturedAtUTC,
		&s.Provider,
		&s.Freq,
		&s.RfPwr,
		&s.CommState,
		&s.User,
		&s.Station,
		&s.DeviceID,
		&s.Sync,
		&s.AttemptCount,
		&s.LastError,
		&s.SyncedAtUTC,
		&s.ReceivedAt,
		&s.Processed,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresSamplesRepo) BeginBatch(ctx context.Context) (SamplesBatch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	return &postgresSamplesBatch{tx: tx}, nil
}

func (r *PostgresSamplesRepo) FindByClientID(ctx context.Context, clientID string) (*domain.LocationSample, error) {
	return findByClientID(ctx, r.db, clientID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findByClientID(ctx context.Context, q queryRower, clientID string) (*domain.LocationSample, error) {
	query := `SELECT ` + sampleColumns + ` FROM location_samples WHERE client_id = $1`
	s, err := scanSample(q.QueryRowContext(ctx, query, clientID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sample by client_id: %w", err)
	}
	return s, nil
}

func buildWhere(filters SampleFilters, args *[]any, argN *int) string {
	var where []string
	if filters.DeviceID != "" {
		where = append(where, fmt.Sprintf("device_id = $%d", *argN))
		*args = append(*args, filters.DeviceID)
		*argN++
	}
	if filters.Station != "" {
		where = append(where, fmt.Sprintf("station = $%d", *argN))
		*args = append(*args, filters.Station)
		*argN++
	}
	if filters.StartDate != "" {
		where = append(where, fmt.Sprintf("sample_date >= $%d", *argN))
		*args = append(*args, filters.StartDate)
		*argN++
	}
	if filters.EndDate != "" {
		where = append(where, fmt.Sprintf("sample_date <= $%d", *argN))
		*args = append(*args, filters.EndDate)
		*argN++
	}
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func (r *PostgresSamplesRepo) List(ctx context.Context, filters SampleFilters, skip, limit int) ([]*domain.LocationSample, error) {
	args := []any{}
	argN := 1
	query := `SELECT ` + sampleColumns + ` FROM location_samples` + buildWhere(filters, &args, &argN)
	query += fmt.Sprintf(" ORDER BY received_at DESC OFFSET $%d LIMIT $%d", argN, argN+1)
	args = append(args, skip, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

func (r *PostgresSamplesRepo) ListChronological(ctx context.Context, filters SampleFilters) ([]*domain.LocationSample, error) {
	args := []any{}
	argN := 1
	query := `SELECT ` + sampleColumns + ` FROM location_samples` + buildWhere(filters, &args, &argN)
	query += " ORDER BY sample_date, sample_time"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples chronologically: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

func (r *PostgresSamplesRepo) Count(ctx context.Context, filters SampleFilters) (int, error) {
	args := []any{}
	argN := 1
	query := `SELECT COUNT(*) FROM location_samples` + buildWhere(filters, &args, &argN)

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return total, nil
}

func (r *PostgresSamplesRepo) ListForStations(ctx context.Context, station1, station2, startDate, endDate string) ([]*domain.LocationSample, error) {
	query := `SELECT ` + sampleColumns + `
		FROM location_samples
		WHERE sample_date BETWEEN $1 AND $2
		  AND station = ANY($3)
		ORDER BY sample_date, sample_time`

	rows, err := r.db.QueryContext(ctx, query, startDate, endDate, pq.Array([]string{station1, station2}))
	if err != nil {
		return nil, fmt.Errorf("failed to list station samples: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

func (r *PostgresSamplesRepo) ListForTrajectories(ctx context.Context, filters SampleFilters) ([]*domain.LocationSample, error) {
	args := []any{}
	argN := 1
	query := `SELECT ` + sampleColumns + ` FROM location_samples` + buildWhere(filters, &args, &argN)
	query += " ORDER BY sample_date, station, device_id, captured_at_utc"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trajectory samples: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

func (r *PostgresSamplesRepo) DistinctStations(ctx context.Context) ([]string, error) {
	return r.distinctStrings(ctx, `SELECT DISTINCT station FROM location_samples ORDER BY station`)
}

func (r *PostgresSamplesRepo) DistinctDevices(ctx context.Context) ([]string, error) {
	return r.distinctStrings(ctx, `SELECT DISTINCT device_id FROM location_samples ORDER BY device_id`)
}

func (r *PostgresSamplesRepo) DistinctDates(ctx context.Context) ([]string, error) {
	return r.distinctStrings(ctx, `SELECT DISTINCT sample_date FROM location_samples ORDER BY sample_date DESC`)
}

func (r *PostgresSamplesRepo) distinctStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct values: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PostgresSamplesRepo) Summary(ctx context.Context, deviceID string) (*SampleSummary, error) {
	sum := &SampleSummary{Frequencies: []string{}}

	countQuery := `SELECT COUNT(*) FROM location_samples`
	countArgs := []any{}
	if deviceID != "" {
		countQuery += ` WHERE device_id = $1`
		countArgs = append(countArgs, deviceID)
	}
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&sum.TotalSamples); err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}

	var minDate, maxDate sql.NullString
	if err := r.db.QueryRowContext(ctx,
		`SELECT MIN(sample_date), MAX(sample_date) FROM location_samples`).Scan(&minDate, &maxDate); err != nil {
		return nil, fmt.Errorf("failed to query date range: %w", err)
	}
	sum.StartDate = minDate.String
	sum.EndDate = maxDate.String

	freqs, err := r.distinctStrings(ctx, `SELECT DISTINCT freq FROM location_samples`)
	if err != nil {
		return nil, err
	}
	sum.Frequencies = freqs

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT device_id) FROM location_samples`).Scan(&sum.DeviceCount); err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}

	return sum, nil
}

func collectSamples(rows *sql.Rows) ([]*domain.LocationSample, error) {
	samples := []*domain.LocationSample{}
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// postgresSamplesBatch wraps one *sql.Tx for the duration of a bulk ingest.
type postgresSamplesBatch struct {
	tx   *sql.Tx
	done bool
}

func (b *postgresSamplesBatch) FindByClientID(ctx context.Context, clientID string) (*domain.LocationSample, error) {
	return findByClientID(ctx, b.tx, clientID)
}

// Insert relies on ON CONFLICT DO NOTHING rather than catching the unique
// violation: a failed statement would abort the whole transaction, and the
// race loser must stay inside it.
func (b *postgresSamplesBatch) Insert(ctx context.Context, s *domain.LocationSample) error {
	res, err := b.tx.ExecContext(ctx, `
		INSERT INTO location_samples (
			server_id, client_id, lat, lon, acc,
			sample_date, sample_time, captured_at_utc,
			provider, freq, rf_pwr, comm_state, "user", station,
			device_id, sync, attempt_count, last_error, synced_at_utc,
			received_at, processed
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21
		)
		ON CONFLICT (client_id) DO NOTHING`,
		s.ServerID, s.ClientID, s.Lat, s.Lon, s.Acc,
		s.SampleDate, s.SampleTime, s.CapturedAtUTC,
		s.Provider, s.Freq, s.RfPwr, s.CommState, s.User, s.Station,
		s.DeviceID, s.Sync, s.AttemptCount, s.LastError, s.SyncedAtUTC,
		s.ReceivedAt, s.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Conflict on client_id: the row already exists (or a concurrent
		// batch won the race). The caller resolves this as idempotent
		// success.
		return ErrDuplicate
	}
	return nil
}

func (b *postgresSamplesBatch) Commit() error {
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (b *postgresSamplesBatch) Rollback() error {
	if b.done {
		return nil
	}
	return b.tx.Rollback()
}
