package repository

import (
	"context"
	"errors"

	"radiotest-data/internal/domain"
)

// ErrNotFound is returned when a lookup by identifier yields nothing.
// Distinct from an empty-but-valid result set.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert hits the client_id uniqueness
// constraint. The ingest engine converts it into idempotent success; it is
// never surfaced to callers raw.
var ErrDuplicate = errors.New("duplicate client_id")

// SampleFilters 样本查询过滤条件
type SampleFilters struct {
	DeviceID  string
	Station   string
	StartDate string // inclusive, YYYY-MM-DD
	EndDate   string // inclusive, YYYY-MM-DD
}

// SampleSummary 报表汇总统计
type SampleSummary struct {
	TotalSamples int      `json:"total_samples"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Frequencies  []string `json:"unique_frequencies"`
	DeviceCount  int      `json:"unique_devices"`
}

// SamplesRepository 位置样本仓储接口
type SamplesRepository interface {
	// BeginBatch opens the transactional scope for one bulk-ingest call.
	BeginBatch(ctx context.Context) (SamplesBatch, error)

	// FindByClientID returns ErrNotFound when no row exists.
	FindByClientID(ctx context.Context, clientID string) (*domain.LocationSample, error)

	// List returns samples ordered by received_at descending.
	List(ctx context.Context, filters SampleFilters, skip, limit int) ([]*domain.LocationSample, error)
	Count(ctx context.Context, filters SampleFilters) (int, error)

	// ListChronological returns all matching samples ordered by
	// sample_date then sample_time, uncapped. Export order for the CSV
	// report.
	ListChronological(ctx context.Context, filters SampleFilters) ([]*domain.LocationSample, error)

	// ListForStations returns both stations' samples in a date range,
	// ordered by sample_date then sample_time (the matcher's scan order).
	ListForStations(ctx context.Context, station1, station2, startDate, endDate string) ([]*domain.LocationSample, error)

	// ListForTrajectories returns samples ordered by sample_date, station,
	// device_id, captured_at_utc so grouping preserves capture order.
	ListForTrajectories(ctx context.Context, filters SampleFilters) ([]*domain.LocationSample, error)

	DistinctStations(ctx context.Context) ([]string, error)
	DistinctDevices(ctx context.Context) ([]string, error)
	DistinctDates(ctx context.Context) ([]string, error)

	Summary(ctx context.Context, deviceID string) (*SampleSummary, error)
}

// SamplesBatch is the unit of work for one ingest call: lookups and inserts
// inside it observe the same transaction, and Commit/Rollback close it.
// Rollback after a successful Commit is a no-op, so callers may defer it.
type SamplesBatch interface {
	FindByClientID(ctx context.Context, clientID string) (*domain.LocationSample, error)
	Insert(ctx context.Context, sample *domain.LocationSample) error
	Commit() error
	Rollback() error
}
