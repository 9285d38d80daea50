package repository

import (
	"context"
	"sort"
	"sync"

	"radiotest-data/internal/domain"
)

// MemorySamplesRepo: 用于 DB 未就绪时的联测（以及 service 层单元测试）
// Batch semantics mirror the Postgres implementation: inserts stage in the
// batch and only become visible on Commit.
type MemorySamplesRepo struct {
	mu      sync.RWMutex
	samples []*domain.LocationSample
	byID    map[string]*domain.LocationSample // client_id -> sample

	// FailCommit forces the next Commit to fail, for exercising the
	// transaction-failure path in tests.
	FailCommit error
}

func NewMemorySamplesRepo() *MemorySamplesRepo {
	return &MemorySamplesRepo{byID: map[string]*domain.LocationSample{}}
}

var _ SamplesRepository = (*MemorySamplesRepo)(nil)

func (r *MemorySamplesRepo) BeginBatch(ctx context.Context) (SamplesBatch, error) {
	return &memorySamplesBatch{repo: r, staged: map[string]*domain.LocationSample{}}, nil
}

func (r *MemorySamplesRepo) FindByClientID(ctx context.Context, clientID string) (*domain.LocationSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byID[clientID]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

func (r *MemorySamplesRepo) matching(filters SampleFilters) []*domain.LocationSample {
	out := []*domain.LocationSample{}
	for _, s := range r.samples {
		if filters.DeviceID != "" && s.DeviceID != filters.DeviceID {
			continue
		}
		if filters.Station != "" && s.Station != filters.Station {
			continue
		}
		if filters.StartDate != "" && s.SampleDate < filters.StartDate {
			continue
		}
		if filters.EndDate != "" && s.SampleDate > filters.EndDate {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (r *MemorySamplesRepo) List(ctx context.Context, filters SampleFilters, skip, limit int) ([]*domain.LocationSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.matching(filters)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if skip >= len(out) {
		return []*domain.LocationSample{}, nil
	}
	out = out[skip:]
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySamplesRepo) ListChronological(ctx context.Context, filters SampleFilters) ([]*domain.LocationSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.matching(filters)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SampleDate != out[j].SampleDate {
			return out[i].SampleDate < out[j].SampleDate
		}
		return out[i].SampleTime < out[j].SampleTime
	})
	return out, nil
}

func (r *MemorySamplesRepo) Count(ctx context.Context, filters SampleFilters) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matching(filters)), nil
}

func (r *MemorySamplesRepo) ListForStations(ctx context.Context, station1, station2, startDate, endDate string) ([]*domain.LocationSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.LocationSample{}
	for _, s := range r.samples {
		if s.SampleDate < startDate || s.SampleDate > endDate {
			continue
		}
		if s.Station != station1 && s.Station != station2 {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SampleDate != out[j].SampleDate {
			return out[i].SampleDate < out[j].SampleDate
		}
		return out[i].SampleTime < out[j].SampleTime
	})
	return out, nil
}

func (r *MemorySamplesRepo) ListForTrajectories(ctx context.Context, filters SampleFilters) ([]*domain.LocationSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.matching(filters)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SampleDate != b.SampleDate {
			return a.SampleDate < b.SampleDate
		}
		if a.Station != b.Station {
			return a.Station < b.Station
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.CapturedAtUTC < b.CapturedAtUTC
	})
	return out, nil
}

func (r *MemorySamplesRepo) distinct(pick func(*domain.LocationSample) string, desc bool) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range r.samples {
		v := pick(s)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i] > out[j]
		}
		return out[i] < out[j]
	})
	return out
}

func (r *MemorySamplesRepo) DistinctStations(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.distinct(func(s *domain.LocationSample) string { return s.Station }, false), nil
}

func (r *MemorySamplesRepo) DistinctDevices(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.distinct(func(s *domain.LocationSample) string { return s.DeviceID }, false), nil
}

func (r *MemorySamplesRepo) DistinctDates(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.distinct(func(s *domain.LocationSample) string { return s.SampleDate }, true), nil
}

func (r *MemorySamplesRepo) Summary(ctx context.Context, deviceID string) (*SampleSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := &SampleSummary{}
	sum.TotalSamples = len(r.matching(SampleFilters{DeviceID: deviceID}))
	dates := r.distinct(func(s *domain.LocationSample) string { return s.SampleDate }, false)
	if len(dates) > 0 {
		sum.StartDate = dates[0]
		sum.EndDate = dates[len(dates)-1]
	}
	sum.Frequencies = r.distinct(func(s *domain.LocationSample) string { return s.Freq }, false)
	sum.DeviceCount = len(r.distinct(func(s *domain.LocationSample) string { return s.DeviceID }, false))
	return sum, nil
}

type memorySamplesBatch struct {
	repo   *MemorySamplesRepo
	order  []string
	staged map[string]*domain.LocationSample
	done   bool
}

func (b *memorySamplesBatch) FindByClientID(ctx context.Context, clientID string) (*domain.LocationSample, error) {
	if s, ok := b.staged[clientID]; ok {
		return s, nil
	}
	return b.repo.FindByClientID(ctx, clientID)
}

func (b *memorySamplesBatch) Insert(ctx context.Context, s *domain.LocationSample) error {
	if _, ok := b.staged[s.ClientID]; ok {
		return ErrDuplicate
	}
	if _, err := b.repo.FindByClientID(ctx, s.ClientID); err == nil {
		return ErrDuplicate
	}
	b.staged[s.ClientID] = s
	b.order = append(b.order, s.ClientID)
	return nil
}

func (b *memorySamplesBatch) Commit() error {
	b.done = true
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()

	if err := b.repo.FailCommit; err != nil {
		b.repo.FailCommit = nil
		return err
	}
	for _, id := range b.order {
		s := b.staged[id]
		// Same race outcome as the DB unique index: last committer loses.
		if _, ok := b.repo.byID[id]; ok {
			continue
		}
		b.repo.samples = append(b.repo.samples, s)
		b.repo.byID[id] = s
	}
	return nil
}

func (b *memorySamplesBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.staged = map[string]*domain.LocationSample{}
	b.order = nil
	return nil
}
