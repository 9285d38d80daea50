package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"radiotest-data/internal/domain"
	"radiotest-data/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stationSample(clientID, station, date, sampleTime, commState string, lat, lon float64) *domain.LocationSample {
	return &domain.LocationSample{
		ServerID:   "srv-" + clientID,
		ClientID:   clientID,
		Lat:        lat,
		Lon:        lon,
		SampleDate: date,
		SampleTime: sampleTime,
		Provider:   "FUSED",
		Freq:       "7.100",
		RfPwr:      "25W",
		CommState:  commState,
		User:       "operator1",
		Station:    station,
		DeviceID:   "device-1",
		ReceivedAt: time.Now(),
	}
}

func seedSamples(t *testing.T, repo *repository.MemorySamplesRepo, samples ...*domain.LocationSample) {
	t.Helper()
	batch, err := repo.BeginBatch(context.Background())
	require.NoError(t, err)
	for _, s := range samples {
		require.NoError(t, batch.Insert(context.Background(), s))
	}
	require.NoError(t, batch.Commit())
}

func newTestReportService() (ReportService, *repository.MemorySamplesRepo) {
	repo := repository.NewMemorySamplesRepo()
	return NewReportService(repo, zap.NewNop()), repo
}

func TestMatchSamples_FirstMatchWins(t *testing.T) {
	s1 := []*domain.LocationSample{
		stationSample("a", "ALPHA", "2025-08-20", "10:00:00", "Loud and Clear", 10, 20),
	}
	// Both B and C qualify within 120s; the scan must take B and stop.
	s2 := []*domain.LocationSample{
		stationSample("b", "BRAVO", "2025-08-20", "10:01:00", "Noisy", 10.1, 20.1),
		stationSample("c", "BRAVO", "2025-08-20", "10:01:30", "Noisy", 10.2, 20.2),
	}

	pairs := matchSamples(s1, s2, 120)
	require.Len(t, pairs, 1)
	assert.Equal(t, 1, pairs[0].Serial)
	assert.Equal(t, 10.1, pairs[0].LatStation2)
	assert.Equal(t, 20.1, pairs[0].LonStation2)
}

func TestMatchSamples_CommFieldsComeFromStation1(t *testing.T) {
	s1 := []*domain.LocationSample{
		stationSample("a", "ALPHA", "2025-08-20", "10:00:00", "Readable Noisy", 10, 20),
	}
	s2 := []*domain.LocationSample{
		stationSample("b", "BRAVO", "2025-08-20", "10:00:30", "Loud and Clear", 11, 21),
	}

	pairs := matchSamples(s1, s2, 120)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Readable Noisy", pairs[0].CommState)
	assert.Equal(t, 2, pairs[0].CommScore)
}

func TestMatchSamples_DateMustMatch(t *testing.T) {
	s1 := []*domain.LocationSample{
		stationSample("a", "ALPHA", "2025-08-20", "10:00:00", "Noisy", 10, 20),
	}
	s2 := []*domain.LocationSample{
		stationSample("b", "BRAVO", "2025-08-21", "10:00:00", "Noisy", 10, 20),
	}
	assert.Empty(t, matchSamples(s1, s2, 120))
}

func TestMatchSamples_ToleranceBoundary(t *testing.T) {
	s1 := []*domain.LocationSample{
		stationSample("a", "ALPHA", "2025-08-20", "10:00:00", "Noisy", 10, 20),
	}
	atLimit := []*domain.LocationSample{
		stationSample("b", "BRAVO", "2025-08-20", "10:02:00", "Noisy", 10, 20),
	}
	beyond := []*domain.LocationSample{
		stationSample("c", "BRAVO", "2025-08-20", "10:02:01", "Noisy", 10, 20),
	}

	assert.Len(t, matchSamples(s1, atLimit, 120), 1, "diff == tolerance matches")
	assert.Empty(t, matchSamples(s1, beyond, 120), "diff > tolerance does not")
}

func TestMatchSamples_MalformedTimeNeverMatches(t *testing.T) {
	s1 := []*domain.LocationSample{
		stationSample("a", "ALPHA", "2025-08-20", "garbage", "Noisy", 10, 20),
	}
	s2 := []*domain.LocationSample{
		stationSample("b", "BRAVO", "2025-08-20", "00:00:00", "Noisy", 10, 20),
	}
	// Even an absurdly large tolerance cannot admit an unparsable time.
	assert.Empty(t, matchSamples(s1, s2, 1<<30))
}

func TestMatchSamples_Station2Reusable(t *testing.T) {
	s1 := []*domain.LocationSample{
		stationSample("a1", "ALPHA", "2025-08-20", "10:00:00", "Noisy", 10, 20),
		stationSample("a2", "ALPHA", "2025-08-20", "10:00:30", "Noisy", 10, 20),
	}
	s2 := []*domain.LocationSample{
		stationSample("b", "BRAVO", "2025-08-20", "10:01:00", "Noisy", 11, 21),
	}

	pairs := matchSamples(s1, s2, 120)
	require.Len(t, pairs, 2)
	assert.Equal(t, []int{1, 2}, []int{pairs[0].Serial, pairs[1].Serial})
	assert.Equal(t, pairs[0].LatStation2, pairs[1].LatStation2)
}

func TestGenerateStationReport_InvalidDate(t *testing.T) {
	svc, _ := newTestReportService()

	_, err := svc.GenerateStationReport(context.Background(), StationReportRequest{
		StartDate: "20-08-2025", EndDate: "2025-08-21", Station1: "ALPHA", Station2: "BRAVO",
	})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestGenerateStationReport_NoDataVsNoMatch(t *testing.T) {
	svc, repo := newTestReportService()
	ctx := context.Background()
	req := StationReportRequest{
		StartDate: "2025-08-20", EndDate: "2025-08-20", Station1: "ALPHA", Station2: "BRAVO",
	}

	// No samples at all: ErrNoData.
	_, err := svc.GenerateStationReport(ctx, req)
	assert.ErrorIs(t, err, ErrNoData)

	// One side empty: still ErrNoData.
	seedSamples(t, repo,
		stationSample("a", "ALPHA", "2025-08-20", "10:00:00", "Noisy", 10, 20))
	_, err = svc.GenerateStationReport(ctx, req)
	assert.ErrorIs(t, err, ErrNoData)

	// Both sides populated but out of window: the distinct no-match outcome,
	// with the time lists attached for diagnosis.
	seedSamples(t, repo,
		stationSample("b", "BRAVO", "2025-08-20", "18:00:00", "Noisy", 11, 21))
	_, err = svc.GenerateStationReport(ctx, req)
	var noMatch *NoMatchError
	require.ErrorAs(t, err, &noMatch)
	assert.NotErrorIs(t, err, ErrNoData)
	assert.Equal(t, []string{"10:00:00"}, noMatch.Station1Times)
	assert.Equal(t, []string{"18:00:00"}, noMatch.Station2Times)
}

func TestGenerateStationReport_SuccessRate(t *testing.T) {
	svc, repo := newTestReportService()

	seedSamples(t, repo,
		stationSample("a1", "ALPHA", "2025-08-20", "10:00:00", "Loud and Clear", 10, 20),
		stationSample("a2", "ALPHA", "2025-08-20", "11:00:00", "Noisy", 10, 20),
		stationSample("b1", "BRAVO", "2025-08-20", "10:00:30", "Noisy", 11, 21),
		stationSample("b2", "BRAVO", "2025-08-20", "11:00:30", "Noisy", 11, 21),
	)

	report, err := svc.GenerateStationReport(context.Background(), StationReportRequest{
		StartDate: "2025-08-20", EndDate: "2025-08-20", Station1: "ALPHA", Station2: "BRAVO",
	})
	require.NoError(t, err)
	require.Len(t, report.Pairs, 2)
	// Scores {3, 1}: one success out of two.
	assert.Equal(t, 1, report.SuccessCount)
	assert.InDelta(t, 50.0, report.SuccessRate(), 0.001)
}

func TestGenerateStationReport_Filename(t *testing.T) {
	svc, repo := newTestReportService()

	seedSamples(t, repo,
		stationSample("a", "Base/Süd", "2025-08-20", "10:00:00", "Noisy", 10, 20),
		stationSample("b", "Hill*Top", "2025-08-20", "10:00:30", "Noisy", 11, 21),
	)

	report, err := svc.GenerateStationReport(context.Background(), StationReportRequest{
		StartDate: "2025-08-20", EndDate: "2025-08-21", Station1: "Base/Süd", Station2: "Hill*Top",
	})
	require.NoError(t, err)
	assert.Equal(t, "radio_report_Base_S_d_Hill_Top_2025-08-20_2025-08-21.xlsx", report.Filename)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "station 1", SafeFilename("station 1"), "plain ASCII passes through")
	assert.Equal(t, "a_b_c", SafeFilename(`a/b\c`))
	assert.Equal(t, "_", SafeFilename("北京"), "a non-ASCII run collapses to one underscore")
	assert.Equal(t, "q_", SafeFilename(`q?`))
}

func TestErrorsAreDistinguishable(t *testing.T) {
	var noMatch *NoMatchError
	err := error(&NoMatchError{Station1: "A", Station2: "B", ToleranceSec: 120})
	assert.True(t, errors.As(err, &noMatch))
	assert.False(t, errors.Is(err, ErrNoData))
	assert.Contains(t, err.Error(), "120-second window")
}
