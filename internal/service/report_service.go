package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"radiotest-data/internal/domain"
	"radiotest-data/internal/geo"
	"radiotest-data/internal/repository"

	"go.uber.org/zap"
)

// DefaultToleranceSeconds 配对时间窗口（秒）
const DefaultToleranceSeconds = 120

// ErrInvalidDate covers malformed report date parameters (400-equivalent).
var ErrInvalidDate = errors.New("invalid date format")

// ErrNoData: the query found no source samples at all for the requested
// stations/range. Distinct from NoMatchError, where data exists on both
// sides but nothing pairs up.
var ErrNoData = errors.New("no data found")

// NoMatchError: both stations have samples in range but no pair falls inside
// the tolerance window. Carries the time lists so an analyst can see why.
type NoMatchError struct {
	Station1      string
	Station2      string
	ToleranceSec  int
	Station1Times []string
	Station2Times []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no matching time pairs found within %d-second window. Station1 times: %v, Station2 times: %v",
		e.ToleranceSec, e.Station1Times, e.Station2Times)
}

// MatchedPair 两站一次在时间窗口内的对应测量（derived, not persisted）
// Frequency, RF power and comm state always reflect the station-1 reading.
type MatchedPair struct {
	Serial      int     `json:"serial"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Frequency   string  `json:"frequency"`
	RfPower     string  `json:"rf_power"`
	LatStation1 float64 `json:"lat_station1"`
	LonStation1 float64 `json:"lon_station1"`
	LatStation2 float64 `json:"lat_station2"`
	LonStation2 float64 `json:"lon_station2"`
	Distance    float64 `json:"distance"`
	CommState   string  `json:"comm_state"`
	CommScore   int     `json:"comm_state_value"`
}

// StationReportRequest 站点对报告请求
type StationReportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Station1  string `json:"station1"`
	Station2  string `json:"station2"`
}

// StationReport 站点对报告结果
type StationReport struct {
	Station1     string        `json:"station1"`
	Station2     string        `json:"station2"`
	StartDate    string        `json:"start_date"`
	EndDate      string        `json:"end_date"`
	Pairs        []MatchedPair `json:"matched_pairs"`
	SuccessCount int           `json:"successful_communications"`
	Filename     string        `json:"filename"`
}

// SuccessRate 成功率（百分比），score ∈ {2,3} 计为成功
// Only called with at least one pair; the matcher returns NoMatchError first.
func (r *StationReport) SuccessRate() float64 {
	return float64(r.SuccessCount) / float64(len(r.Pairs)) * 100
}

// ReportService 站点配对报告服务接口
type ReportService interface {
	GenerateStationReport(ctx context.Context, req StationReportRequest) (*StationReport, error)
}

type reportService struct {
	repo   repository.SamplesRepository
	logger *zap.Logger
}

// NewReportService 创建 ReportService 实例
func NewReportService(repo repository.SamplesRepository, logger *zap.Logger) ReportService {
	return &reportService{repo: repo, logger: logger}
}

func (s *reportService) GenerateStationReport(ctx context.Context, req StationReportRequest) (*StationReport, error) {
	s.logger.Info("Generating station report",
		zap.String("station1", req.Station1),
		zap.String("station2", req.Station2),
		zap.String("start_date", req.StartDate),
		zap.String("end_date", req.EndDate),
	)

	if _, err := time.Parse("2006-01-02", req.StartDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if _, err := time.Parse("2006-01-02", req.EndDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}

	samples, err := s.repo.ListForStations(ctx, req.Station1, req.Station2, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load station samples: %w", err)
	}
	s.logger.Info("Station report query finished", zap.Int("total_samples", len(samples)))

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w for the specified criteria", ErrNoData)
	}

	var station1Samples, station2Samples []*domain.LocationSample
	for _, sample := range samples {
		switch sample.Station {
		case req.Station1:
			station1Samples = append(station1Samples, sample)
		case req.Station2:
			station2Samples = append(station2Samples, sample)
		}
	}
	if len(station1Samples) == 0 || len(station2Samples) == 0 {
		return nil, fmt.Errorf("%w for stations: %s and/or %s", ErrNoData, req.Station1, req.Station2)
	}

	pairs := matchSamples(station1Samples, station2Samples, DefaultToleranceSeconds)
	s.logger.Info("Time matching finished", zap.Int("matched_pairs", len(pairs)))

	if len(pairs) == 0 {
		return nil, &NoMatchError{
			Station1:      req.Station1,
			Station2:      req.Station2,
			ToleranceSec:  DefaultToleranceSeconds,
			Station1Times: sampleTimes(station1Samples),
			Station2Times: sampleTimes(station2Samples),
		}
	}

	successful := 0
	for _, p := range pairs {
		if p.CommScore == 2 || p.CommScore == 3 {
			successful++
		}
	}

	return &StationReport{
		Station1:     req.Station1,
		Station2:     req.Station2,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Pairs:        pairs,
		SuccessCount: successful,
		Filename: fmt.Sprintf("radio_report_%s_%s_%s_%s.xlsx",
			SafeFilename(req.Station1), SafeFilename(req.Station2), req.StartDate, req.EndDate),
	}, nil
}

// matchSamples pairs station-1 samples against station-2 samples. For each
// station-1 sample the scan takes the FIRST station-2 sample on the same
// date within tolerance and stops: first-match-wins, not best-match, and
// station-2 samples may be reused. Order dependence is intentional, existing
// reports rely on the exact serial numbering it produces.
func matchSamples(station1, station2 []*domain.LocationSample, toleranceSec int) []MatchedPair {
	pairs := []MatchedPair{}
	for _, s1 := range station1 {
		for _, s2 := range station2 {
			if s1.SampleDate != s2.SampleDate {
				continue
			}
			diff, ok := geo.TimeDifference(s1.SampleTime, s2.SampleTime)
			if !ok || diff > toleranceSec {
				// !ok means unparsable time: never a match, any tolerance.
				continue
			}
			pairs = append(pairs, MatchedPair{
				Serial:      len(pairs) + 1,
				Date:        s1.SampleDate,
				Time:        s1.SampleTime,
				Frequency:   s1.Freq,
				RfPower:     s1.RfPwr,
				LatStation1: s1.Lat,
				LonStation1: s1.Lon,
				LatStation2: s2.Lat,
				LonStation2: s2.Lon,
				Distance:    geo.Haversine(s1.Lat, s1.Lon, s2.Lat, s2.Lon),
				CommState:   s1.CommState,
				CommScore:   geo.CommStateScore(s1.CommState),
			})
			break
		}
	}
	return pairs
}

func sampleTimes(samples []*domain.LocationSample) []string {
	times := make([]string, 0, len(samples))
	for _, s := range samples {
		times = append(times, s.SampleTime)
	}
	return times
}

var (
	nonASCIIRe       = regexp.MustCompile(`[^\x00-\x7F]+`)
	filenameHazardRe = regexp.MustCompile(`[<>:"/\\|?*]`)
)

// SafeFilename replaces non-ASCII runs and filesystem-hazard characters so
// station names can appear in a download filename.
func SafeFilename(text string) string {
	text = nonASCIIRe.ReplaceAllString(text, "_")
	return filenameHazardRe.ReplaceAllString(text, "_")
}
