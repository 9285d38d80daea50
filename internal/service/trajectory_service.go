package service

import (
	"context"
	"fmt"
	"time"

	"radiotest-data/internal/domain"
	"radiotest-data/internal/repository"

	"go.uber.org/zap"
)

// TrajectoryPoint 轨迹中的一个坐标点
type TrajectoryPoint struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Station       string  `json:"station"`
	DeviceID      string  `json:"device_id"`
	SampleDate    string  `json:"sample_date"`
	SampleTime    string  `json:"sample_time"`
	CapturedAtUTC int64   `json:"captured_at_utc"`
	Accuracy      float64 `json:"accuracy"`
	Timestamp     string  `json:"timestamp"`
}

// Trajectory 一个 (station, device) 组合的有序坐标序列
type Trajectory struct {
	Station     string            `json:"station"`
	DeviceID    string            `json:"device_id"`
	Coordinates []TrajectoryPoint `json:"coordinates"`
}

// TrajectoriesResult 轨迹查询结果
type TrajectoriesResult struct {
	Trajectories     []*Trajectory
	TotalCoordinates int
}

// TrajectoryRequest 轨迹查询参数（Date 或 StartDate/EndDate 二选一）
type TrajectoryRequest struct {
	Date      string
	StartDate string
	EndDate   string
	Station   string
	DeviceID  string
}

// TrajectoryService 轨迹聚合服务接口
type TrajectoryService interface {
	// Trajectories groups one date's samples into per-(station, device)
	// coordinate sequences. Empty date defaults to today.
	Trajectories(ctx context.Context, req TrajectoryRequest) (*TrajectoriesResult, error)

	// TrajectoriesRange is the date-range variant.
	TrajectoriesRange(ctx context.Context, req TrajectoryRequest) (*TrajectoriesResult, error)
}

type trajectoryService struct {
	repo   repository.SamplesRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewTrajectoryService 创建 TrajectoryService 实例
func NewTrajectoryService(repo repository.SamplesRepository, logger *zap.Logger) TrajectoryService {
	return &trajectoryService{repo: repo, logger: logger, now: time.Now}
}

func (s *trajectoryService) Trajectories(ctx context.Context, req TrajectoryRequest) (*TrajectoriesResult, error) {
	date := req.Date
	if date == "" {
		date = s.now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}

	samples, err := s.repo.ListForTrajectories(ctx, repository.SampleFilters{
		StartDate: date,
		EndDate:   date,
		Station:   req.Station,
		DeviceID:  req.DeviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load trajectory samples: %w", err)
	}
	return s.group(samples), nil
}

func (s *trajectoryService) TrajectoriesRange(ctx context.Context, req TrajectoryRequest) (*TrajectoriesResult, error) {
	if _, err := time.Parse("2006-01-02", req.StartDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if _, err := time.Parse("2006-01-02", req.EndDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}

	samples, err := s.repo.ListForTrajectories(ctx, repository.SampleFilters{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Station:   req.Station,
		DeviceID:  req.DeviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load trajectory samples: %w", err)
	}
	return s.group(samples), nil
}

// group buckets samples per station+device in input order. Two samples with
// the same station but different devices never merge.
func (s *trajectoryService) group(samples []*domain.LocationSample) *TrajectoriesResult {
	result := &TrajectoriesResult{Trajectories: []*Trajectory{}}
	byKey := map[string]*Trajectory{}

	for _, sample := range samples {
		key := sample.Station + "_" + sample.DeviceID
		traj, ok := byKey[key]
		if !ok {
			traj = &Trajectory{Station: sample.Station, DeviceID: sample.DeviceID}
			byKey[key] = traj
			result.Trajectories = append(result.Trajectories, traj)
		}

		// ISO timestamp from the sample's own date+time; fall back to the
		// raw concatenation when it does not parse.
		timestamp := sample.SampleDate + " " + sample.SampleTime
		if ts, err := time.Parse("2006-01-02 15:04:05", timestamp); err == nil {
			timestamp = ts.Format("2006-01-02T15:04:05")
		}

		traj.Coordinates = append(traj.Coordinates, TrajectoryPoint{
			Lat:           sample.Lat,
			Lng:           sample.Lon,
			Station:       sample.Station,
			DeviceID:      sample.DeviceID,
			SampleDate:    sample.SampleDate,
			SampleTime:    sample.SampleTime,
			CapturedAtUTC: sample.CapturedAtUTC,
			Accuracy:      sample.Acc,
			Timestamp:     timestamp,
		})
		result.TotalCoordinates++
	}
	return result
}
