package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"radiotest-data/internal/domain"
	"radiotest-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxBatchSize 单次 bulk upload 的样本数量上限
const MaxBatchSize = 1000

// ErrBatchTooLarge rejects an oversize batch before any per-item processing.
var ErrBatchTooLarge = errors.New("too many samples")

// ErrTransaction signals a commit-phase infrastructure failure: the whole
// batch was rolled back and the caller must retry it in full.
var ErrTransaction = errors.New("transaction failed")

// IngestService 批量写入服务接口
type IngestService interface {
	// Ingest validates and idempotently commits one batch of samples for a
	// device. Per-item validation failures land in Rejected and do not
	// abort the batch; a commit failure aborts everything.
	Ingest(ctx context.Context, deviceID string, samples []domain.SampleInput) (*IngestResult, error)
}

// RejectedSample 单条被拒绝的样本及原因
type RejectedSample struct {
	ClientID string `json:"id"`
	Error    string `json:"error"`
}

// IngestResult 批量写入结果
type IngestResult struct {
	AcceptedIDs []string         `json:"synced_ids"`
	Rejected    []RejectedSample `json:"failed_samples,omitempty"`
}

type ingestService struct {
	repo   repository.SamplesRepository
	logger *zap.Logger

	// injection points for tests
	now   func() time.Time
	newID func() string
}

// NewIngestService 创建 IngestService 实例
func NewIngestService(repo repository.SamplesRepository, logger *zap.Logger) IngestService {
	return &ingestService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *ingestService) Ingest(ctx context.Context, deviceID string, samples []domain.SampleInput) (*IngestResult, error) {
	if len(samples) > MaxBatchSize {
		return nil, fmt.Errorf("%w: maximum %d per request, got %d", ErrBatchTooLarge, MaxBatchSize, len(samples))
	}

	batch, err := s.repo.BeginBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
	}
	defer batch.Rollback()

	result := &IngestResult{AcceptedIDs: []string{}}
	receivedAt := s.now().UTC()

	for i := range samples {
		in := &samples[i]

		if err := in.Validate(); err != nil {
			result.Rejected = append(result.Rejected, RejectedSample{ClientID: in.ID, Error: err.Error()})
			continue
		}

		// Idempotency: a resubmitted client_id is success, not a duplicate row.
		if _, err := batch.FindByClientID(ctx, in.ID); err == nil {
			s.logger.Warn("Sample already exists, skipping insert", zap.String("client_id", in.ID))
			result.AcceptedIDs = append(result.AcceptedIDs, in.ID)
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
		}

		sample := in.ToSample(s.newID(), deviceID, receivedAt)
		if err := batch.Insert(ctx, sample); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// Lost a concurrent race on the same client_id; still success.
				result.AcceptedIDs = append(result.AcceptedIDs, in.ID)
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
		}
		result.AcceptedIDs = append(result.AcceptedIDs, in.ID)
	}

	if err := batch.Commit(); err != nil {
		s.logger.Error("Bulk insert transaction failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
	}

	s.logger.Info("Bulk insert completed",
		zap.String("device_id", deviceID),
		zap.Int("successful", len(result.AcceptedIDs)),
		zap.Int("failed", len(result.Rejected)),
	)
	return result, nil
}
