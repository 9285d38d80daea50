package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"radiotest-data/internal/domain"
	"radiotest-data/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validInput(id string) domain.SampleInput {
	return domain.SampleInput{
		ID:            id,
		Lat:           -33.8688,
		Lon:           151.2093,
		Acc:           5,
		SampleDate:    "2025-08-20",
		SampleTime:    "10:00:00",
		Freq:          "7.100",
		RfPwr:         "25W",
		CommState:     "Loud and Clear",
		User:          "operator1",
		Station:       "ALPHA",
		CapturedAtUTC: 1755684000000,
	}
}

func newTestIngest() (IngestService, *repository.MemorySamplesRepo) {
	repo := repository.NewMemorySamplesRepo()
	return NewIngestService(repo, zap.NewNop()), repo
}

func TestIngest_AcceptsValidBatch(t *testing.T) {
	svc, repo := newTestIngest()

	result, err := svc.Ingest(context.Background(), "device-1", []domain.SampleInput{
		validInput("a"), validInput("b"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result.AcceptedIDs)
	assert.Empty(t, result.Rejected)

	stored, err := repo.FindByClientID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "device-1", stored.DeviceID, "device_id comes from the caller, not the client")
	assert.NotEmpty(t, stored.ServerID)
	assert.False(t, stored.ReceivedAt.IsZero())
	assert.False(t, stored.Processed)
	assert.Equal(t, "FUSED", stored.Provider, "provider defaults to FUSED")
}

func TestIngest_Idempotent(t *testing.T) {
	svc, repo := newTestIngest()
	ctx := context.Background()

	first, err := svc.Ingest(ctx, "device-1", []domain.SampleInput{validInput("dup")})
	require.NoError(t, err)

	second, err := svc.Ingest(ctx, "device-1", []domain.SampleInput{validInput("dup")})
	require.NoError(t, err)

	assert.Equal(t, first.AcceptedIDs, second.AcceptedIDs)

	count, err := repo.Count(ctx, repository.SampleFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "resubmission must not create a second row")
}

func TestIngest_LatitudeBoundary(t *testing.T) {
	svc, _ := newTestIngest()

	onBoundary := validInput("edge")
	onBoundary.Lat = 90
	outOfRange := validInput("bad")
	outOfRange.Lat = 95

	result, err := svc.Ingest(context.Background(), "device-1", []domain.SampleInput{onBoundary, outOfRange})
	require.NoError(t, err)

	assert.Equal(t, []string{"edge"}, result.AcceptedIDs, "lat=90 is inclusive")
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "bad", result.Rejected[0].ClientID)
	assert.Contains(t, result.Rejected[0].Error, "lat")
}

func TestIngest_MalformedItemDoesNotAbortBatch(t *testing.T) {
	svc, _ := newTestIngest()

	badTime := validInput("bad-time")
	badTime.SampleTime = "10:00"
	badDate := validInput("bad-date")
	badDate.SampleDate = "20/08/2025"

	result, err := svc.Ingest(context.Background(), "device-1",
		[]domain.SampleInput{validInput("ok"), badTime, badDate})
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, result.AcceptedIDs)
	assert.Len(t, result.Rejected, 2)
}

func TestIngest_BatchSizeBoundary(t *testing.T) {
	svc, _ := newTestIngest()
	ctx := context.Background()

	atLimit := make([]domain.SampleInput, MaxBatchSize)
	for i := range atLimit {
		atLimit[i] = validInput(fmt.Sprintf("s-%d", i))
	}
	result, err := svc.Ingest(ctx, "device-1", atLimit)
	require.NoError(t, err)
	assert.Len(t, result.AcceptedIDs, MaxBatchSize)

	overLimit := append(atLimit, validInput("one-too-many"))
	_, err = svc.Ingest(ctx, "device-1", overLimit)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestIngest_CommitFailureRollsBackWholeBatch(t *testing.T) {
	svc, repo := newTestIngest()
	ctx := context.Background()

	repo.FailCommit = fmt.Errorf("connection reset")
	_, err := svc.Ingest(ctx, "device-1", []domain.SampleInput{validInput("x"), validInput("y")})
	assert.ErrorIs(t, err, ErrTransaction)

	count, err := repo.Count(ctx, repository.SampleFilters{})
	require.NoError(t, err)
	assert.Equal(t, 0, count, "nothing from the failed batch may persist")
}

func TestIngest_DuplicateRaceResolvesToSuccess(t *testing.T) {
	repo := repository.NewMemorySamplesRepo()
	svc := NewIngestService(repo, zap.NewNop())
	ctx := context.Background()

	// Simulate the loser of a concurrent race: the row lands between this
	// batch's lookup and its insert.
	batch, err := repo.BeginBatch(ctx)
	require.NoError(t, err)
	winner := validInput("raced")
	require.NoError(t, batch.Insert(ctx, winner.ToSample("srv-raced", "device-2", time.Now())))
	require.NoError(t, batch.Commit())

	result, err := svc.Ingest(ctx, "device-1", []domain.SampleInput{validInput("raced")})
	require.NoError(t, err)
	assert.Equal(t, []string{"raced"}, result.AcceptedIDs)
	assert.Empty(t, result.Rejected)
}
