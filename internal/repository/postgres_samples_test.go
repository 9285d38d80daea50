package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"radiotest-data/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresSamplesRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresSamplesRepo(db)
	return db, mock, repo
}

func sampleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"server_id", "client_id", "lat", "lon", "acc",
		"sample_date", "sample_time", "captured_at_utc",
		"provider", "freq", "rf_pwr", "comm_state", "user", "station",
		"device_id", "sync", "attempt_count", "last_error", "synced_at_utc",
		"received_at", "processed",
	})
}

func TestFindByClientID_Found(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sampleRows().AddRow(
		"srv-1", "cli-1", -33.8688, 151.2093, 5.0,
		"2025-08-20", "10:00:00", int64(1755684000000),
		"FUSED", "7.100", "25W", "Loud and Clear", "operator1", "ALPHA",
		"device-1", false, 0, nil, nil,
		time.Now(), false,
	)
	mock.ExpectQuery(`SELECT(.|\s)*FROM location_samples WHERE client_id = \$1`).
		WithArgs("cli-1").
		WillReturnRows(rows)

	s, err := repo.FindByClientID(context.Background(), "cli-1")
	require.NoError(t, err)
	assert.Equal(t, "cli-1", s.ClientID)
	assert.Equal(t, "ALPHA", s.Station)
	assert.Equal(t, "device-1", s.DeviceID)
	assert.False(t, s.LastError.Valid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByClientID_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\s)*FROM location_samples WHERE client_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sampleRows())

	_, err := repo.FindByClientID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchInsert_CommitsOnce(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO location_samples`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch, err := repo.BeginBatch(context.Background())
	require.NoError(t, err)

	s := &domain.LocationSample{
		ServerID:   "srv-1",
		ClientID:   "cli-1",
		Lat:        10,
		Lon:        20,
		SampleDate: "2025-08-20",
		SampleTime: "10:00:00",
		Provider:   "FUSED",
		ReceivedAt: time.Now(),
	}
	require.NoError(t, batch.Insert(context.Background(), s))
	require.NoError(t, batch.Commit())
	// Rollback after commit must be a no-op (callers defer it).
	assert.NoError(t, batch.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchInsert_ConflictMapsToErrDuplicate(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	// ON CONFLICT (client_id) DO NOTHING reports zero rows affected.
	mock.ExpectExec(`INSERT INTO location_samples`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	batch, err := repo.BeginBatch(context.Background())
	require.NoError(t, err)

	err = batch.Insert(context.Background(), &domain.LocationSample{ClientID: "dup"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, batch.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_AppliesFiltersAndPagination(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sampleRows().AddRow(
		"srv-2", "cli-2", 1.0, 2.0, 0.0,
		"2025-08-21", "11:00:00", int64(0),
		"GPS_CHIP", "7.2", "5W", "Noisy", "op", "BRAVO",
		"device-2", true, 2, "timeout", int64(1755770400000),
		time.Now(), false,
	)
	mock.ExpectQuery(`SELECT(.|\s)*FROM location_samples WHERE device_id = \$1 ORDER BY received_at DESC OFFSET \$2 LIMIT \$3`).
		WithArgs("device-2", 0, 100).
		WillReturnRows(rows)

	samples, err := repo.List(context.Background(), SampleFilters{DeviceID: "device-2"}, 0, 100)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "BRAVO", samples[0].Station)
	assert.True(t, samples[0].LastError.Valid)
	assert.Equal(t, "timeout", samples[0].LastError.String)
	assert.True(t, samples[0].SyncedAtUTC.Valid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListChronological_OrdersByDateAndTimeUncapped(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sampleRows().AddRow(
		"srv-3", "cli-3", 1.0, 2.0, 0.0,
		"2025-08-20", "07:15:00", int64(0),
		"FUSED", "7.1", "25W", "Noisy", "op", "ALPHA",
		"device-3", false, 0, nil, nil,
		time.Now(), false,
	)
	mock.ExpectQuery(`SELECT(.|\s)*FROM location_samples WHERE device_id = \$1 ORDER BY sample_date, sample_time$`).
		WithArgs("device-3").
		WillReturnRows(rows)

	samples, err := repo.ListChronological(context.Background(), SampleFilters{DeviceID: "device-3"})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "07:15:00", samples[0].SampleTime)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForStations_OrdersByDateAndTime(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\s)*WHERE sample_date BETWEEN \$1 AND \$2(.|\s)*ORDER BY sample_date, sample_time`).
		WithArgs("2025-08-20", "2025-08-21", sqlmock.AnyArg()).
		WillReturnRows(sampleRows())

	samples, err := repo.ListForStations(context.Background(), "ALPHA", "BRAVO", "2025-08-20", "2025-08-21")
	require.NoError(t, err)
	assert.Empty(t, samples)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistinctStations(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"station"}).AddRow("ALPHA").AddRow("BRAVO")
	mock.ExpectQuery(`SELECT DISTINCT station FROM location_samples ORDER BY station`).
		WillReturnRows(rows)

	stations, err := repo.DistinctStations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ALPHA", "BRAVO"}, stations)

	assert.NoError(t, mock.ExpectationsWereMet())
}
