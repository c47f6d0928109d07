package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
		TranslateError:       true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestCostRecordRepository_FindByKey(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	rows := sqlmock.NewRows([]string{"id", "list_title", "ndc_code", "plant", "rmc", "cogs", "version", "created_at", "updated_at"}).
		AddRow("rec-001", "MIS_Upload_File", "ABC123", "P1", "12.5", nil, 2, time.Now(), time.Now())
	mock.ExpectQuery(`SELECT \* FROM "cost_records" WHERE list_title = \$1 AND ndc_code = \$2`).
		WillReturnRows(rows)

	records, err := repo.FindByKey(context.Background(), "MIS_Upload_File", "ABC123")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "rec-001", rec.ID)
	assert.Equal(t, "ABC123", rec.NDCCode)
	assert.Equal(t, "P1", rec.Plant)
	assert.Equal(t, 2, rec.Version)
	require.True(t, rec.RMC.Valid)
	assert.Equal(t, "12.5", rec.RMC.Decimal.String())
	assert.False(t, rec.COGS.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_FindByKeyNoMatch(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "cost_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	records, err := repo.FindByKey(context.Background(), "MIS_Upload_File", "MISSING")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCostRecordRepository_FindByKeyError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "cost_records"`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.FindByKey(context.Background(), "MIS_Upload_File", "ABC123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find cost record ABC123")
}

func TestCostRecordRepository_GetRevisionHistory(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	first := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "record_id", "version", "version_label", "created_at", "ndc_code"}).
		AddRow("v-1", "rec-001", 1, "1.0", first, "ABC123").
		AddRow("v-2", "rec-001", 2, "2.0", first.Add(time.Hour), "ABC123")
	mock.ExpectQuery(`FROM "cost_record_versions" JOIN cost_records ON`).
		WillReturnRows(rows)

	versions, err := repo.GetRevisionHistory(context.Background(), "MIS_Upload_File", "rec-001")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0", versions[0].VersionLabel)
	assert.Equal(t, "2.0", versions[1].VersionLabel)
	assert.True(t, versions[0].CreatedAt.Before(versions[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_ListKeys(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	mock.ExpectQuery(`SELECT .*ndc_code.* FROM "cost_records" WHERE list_title = \$1 AND ndc_code ILIKE \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"ndc_code"}).AddRow("ABC123").AddRow("XABC9"))

	keys, err := repo.ListKeys(context.Background(), "MIS_Upload_File", "abc", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC123", "XABC9"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// versionArgs expects one argument per cost_record_versions column, in insert order.
// Columns not named in want match anything.
func versionArgs(t *testing.T, want map[string]driver.Value) []driver.Value {
	t.Helper()
	s, err := schema.Parse(&entity.CostRecordVersion{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	args := make([]driver.Value, 0, len(s.DBNames))
	for _, name := range s.DBNames {
		if v, ok := want[name]; ok {
			args = append(args, v)
			continue
		}
		args = append(args, sqlmock.AnyArg())
	}
	return args
}

func TestCostRecordRepository_UpdateByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	created := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "cost_records" WHERE id = \$1 AND list_title = \$2 ORDER BY .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "list_title", "ndc_code", "plant", "version", "created_at", "updated_at"}).
			AddRow("rec-001", "MIS_Upload_File", "ABC123", "P1", 1, created, created))
	mock.ExpectExec(`UPDATE "cost_records" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "cost_record_versions"`).
		WithArgs(versionArgs(t, map[string]driver.Value{
			"record_id":     "rec-001",
			"version":       2,
			"version_label": "2.0",
			"ndc_code":      "ABC123",
			"plant":         "P9",
		})...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// the stored key wins over the one carried in the fields
	marker, err := repo.UpdateByID(context.Background(), "MIS_Upload_File", "rec-001", entity.CostRecordFields{
		NDCCode: "abc123",
		Plant:   "P9",
		RMC:     decimal.NewNullDecimal(decimal.RequireFromString("3.25")),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, marker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_UpdateByIDNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "cost_records" WHERE id = \$1 AND list_title = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	marker, err := repo.UpdateByID(context.Background(), "MIS_Upload_File", "gone", entity.CostRecordFields{NDCCode: "ABC123"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, marker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_InsertDuplicateKey(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "cost_records"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	record, err := repo.Insert(context.Background(), "MIS_Upload_File", entity.CostRecordFields{NDCCode: "ABC123"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_Insert(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCostRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "cost_records"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "cost_record_versions"`).
		WithArgs(versionArgs(t, map[string]driver.Value{
			"version":       1,
			"version_label": "1.0",
			"ndc_code":      "ABC123",
		})...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := repo.Insert(context.Background(), "MIS_Upload_File", entity.CostRecordFields{NDCCode: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, 1, record.Version)
	assert.Len(t, record.ID, 32)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `AB\_1\%`, escapeLike("AB_1%"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
}
