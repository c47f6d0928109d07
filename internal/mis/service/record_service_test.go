package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/bitfantasy/nimo-mis/internal/mis/repository"
	"github.com/bitfantasy/nimo-mis/internal/mis/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testList = "MIS_Upload_File"

func costFields(key, plant string) entity.CostRecordFields {
	return entity.CostRecordFields{
		NDCCode: key,
		Plant:   plant,
		RMC:     decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
	}
}

func TestRecordService_UpsertCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryRecordStore()
	svc := NewRecordService(store, testList, nil)

	first, err := svc.Upsert(ctx, costFields("ABC123", "P1"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, first.Action)
	assert.Equal(t, 1, first.RevisionMarker)

	second, err := svc.Upsert(ctx, costFields("ABC123", "P2"))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, second.Action)
	assert.Equal(t, first.RecordID, second.RecordID)
	assert.Equal(t, 2, second.RevisionMarker)

	assert.Equal(t, 1, store.Count(), "same key twice yields one record")
	records, err := store.FindByKey(ctx, testList, "ABC123")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].Plant)

	history, err := store.GetRevisionHistory(ctx, testList, first.RecordID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "1.0", history[0].VersionLabel)
	assert.Equal(t, "2.0", history[1].VersionLabel)
}

func TestRecordService_UpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryRecordStore()
	svc := NewRecordService(store, testList, nil)

	fields := costFields("RT-1", "P9")
	fields.UpdatedDate = "15/01/2024"
	_, err := svc.Upsert(ctx, fields)
	require.NoError(t, err)

	records, err := store.FindByKey(ctx, testList, "RT-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fields, records[0].CostRecordFields)
}

func TestRecordService_UpsertBlankKey(t *testing.T) {
	svc := NewRecordService(testutil.NewMemoryRecordStore(), testList, nil)
	_, err := svc.Upsert(context.Background(), costFields("  ", "P1"))

	var verr *RowValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRecordService_UpsertRetriesLostInsertRace(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryRecordStore()
	svc := NewRecordService(store, testList, nil)

	// another writer creates the record between our lookup and insert
	store.OnInsert = func(fields entity.CostRecordFields) error {
		store.OnInsert = nil
		store.Seed(testList, costFields(fields.NDCCode, "other-writer"))
		return repository.ErrDuplicateKey
	}

	result, err := svc.Upsert(ctx, costFields("RACE1", "P1"))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, result.Action)
	assert.Equal(t, 2, result.RevisionMarker)

	records, _ := store.FindByKey(ctx, testList, "RACE1")
	require.Len(t, records, 1)
	assert.Equal(t, "P1", records[0].Plant)
}

func TestRecordService_UpsertFailure(t *testing.T) {
	store := testutil.NewMemoryRecordStore()
	svc := NewRecordService(store, testList, nil)
	boom := errors.New("store unavailable")
	store.OnFind = func(string) error { return boom }

	_, err := svc.Upsert(context.Background(), costFields("ABC123", "P1"))

	var uerr *UpsertError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "ABC123", uerr.Key)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Count())
}

func TestRecordService_UpsertPicksFirstOfDuplicates(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryRecordStore()
	older := store.Seed(testList, costFields("DUP", "A"))
	store.Seed(testList, costFields("DUP", "B"))
	svc := NewRecordService(store, testList, nil)

	result, err := svc.Upsert(ctx, costFields("DUP", "C"))
	require.NoError(t, err)
	assert.Equal(t, older.ID, result.RecordID)
	assert.Equal(t, ActionUpdated, result.Action)
}
