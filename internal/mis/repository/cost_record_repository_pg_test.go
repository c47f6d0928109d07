package repository_test

import (
	"context"
	"testing"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/bitfantasy/nimo-mis/internal/mis/repository"
	"github.com/bitfantasy/nimo-mis/internal/mis/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listTitle = "MIS_Upload_File"

func costFields(key, plant, rmc string) entity.CostRecordFields {
	return entity.CostRecordFields{
		NDCCode:     key,
		Plant:       plant,
		Description: "Tablet 10mg",
		RMC:         decimal.NewNullDecimal(decimal.RequireFromString(rmc)),
		UpdatedDate: "15/01/2024",
	}
}

func TestCostRecordRepository_PostgresRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewCostRecordRepository(db)
	ctx := context.Background()

	inserted, err := repo.Insert(ctx, listTitle, costFields("ABC123", "P1", "12.5"))
	require.NoError(t, err)
	assert.Equal(t, 1, inserted.Version)

	found, err := repo.FindByKey(ctx, listTitle, "ABC123")
	require.NoError(t, err)
	require.Len(t, found, 1)
	got := found[0]
	assert.Equal(t, inserted.ID, got.ID)
	assert.Equal(t, "P1", got.Plant)
	assert.Equal(t, "Tablet 10mg", got.Description)
	assert.Equal(t, "15/01/2024", got.UpdatedDate)
	require.True(t, got.RMC.Valid)
	assert.True(t, got.RMC.Decimal.Equal(decimal.RequireFromString("12.5")), got.RMC.Decimal.String())
	assert.False(t, got.COGS.Valid)

	// the same row submitted again is an update of the one record
	marker, err := repo.UpdateByID(ctx, listTitle, got.ID, costFields("ABC123", "P1", "12.5"))
	require.NoError(t, err)
	assert.Equal(t, 2, marker)

	found, err = repo.FindByKey(ctx, listTitle, "ABC123")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 2, found[0].Version)

	history, err := repo.GetRevisionHistory(ctx, listTitle, got.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "1.0", history[0].VersionLabel)
	assert.Equal(t, "2.0", history[1].VersionLabel)
	assert.Equal(t, "ABC123", history[1].NDCCode)

	keys, err := repo.ListKeys(ctx, listTitle, "bc1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC123"}, keys)
}

func TestCostRecordRepository_PostgresDuplicateKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewCostRecordRepository(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, listTitle, costFields("ABC123", "P1", "1"))
	require.NoError(t, err)

	_, err = repo.Insert(ctx, listTitle, costFields("ABC123", "P2", "2"))
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)

	_, err = repo.UpdateByID(ctx, listTitle, "00000000000000000000000000000000", costFields("ABC123", "P1", "1"))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
