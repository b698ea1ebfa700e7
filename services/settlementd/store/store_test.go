package store

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"invokeledger/core/events"
	"invokeledger/native/common"
	"invokeledger/services/settlementd/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func TestRegistryOccurrencesAndResults(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(setupTestDB(t))

	occ, err := reg.Occurrence(ctx, 1, 3)
	require.NoError(t, err)
	require.False(t, occ.Performed())

	want := common.Occurrence{Actor: addr(0xac), Fingerprint: [32]byte{0xde, 0xad}, Timestamp: 42}
	require.NoError(t, reg.RecordOccurrence(ctx, 1, 3, want))
	got, err := reg.Occurrence(ctx, 1, 3)
	require.NoError(t, err)
	require.Equal(t, want, got)

	want.Timestamp = 43
	require.NoError(t, reg.RecordOccurrence(ctx, 1, 3, want))
	got, err = reg.Occurrence(ctx, 1, 3)
	require.NoError(t, err)
	require.Equal(t, int64(43), got.Timestamp)

	require.Error(t, reg.RecordOccurrence(ctx, 1, 0, want))

	res, err := reg.Result(ctx, 1, 3)
	require.NoError(t, err)
	require.False(t, res.Recorded())
	require.NoError(t, reg.RecordResult(ctx, 1, 3, common.Result{Fingerprint: [32]byte{1}, Timestamp: 50}))
	res, err = reg.Result(ctx, 1, 3)
	require.NoError(t, err)
	require.True(t, res.Recorded())
}

func TestRegistryControllersFeedKeeperGate(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(setupTestDB(t))
	gate := common.KeeperGate{Registry: reg, Solvency: reg}
	keeper := addr(0xaa)

	_, err := gate.SolventKeeper(ctx, 7)
	require.ErrorIs(t, err, common.ErrNotOwnedBySolventKeeper)

	require.NoError(t, reg.SetController(ctx, 7, keeper, true))
	require.NoError(t, gate.RequireKeeper(ctx, 7, keeper))
	require.ErrorIs(t, gate.RequireKeeper(ctx, 7, addr(1)), common.ErrNotKeeper)

	require.NoError(t, reg.SetSolvent(ctx, 7, false))
	require.ErrorIs(t, gate.RequireKeeper(ctx, 7, keeper), common.ErrNotKeeper)
	require.Error(t, reg.SetSolvent(ctx, 8, false))

	require.NoError(t, reg.SetController(ctx, 7, reg.RegistryAddress(), true))
	controller, err := reg.ControllerOf(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, reg.RegistryAddress(), controller)
}

func TestArchiveAppendsAndLists(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	archive, err := NewArchive(db, nil)
	require.NoError(t, err)

	archive.Emit(events.TipPlaced{AssetID: 1, Amount: big.NewInt(10), PoolTotal: big.NewInt(10)})
	archive.Emit(events.EarningsWithdrawn{Ledger: "tips", Amount: big.NewInt(9)})
	archive.Emit(events.TipPlaced{AssetID: 2, Amount: big.NewInt(5), PoolTotal: big.NewInt(5)})

	all, err := archive.List(ctx, 0, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].Cursor)
	require.Contains(t, all[0].Attributes, `"amount":"10"`)

	tipsOnly, err := archive.List(ctx, 1, events.TypeTipPlaced, 10)
	require.NoError(t, err)
	require.Len(t, tipsOnly, 1)
	require.Equal(t, uint64(3), tipsOnly[0].Cursor)

	resumed, err := NewArchive(db, nil)
	require.NoError(t, err)
	row, err := resumed.Append(ctx, events.BankDeposited{Amount: big.NewInt(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(4), row.Cursor)
}
