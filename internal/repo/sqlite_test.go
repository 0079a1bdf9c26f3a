package repo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycrypt/migrations"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "orders.db"), logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.RunMigrations(ctx, migrations.SQLite()))
	return store
}

func testOrder(requestID, txHash string) Order {
	return Order{
		RequestID:          requestID,
		UserAddress:        "0xABCDEF0000000000000000000000000000000001",
		TransactionHash:    txHash,
		ServiceType:        ServiceAirtime,
		ServiceID:          "mtn",
		CustomerIdentifier: "08011111111",
		Phone:              "08011111111",
		AmountNaira:        decimal.MustParse("100"),
		CryptoUsed:         decimal.MustParse("0.066"),
		CryptoSymbol:       "USDC",
		ChainID:            8453,
		ChainName:          "Base",
		OnChainStatus:      OnChainConfirmed,
	}
}

func TestSQLiteStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.CreateOrder(ctx, testOrder("req-1", "0xAAA"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, VTpassPending, created.VTpassStatus)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", created.UserAddress)
	assert.Equal(t, "0xaaa", created.TransactionHash)
	assert.Equal(t, "100", created.AmountNaira.String())
	assert.Equal(t, "0.066", created.CryptoUsed.String())
	assert.Equal(t, int64(8453), created.ChainID)

	byID, err := store.FindOrderByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)
	assert.WithinDuration(t, created.CreatedAt, byID.CreatedAt, time.Microsecond)

	byHash, err := store.FindOrderByTransactionHash(ctx, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byHash.ID)

	_, err = store.FindOrderByRequestID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateOrder(ctx, testOrder("req-1", "0xaaa"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		order   Order
		wantKey string
	}{
		{name: "same request id", order: testOrder("req-1", "0xbbb"), wantKey: KeyRequestID},
		{name: "same transaction hash", order: testOrder("req-2", "0xAAA"), wantKey: KeyTransactionHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateOrder(ctx, tt.order)
			require.ErrorIs(t, err, ErrDuplicateKey)
			var dup *DuplicateKeyError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, tt.wantKey, dup.Key)
		})
	}
}

func TestSQLiteStore_CreateRejectsIncompleteOrder(t *testing.T) {
	store := newTestStore(t)

	order := testOrder("", "0xaaa")
	_, err := store.CreateOrder(context.Background(), order)
	assert.Error(t, err)

	order = testOrder("req-1", "0xaaa")
	order.AmountNaira = decimal.Zero
	_, err = store.CreateOrder(context.Background(), order)
	assert.Error(t, err)
}

func TestSQLiteStore_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, duplicates int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateOrder(ctx, testOrder("req-race", "0xrace"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateKey):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)
}

func TestSQLiteStore_UpdateOrderTransitions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateOrder(ctx, testOrder("req-1", "0xaaa"))
	require.NoError(t, err)

	updated, err := store.UpdateOrder(ctx, "req-1", OrderPatch{
		VTpassStatus:   VTpassSuccessful,
		VTpassResponse: map[string]any{"code": "000"},
	})
	require.NoError(t, err)
	assert.Equal(t, VTpassSuccessful, updated.VTpassStatus)
	assert.Equal(t, "000", updated.VTpassResponse["code"])
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	_, err = store.UpdateOrder(ctx, "req-1", OrderPatch{VTpassStatus: VTpassFailed})
	require.ErrorIs(t, err, ErrInvalidTransition)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, VTpassSuccessful, te.From)

	_, err = store.UpdateOrder(ctx, "req-1", OrderPatch{VTpassStatus: VTpassRefunded})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = store.UpdateOrder(ctx, "req-1", OrderPatch{VTpassStatus: VTpassPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = store.UpdateOrder(ctx, "missing", OrderPatch{VTpassStatus: VTpassFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_FailedOrderCanBeRefunded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateOrder(ctx, testOrder("req-1", "0xaaa"))
	require.NoError(t, err)

	_, err = store.UpdateOrder(ctx, "req-1", OrderPatch{
		VTpassStatus:   VTpassFailedAPICall,
		VTpassResponse: map[string]any{"error": "timeout"},
	})
	require.NoError(t, err)

	refunded, err := store.UpdateOrder(ctx, "req-1", OrderPatch{VTpassStatus: VTpassRefunded})
	require.NoError(t, err)
	assert.Equal(t, VTpassRefunded, refunded.VTpassStatus)
	assert.Equal(t, "timeout", refunded.VTpassResponse["error"], "patch without a response keeps the stored one")
}

func TestSQLiteStore_UpdateStoresElectricityDetails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	order := testOrder("req-1", "0xaaa")
	order.ServiceType = ServiceElectricity
	order.ServiceID = "ikeja-electric"
	order.VariationCode = "prepaid"
	_, err := store.CreateOrder(ctx, order)
	require.NoError(t, err)

	_, err = store.UpdateOrder(ctx, "req-1", OrderPatch{
		VTpassStatus: VTpassSuccessful,
		Electricity:  &ElectricityDetails{Token: "1234-5678", Units: "12.5", MeterType: "prepaid"},
	})
	require.NoError(t, err)

	got, err := store.FindOrderByRequestID(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, got.Electricity)
	assert.Equal(t, "1234-5678", got.Electricity.Token)
	assert.Equal(t, "12.5", got.Electricity.Units)
	assert.Equal(t, "prepaid", got.VariationCode)
}

func TestSQLiteStore_ListOrders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, amount := range []string{"100", "2500", "750"} {
		order := testOrder("req-"+amount, "0x"+amount)
		order.AmountNaira = decimal.MustParse(amount)
		if i == 1 {
			order.UserAddress = "0xother"
			order.ChainID = 42220
			order.ChainName = "Celo"
		}
		_, err := store.CreateOrder(ctx, order)
		require.NoError(t, err)
	}

	all, err := store.ListOrders(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 50, all.Limit)
	require.Len(t, all.Orders, 3)
	assert.Equal(t, "req-750", all.Orders[0].RequestID, "newest first by default")

	byAmount, err := store.ListOrders(ctx, ListFilter{SortBy: "amountNaira", Ascending: true})
	require.NoError(t, err)
	require.Len(t, byAmount.Orders, 3)
	assert.Equal(t, "req-100", byAmount.Orders[0].RequestID)
	assert.Equal(t, "req-2500", byAmount.Orders[2].RequestID)

	celo, err := store.ListOrders(ctx, ListFilter{ChainID: 42220})
	require.NoError(t, err)
	require.Len(t, celo.Orders, 1)
	assert.Equal(t, "req-2500", celo.Orders[0].RequestID)

	user, err := store.ListOrdersByUser(ctx, "0xABCDEF0000000000000000000000000000000001", ListFilter{Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), user.Total)
	assert.Equal(t, 2, user.Pages())
	require.Len(t, user.Orders, 1)
	assert.Equal(t, "req-100", user.Orders[0].RequestID)

	future, err := store.ListOrders(ctx, ListFilter{CreatedFrom: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future.Orders)
	assert.NotNil(t, future.Orders)
}

func TestSQLiteStore_BackfillChainInfo(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	legacy := testOrder("req-legacy", "0xlegacy")
	legacy.ChainID = 0
	legacy.ChainName = ""
	_, err := store.CreateOrder(ctx, legacy)
	require.NoError(t, err)
	_, err = store.CreateOrder(ctx, testOrder("req-new", "0xnew"))
	require.NoError(t, err)

	params := BackfillParams{Cutoff: time.Now().Add(time.Hour), ChainID: 8453, ChainName: "Base", DryRun: true}
	n, err := store.BackfillChainInfo(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.FindOrderByRequestID(ctx, "req-legacy")
	require.NoError(t, err)
	assert.Zero(t, got.ChainID, "dry run must not write")

	params.DryRun = false
	n, err = store.BackfillChainInfo(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = store.FindOrderByRequestID(ctx, "req-legacy")
	require.NoError(t, err)
	assert.Equal(t, int64(8453), got.ChainID)
	assert.Equal(t, "Base", got.ChainName)

	n, err = store.BackfillChainInfo(ctx, params)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RunMigrations(context.Background(), migrations.SQLite()))
}

func TestOpenSelectsSQLite(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := Open(ctx, OpenConfig{SQLitePath: filepath.Join(t.TempDir(), "open.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	assert.IsType(t, &SQLiteStore{}, store)

	require.NoError(t, Migrate(ctx, store))
	_, err = store.CreateOrder(ctx, testOrder("req-open", "0xopen"))
	require.NoError(t, err)

	_, err = Open(ctx, OpenConfig{}, logger)
	assert.Error(t, err)
}
