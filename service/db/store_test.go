package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(unix int64) *time.Time {
	t := time.Unix(unix, 0).UTC()
	return &t
}

func record(sig string, unix int64, typ, mint string, amount float64, dir string) Record {
	return Record{
		Signature:   sig,
		Timestamp:   ts(unix),
		Type:        typ,
		TokenMint:   mint,
		TokenAmount: amount,
		Direction:   dir,
		RawData:     json.RawMessage(`{"signature":"` + sig + `"}`),
	}
}

// runStoreSuite exercises the behavior both backends must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		store := newStore(t)

		latest, err := store.LatestSignature(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		balances, err := store.AggregateByMint(ctx)
		require.NoError(t, err)
		assert.Empty(t, balances)
	})

	t.Run("upsert is idempotent and first write wins", func(t *testing.T) {
		store := newStore(t)

		first := record("sigA", 1000, "TRANSFER", "SOL", 1.5, "in")
		n, err := store.UpsertMany(ctx, []Record{first})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		changed := first
		changed.Type = "SWAP"
		changed.TokenAmount = 99
		n, err = store.UpsertMany(ctx, []Record{changed, record("sigB", 2000, "SWAP", "SOL", 1, "out")})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := store.GetTransaction(ctx, "sigA")
		require.NoError(t, err)
		assert.Equal(t, "TRANSFER", got.Type)
		assert.InDelta(t, 1.5, got.TokenAmount, 1e-9)
		assert.Equal(t, "in", got.Direction)
		require.NotNil(t, got.Timestamp)
		assert.True(t, got.Timestamp.Equal(*ts(1000)))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("duplicates within one batch insert once", func(t *testing.T) {
		store := newStore(t)

		r := record("sigDup", 1000, "TRANSFER", "SOL", 1, "in")
		n, err := store.UpsertMany(ctx, []Record{r, r})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("latest signature follows timestamp", func(t *testing.T) {
		store := newStore(t)

		_, err := store.UpsertMany(ctx, []Record{
			record("old", 1000, "TRANSFER", "SOL", 1, "in"),
			record("new", 3000, "TRANSFER", "SOL", 1, "in"),
			record("mid", 2000, "TRANSFER", "SOL", 1, "in"),
			{Signature: "undated", Type: "UNKNOWN", Direction: "none", RawData: json.RawMessage(`{}`)},
		})
		require.NoError(t, err)

		latest, err := store.LatestSignature(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "new", *latest)

		all, err := store.ScanAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "new", all[0].Signature)
		assert.Equal(t, "undated", all[3].Signature)
		assert.Nil(t, all[3].Timestamp)
	})

	t.Run("get missing transaction", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetTransaction(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		store := newStore(t)

		_, err := store.UpsertMany(ctx, []Record{
			record("s1", 1000, "SWAP", "SOL", 1, "out"),
			record("s2", 2000, "TRANSFER", "SOL", 1, "in"),
			record("s3", 3000, "SWAP", "SOL", 1, "out"),
		})
		require.NoError(t, err)

		swaps, err := store.ListTransactions(ctx, ListParams{Type: "SWAP"})
		require.NoError(t, err)
		require.Len(t, swaps, 2)
		assert.Equal(t, "s3", swaps[0].Signature)

		page, err := store.ListTransactions(ctx, ListParams{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "s2", page[0].Signature)

		counts, err := store.CountByType(ctx)
		require.NoError(t, err)
		assert.Equal(t, []TypeCount{{Type: "SWAP", Count: 2}, {Type: "TRANSFER", Count: 1}}, counts)
	})

	t.Run("aggregate signs by direction", func(t *testing.T) {
		store := newStore(t)

		_, err := store.UpsertMany(ctx, []Record{
			record("a", 1000, "TRANSFER", "SOL", 2, "in"),
			record("b", 2000, "TRANSFER", "SOL", 0.5, "out"),
			record("c", 3000, "SWAP", "MintX", 10, "in"),
			record("d", 4000, "SWAP", "MintX", 3, "none"),
		})
		require.NoError(t, err)

		balances, err := store.AggregateByMint(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 1.5, balances["SOL"], 1e-9)
		assert.InDelta(t, 10.0, balances["MintX"], 1e-9)
	})

	t.Run("raw data is preserved", func(t *testing.T) {
		store := newStore(t)

		r := record("raw", 1000, "TRANSFER", "SOL", 1, "in")
		r.RawData = json.RawMessage(`{"signature":"raw","nested":{"k":[1,2]}}`)
		_, err := store.UpsertMany(ctx, []Record{r})
		require.NoError(t, err)

		got, err := store.GetTransaction(ctx, "raw")
		require.NoError(t, err)
		assert.JSONEq(t, string(r.RawData), string(got.RawData))
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewTestSQLiteStore(t)
	})
}

func TestPostgresStore(t *testing.T) {
	SkipIfNoTestDB(t)

	runStoreSuite(t, func(t *testing.T) Store {
		store := NewTestStore(t)
		store.Cleanup(t)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	opener := NewOpener(Options{Path: t.TempDir() + "/data/tracker.db"}, nil, nil)

	err := WithStore(ctx, opener, func(s Store) error {
		_, ok := s.(*SQLiteStore)
		assert.True(t, ok)
		_, err := s.UpsertMany(ctx, []Record{record("x", 1, "TRANSFER", "SOL", 1, "in")})
		return err
	})
	require.NoError(t, err)

	// The data survives reopening.
	err = WithStore(ctx, opener, func(s Store) error {
		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		return nil
	})
	require.NoError(t, err)
}
