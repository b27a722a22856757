package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakcellar/pricewatch-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestGetStoreByKey(t *testing.T) {
	s, mock := newMockStore(t)

	lastRun := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, key, name, country, last_run_at FROM stores WHERE key = \$1`).
		WithArgs("astorwines").
		WillReturnRows(pgxmock.NewRows([]string{"id", "key", "name", "country", "last_run_at"}).
			AddRow(int64(1), "astorwines", "Astor Wines & Spirits", "us", &lastRun))

	st, err := s.GetStoreByKey(context.Background(), "astorwines")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(1), st.ID)
	assert.Equal(t, "Astor Wines & Spirits", st.Name)
	require.NotNil(t, st.LastRunAt)
	assert.True(t, lastRun.Equal(*st.LastRunAt))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStoreByKeyMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, key, name, country, last_run_at FROM stores WHERE key = \$1`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id", "key", "name", "country", "last_run_at"}))

	st, err := s.GetStoreByKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, st)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStoreRun(t *testing.T) {
	s, mock := newMockStore(t)

	at := time.Now()
	mock.ExpectExec(`UPDATE stores SET last_run_at = \$1 WHERE id = \$2`).
		WithArgs(at.UTC(), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkStoreRun(context.Background(), 3, at))

	mock.ExpectExec(`UPDATE stores SET last_run_at = \$1 WHERE id = \$2`).
		WithArgs(at.UTC(), int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkStoreRun(context.Background(), 99, at)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStorePriceMatchedBottle(t *testing.T) {
	s, mock := newMockStore(t)

	sub := model.PriceSubmission{
		Name:  "Eagle Rare 10 Year",
		Price: 4250,
		URL:   "https://shop.example.com/products/eagle-rare",
	}
	bottleID := int64(7)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM bottles WHERE LOWER\(full_name\) = LOWER\(\$1\)`).
		WithArgs(sub.Name).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(bottleID))
	mock.ExpectQuery(`INSERT INTO store_prices`).
		WithArgs(int64(1), &bottleID, sub.Name, sub.Price, sub.URL).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec(`INSERT INTO store_price_histories`).
		WithArgs(int64(42), sub.Price).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertStorePrice(context.Background(), 1, sub))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStorePriceUnmatchedBottle(t *testing.T) {
	s, mock := newMockStore(t)

	sub := model.PriceSubmission{
		Name:  "Obscure Bottling",
		Price: 9900,
		URL:   "https://shop.example.com/products/obscure",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM bottles WHERE LOWER\(full_name\) = LOWER\(\$1\)`).
		WithArgs(sub.Name).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO store_prices`).
		WithArgs(int64(1), (*int64)(nil), sub.Name, sub.Price, sub.URL).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(43)))
	mock.ExpectExec(`INSERT INTO store_price_histories`).
		WithArgs(int64(43), sub.Price).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertStorePrice(context.Background(), 1, sub))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStorePriceRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	sub := model.PriceSubmission{Name: "Broken", Price: 100, URL: "https://x"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM bottles WHERE LOWER\(full_name\) = LOWER\(\$1\)`).
		WithArgs(sub.Name).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO store_prices`).
		WithArgs(int64(1), (*int64)(nil), sub.Name, sub.Price, sub.URL).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := s.UpsertStorePrice(context.Background(), 1, sub)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func priceChangeRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "store_id", "bottle_id", "name", "price", "currency", "url", "created_at", "updated_at",
		"st_id", "st_key", "st_name", "st_country",
		"b_id", "b_full_name",
		"h_id", "h_price_id", "h_price", "h_date",
	})
}

func TestListPriceChanges(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	bottleID := int64(7)
	mock.ExpectQuery(`FROM store_prices sp`).
		WithArgs(100).
		WillReturnRows(priceChangeRows().AddRow(
			int64(42), int64(1), &bottleID, "Eagle Rare 10 Year", int64(4250), "usd", "https://x", now, now,
			int64(1), "astorwines", "Astor Wines & Spirits", "us",
			bottleID, "Eagle Rare 10 Year",
			int64(9), int64(42), int64(3900), now.AddDate(0, 0, -2),
		))

	changes, err := s.ListPriceChanges(context.Background(), PriceChangeFilter{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "astorwines", changes[0].Store.Key)
	assert.Equal(t, int64(3900), changes[0].Previous.Price)
	assert.Equal(t, int64(350), changes[0].Delta())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPriceChangesWithQueryAndPaging(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`sp\.name ILIKE`).
		WithArgs("eagle", 101, 100).
		WillReturnRows(priceChangeRows())

	changes, err := s.ListPriceChanges(context.Background(), PriceChangeFilter{
		Query:  "eagle",
		Limit:  101,
		Offset: 100,
	})
	require.NoError(t, err)
	assert.Empty(t, changes)

	assert.NoError(t, mock.ExpectationsWereMet())
}
