package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/oakcellar/pricewatch-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local development; production runs against Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// Timestamps must land in sqlite's text format so date() comparisons
	// in the price change query work.
	if !strings.Contains(dsn, "_time_format") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bottles (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	full_name TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bottles_full_name ON bottles (LOWER(full_name));

CREATE TABLE IF NOT EXISTS stores (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	key         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	country     TEXT NOT NULL DEFAULT 'us',
	last_run_at DATETIME
);

CREATE TABLE IF NOT EXISTS store_prices (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	store_id   INTEGER NOT NULL REFERENCES stores(id),
	bottle_id  INTEGER REFERENCES bottles(id),
	name       TEXT NOT NULL,
	price      INTEGER NOT NULL,
	currency   TEXT NOT NULL DEFAULT 'usd',
	url        TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (store_id, name)
);

CREATE INDEX IF NOT EXISTS idx_store_prices_store_id ON store_prices(store_id);
CREATE INDEX IF NOT EXISTS idx_store_prices_updated_at ON store_prices(updated_at);

CREATE TABLE IF NOT EXISTS store_price_histories (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	price_id INTEGER NOT NULL REFERENCES store_prices(id),
	price    INTEGER NOT NULL,
	date     TEXT NOT NULL,
	UNIQUE (price_id, date)
);

CREATE INDEX IF NOT EXISTS idx_store_price_histories_price_id ON store_price_histories(price_id);

INSERT INTO stores (key, name) VALUES
	('astorwines', 'Astor Wines & Spirits'),
	('woodencork', 'Wooden Cork')
ON CONFLICT (key) DO NOTHING;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, name, country, last_run_at FROM stores ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		st, err := scanSQLiteStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, *st)
	}
	return stores, eris.Wrap(rows.Err(), "sqlite: list stores rows")
}

func (s *SQLiteStore) GetStoreByKey(ctx context.Context, key string) (*model.Store, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, name, country, last_run_at FROM stores WHERE key = ?`, key)
	st, err := scanSQLiteStore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteStore(row scannable) (*model.Store, error) {
	var st model.Store
	var lastRun sql.NullTime
	if err := row.Scan(&st.ID, &st.Key, &st.Name, &st.Country, &lastRun); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan store")
	}
	if lastRun.Valid {
		t := lastRun.Time
		st.LastRunAt = &t
	}
	return &st, nil
}

func (s *SQLiteStore) MarkStoreRun(ctx context.Context, storeID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stores SET last_run_at = ? WHERE id = ?`, at.UTC(), storeID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark store run %d", storeID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: store not found: %d", storeID)
	}
	return nil
}

func (s *SQLiteStore) UpsertStorePrice(ctx context.Context, storeID int64, sub model.PriceSubmission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	var bottleID sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM bottles WHERE LOWER(full_name) = LOWER(?)`, sub.Name,
	).Scan(&bottleID.Int64)
	switch {
	case err == nil:
		bottleID.Valid = true
	case errors.Is(err, sql.ErrNoRows):
	default:
		return eris.Wrapf(err, "sqlite: match bottle %q", sub.Name)
	}

	now := time.Now().UTC()
	var priceID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO store_prices (store_id, bottle_id, name, price, url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (store_id, name) DO UPDATE SET
			price = excluded.price,
			url = excluded.url,
			bottle_id = excluded.bottle_id,
			updated_at = excluded.updated_at
		 RETURNING id`,
		storeID, bottleID, sub.Name, sub.Price, sub.URL, now, now,
	).Scan(&priceID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert price %q", sub.Name)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO store_price_histories (price_id, price, date)
		 VALUES (?, ?, ?)
		 ON CONFLICT (price_id, date) DO NOTHING`,
		priceID, sub.Price, now.Format("2006-01-02"),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert history %q", sub.Name)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) ListStorePrices(ctx context.Context, storeID int64, filter PriceFilter) ([]model.StorePrice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_id, bottle_id, name, price, currency, url, created_at, updated_at
		 FROM store_prices
		 WHERE store_id = ?
		 ORDER BY name
		 LIMIT ? OFFSET ?`,
		storeID, limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list store prices")
	}
	defer rows.Close()

	var prices []model.StorePrice
	for rows.Next() {
		var p model.StorePrice
		var bottleID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.StoreID, &bottleID, &p.Name, &p.Price, &p.Currency, &p.URL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store price")
		}
		if bottleID.Valid {
			id := bottleID.Int64
			p.BottleID = &id
		}
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "sqlite: list store prices rows")
}

func (s *SQLiteStore) ListPriceChanges(ctx context.Context, filter PriceChangeFilter) ([]model.PriceChange, error) {
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)

	query := `SELECT sp.id, sp.store_id, sp.bottle_id, sp.name, sp.price, sp.currency, sp.url, sp.created_at, sp.updated_at,
		st.id, st.key, st.name, st.country,
		b.id, b.full_name,
		h.id, h.price_id, h.price, h.date
	FROM store_prices sp
	JOIN stores st ON st.id = sp.store_id
	JOIN bottles b ON b.id = sp.bottle_id
	JOIN store_price_histories h ON h.price_id = sp.id
	WHERE sp.price != h.price
	  AND sp.updated_at > ?
	  AND h.date < date(sp.updated_at)
	  AND h.date > ?`
	args := []any{weekAgo, weekAgo.Format("2006-01-02")}

	if filter.Query != "" {
		query += ` AND LOWER(sp.name) LIKE '%' || LOWER(?) || '%'`
		args = append(args, filter.Query)
	}

	query += ` ORDER BY ABS(h.price - sp.price) DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list price changes")
	}
	defer rows.Close()

	var changes []model.PriceChange
	for rows.Next() {
		var c model.PriceChange
		var bottleID sql.NullInt64
		var histDate string
		if err := rows.Scan(
			&c.ID, &c.StoreID, &bottleID, &c.Name, &c.Price, &c.Currency, &c.URL, &c.CreatedAt, &c.UpdatedAt,
			&c.Store.ID, &c.Store.Key, &c.Store.Name, &c.Store.Country,
			&c.Bottle.ID, &c.Bottle.FullName,
			&c.Previous.ID, &c.Previous.PriceID, &c.Previous.Price, &histDate,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price change")
		}
		if bottleID.Valid {
			id := bottleID.Int64
			c.BottleID = &id
		}
		if d, err := time.Parse("2006-01-02", histDate); err == nil {
			c.Previous.Date = d
		}
		changes = append(changes, c)
	}
	return changes, eris.Wrap(rows.Err(), "sqlite: list price changes rows")
}
