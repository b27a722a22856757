package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/oakcellar/pricewatch-cli/internal/db"
	"github.com/oakcellar/pricewatch-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bottles (
	id        BIGSERIAL PRIMARY KEY,
	full_name TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bottles_full_name ON bottles (LOWER(full_name));

CREATE TABLE IF NOT EXISTS stores (
	id          BIGSERIAL PRIMARY KEY,
	key         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	country     TEXT NOT NULL DEFAULT 'us',
	last_run_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS store_prices (
	id         BIGSERIAL PRIMARY KEY,
	store_id   BIGINT NOT NULL REFERENCES stores(id),
	bottle_id  BIGINT REFERENCES bottles(id),
	name       TEXT NOT NULL,
	price      BIGINT NOT NULL,
	currency   TEXT NOT NULL DEFAULT 'usd',
	url        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (store_id, name)
);

CREATE INDEX IF NOT EXISTS idx_store_prices_store_id ON store_prices(store_id);
CREATE INDEX IF NOT EXISTS idx_store_prices_bottle_id ON store_prices(bottle_id);
CREATE INDEX IF NOT EXISTS idx_store_prices_updated_at ON store_prices(updated_at);

CREATE TABLE IF NOT EXISTS store_price_histories (
	id       BIGSERIAL PRIMARY KEY,
	price_id BIGINT NOT NULL REFERENCES store_prices(id),
	price    BIGINT NOT NULL,
	date     DATE NOT NULL DEFAULT CURRENT_DATE,
	UNIQUE (price_id, date)
);

CREATE INDEX IF NOT EXISTS idx_store_price_histories_price_id ON store_price_histories(price_id);
CREATE INDEX IF NOT EXISTS idx_store_price_histories_date ON store_price_histories(date);

INSERT INTO stores (key, name) VALUES
	('astorwines', 'Astor Wines & Spirits'),
	('woodencork', 'Wooden Cork')
ON CONFLICT (key) DO NOTHING;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, key, name, country, last_run_at FROM stores ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		var st model.Store
		if err := rows.Scan(&st.ID, &st.Key, &st.Name, &st.Country, &st.LastRunAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		stores = append(stores, st)
	}
	return stores, eris.Wrap(rows.Err(), "postgres: list stores rows")
}

func (s *PostgresStore) GetStoreByKey(ctx context.Context, key string) (*model.Store, error) {
	var st model.Store
	err := s.pool.QueryRow(ctx,
		`SELECT id, key, name, country, last_run_at FROM stores WHERE key = $1`, key,
	).Scan(&st.ID, &st.Key, &st.Name, &st.Country, &st.LastRunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get store %s", key)
	}
	return &st, nil
}

func (s *PostgresStore) MarkStoreRun(ctx context.Context, storeID int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stores SET last_run_at = $1 WHERE id = $2`, at.UTC(), storeID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark store run %d", storeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: store not found: %d", storeID)
	}
	return nil
}

// UpsertStorePrice writes one submitted record: the current price row is
// upserted on (store_id, name) and a history snapshot for today is inserted,
// all inside a single transaction. A second submission on the same calendar
// date updates the current row and leaves the history untouched.
func (s *PostgresStore) UpsertStorePrice(ctx context.Context, storeID int64, sub model.PriceSubmission) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var bottleID *int64
	var id int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM bottles WHERE LOWER(full_name) = LOWER($1)`, sub.Name,
	).Scan(&id)
	switch {
	case err == nil:
		bottleID = &id
	case errors.Is(err, pgx.ErrNoRows):
		// No catalog match; the price is still recorded.
	default:
		return eris.Wrapf(err, "postgres: match bottle %q", sub.Name)
	}

	var priceID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO store_prices (store_id, bottle_id, name, price, url)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (store_id, name) DO UPDATE SET
			price = EXCLUDED.price,
			url = EXCLUDED.url,
			bottle_id = EXCLUDED.bottle_id,
			updated_at = now()
		 RETURNING id`,
		storeID, bottleID, sub.Name, sub.Price, sub.URL,
	).Scan(&priceID)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert price %q", sub.Name)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO store_price_histories (price_id, price, date)
		 VALUES ($1, $2, CURRENT_DATE)
		 ON CONFLICT (price_id, date) DO NOTHING`,
		priceID, sub.Price,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert history %q", sub.Name)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
}

func (s *PostgresStore) ListStorePrices(ctx context.Context, storeID int64, filter PriceFilter) ([]model.StorePrice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, store_id, bottle_id, name, price, currency, url, created_at, updated_at
		 FROM store_prices
		 WHERE store_id = $1
		 ORDER BY name
		 LIMIT $2 OFFSET $3`,
		storeID, limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list store prices")
	}
	defer rows.Close()

	var prices []model.StorePrice
	for rows.Next() {
		var p model.StorePrice
		if err := rows.Scan(&p.ID, &p.StoreID, &p.BottleID, &p.Name, &p.Price, &p.Currency, &p.URL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan store price")
		}
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "postgres: list store prices rows")
}

// ListPriceChanges returns prices updated within the past week whose current
// value diverges from a history snapshot taken earlier in the same week,
// ordered by absolute delta descending. Only prices matched to a catalog
// bottle participate.
func (s *PostgresStore) ListPriceChanges(ctx context.Context, filter PriceChangeFilter) ([]model.PriceChange, error) {
	query := `SELECT sp.id, sp.store_id, sp.bottle_id, sp.name, sp.price, sp.currency, sp.url, sp.created_at, sp.updated_at,
		st.id, st.key, st.name, st.country,
		b.id, b.full_name,
		h.id, h.price_id, h.price, h.date
	FROM store_prices sp
	JOIN stores st ON st.id = sp.store_id
	JOIN bottles b ON b.id = sp.bottle_id
	JOIN store_price_histories h ON h.price_id = sp.id
	WHERE sp.price != h.price
	  AND sp.updated_at > now() - interval '1 week'
	  AND h.date < DATE(sp.updated_at)
	  AND h.date > now() - interval '1 week'`
	args := []any{}
	argIdx := 1

	if filter.Query != "" {
		query += ` AND sp.name ILIKE '%' || $1 || '%'`
		args = append(args, filter.Query)
		argIdx++
	}

	query += ` ORDER BY ABS(h.price - sp.price) DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list price changes")
	}
	defer rows.Close()

	var changes []model.PriceChange
	for rows.Next() {
		var c model.PriceChange
		if err := rows.Scan(
			&c.ID, &c.StoreID, &c.BottleID, &c.Name, &c.Price, &c.Currency, &c.URL, &c.CreatedAt, &c.UpdatedAt,
			&c.Store.ID, &c.Store.Key, &c.Store.Name, &c.Store.Country,
			&c.Bottle.ID, &c.Bottle.FullName,
			&c.Previous.ID, &c.Previous.PriceID, &c.Previous.Price, &c.Previous.Date,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price change")
		}
		changes = append(changes, c)
	}
	return changes, eris.Wrap(rows.Err(), "postgres: list price changes rows")
}
