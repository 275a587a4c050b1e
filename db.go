package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool" // Для объединения{pooling} Postgres
	"github.com/rs/zerolog/log"
)

// DB - capped-коллекция в таблице Postgres. Своих capped-таблиц в Postgres
// нет, поэтому каждая вставка вытесняет старые записи в своей транзакции.
type DB struct {
	pool     *pgxpool.Pool
	table    string // уже экранированное имя таблицы
	lockKey  string
	capacity Capacity
	newID    func() (ID, error)
}

func NewDB(ctx context.Context, dsn, collection string, capacity Capacity) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storageErr("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr("ping", err)
	}
	db := &DB{
		pool:     pool,
		table:    pgx.Identifier{collection}.Sanitize(),
		lockKey:  collection,
		capacity: capacity,
		newID:    newID,
	}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+db.table+` (
			seq        BIGSERIAL PRIMARY KEY,
			id         TEXT NOT NULL UNIQUE,
			doc        TEXT NOT NULL,
			size_bytes INTEGER NOT NULL
		)`)
	if err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Insert записывает документ и обрезает таблицу до лимитов. Advisory lock
// упорядочивает параллельные вставки.
func (db *DB) Insert(ctx context.Context, doc Document) (string, error) {
	id, err := db.newID()
	if err != nil {
		return "", storageErr("insert", err)
	}
	body, err := encodeRecord(Record{ID: id, Document: doc})
	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return "", storageErr("insert", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, db.lockKey); err != nil {
		return "", storageErr("insert", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO `+db.table+` (id, doc, size_bytes) VALUES ($1, $2, $3)`,
		RenderID(id), string(body), len(body))
	if err != nil {
		return "", storageErr("insert", err)
	}
	tag, err := tx.Exec(ctx, evictSQL(db.table, "$1", "$2"), db.capacity.MaxRecords, db.capacity.MaxSizeBytes)
	if err != nil {
		return "", storageErr("evict", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", storageErr("commit", err)
	}
	tx = nil
	if n := tag.RowsAffected(); n > 0 {
		log.Debug().Int64("evicted", n).Str("collection", db.lockKey).Msg("capped collection evicted oldest records")
	}
	return RenderID(id), nil
}

func (db *DB) List(ctx context.Context) ([]Record, error) {
	rows, err := db.pool.Query(ctx, `SELECT doc FROM `+db.table+` ORDER BY seq`)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, storageErr("list", err)
		}
		r, err := decodeRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return out, nil
}

func (db *DB) Get(ctx context.Context, id ID) (Record, error) {
	var doc string
	err := db.pool.QueryRow(ctx, `SELECT doc FROM `+db.table+` WHERE id = $1`, RenderID(id)).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s: %w", RenderID(id), ErrNotFound)
	}
	if err != nil {
		return Record{}, storageErr("get", err)
	}
	return decodeRecord([]byte(doc))
}

func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := db.pool.QueryRow(ctx, `SELECT count(*), COALESCE(sum(size_bytes), 0) FROM `+db.table).Scan(&st.Count, &st.Bytes)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	return st, nil
}
