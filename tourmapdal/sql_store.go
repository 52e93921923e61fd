package tourmapdal

import (
	"context"
	"database/sql"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const tilesSchema = `
CREATE TABLE IF NOT EXISTS tiles (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
)`

var _ CacheStore = &SQLStore{}

// SQLStore keeps entries in a single "tiles" table
type SQLStore struct {
	name string
	db   *sqlx.DB
}

// NewSQLiteStore opens the SQLite database file at path, creating it if needed
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, errorsx.Error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errorsx.Wrap(err, "path", path)
	}

	// one writer at a time, so concurrent upserts queue rather than failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, errorsx.Wrap(err, "path", path)
	}

	return newSQLStore(ctx, db, "sqlite database")
}

// NewPostgresqlStore connects to the PostgreSQL database. connStr is everything after "postgresql://".
func NewPostgresqlStore(ctx context.Context, connStr string) (*SQLStore, errorsx.Error) {
	db, err := sqlx.Open("postgres", "postgresql://"+connStr)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return newSQLStore(ctx, db, "postgresql database")
}

func newSQLStore(ctx context.Context, db *sqlx.DB, name string) (*SQLStore, errorsx.Error) {
	_, err := db.ExecContext(ctx, tilesSchema)
	if err != nil {
		db.Close()
		return nil, errorsx.Wrap(err, "store", name)
	}

	return &SQLStore{
		name: name,
		db:   db,
	}, nil
}

func (s *SQLStore) Name() string {
	return s.name
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Entry, errorsx.Error) {
	entry := new(Entry)
	err := s.db.GetContext(ctx, entry, s.db.Rebind(`SELECT id, data FROM tiles WHERE id = ?`), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errorsx.Wrap(ErrNotFound, "id", id)
		}
		return nil, errorsx.Wrap(err, "id", id)
	}

	return entry, nil
}

func (s *SQLStore) Put(ctx context.Context, entry *Entry) errorsx.Error {
	_, err := s.db.ExecContext(
		ctx,
		s.db.Rebind(`INSERT INTO tiles (id, data) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET data = excluded.data`),
		entry.ID,
		// stored as text, not as a blob/bytea
		string(entry.Data),
	)
	if err != nil {
		return errorsx.Wrap(err, "id", entry.ID)
	}

	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) errorsx.Error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tiles WHERE id = ?`), id)
	if err != nil {
		return errorsx.Wrap(err, "id", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errorsx.Wrap(err, "id", id)
	}

	if affected == 0 {
		return errorsx.Wrap(ErrNotFound, "id", id)
	}

	return nil
}

func (s *SQLStore) Purge(ctx context.Context) (int64, errorsx.Error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tiles`)
	if err != nil {
		return 0, errorsx.Wrap(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errorsx.Wrap(err)
	}

	return affected, nil
}

func (s *SQLStore) Count(ctx context.Context) (int64, errorsx.Error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM tiles`)
	if err != nil {
		return 0, errorsx.Wrap(err)
	}

	return count, nil
}

func (s *SQLStore) ListIDs(ctx context.Context, limit int) ([]string, errorsx.Error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`SELECT id FROM tiles ORDER BY id LIMIT ?`), limit)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return ids, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
