package tourmapdal

import (
	"context"
	"errors"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
)

var (
	ErrNotFound = errors.New("cache entry not found")
)

// Entry is one cached, processed query result. Data is the serialised JSON payload.
type Entry struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

// CacheStore persists entries keyed by id. Put replaces any existing entry with the same id.
// Entries never expire, they are only removed by Delete or Purge.
type CacheStore interface {
	Name() string
	// Get returns ErrNotFound (wrapped) if there is no entry for the id
	Get(ctx context.Context, id string) (*Entry, errorsx.Error)
	Put(ctx context.Context, entry *Entry) errorsx.Error
	Delete(ctx context.Context, id string) errorsx.Error
	// Purge deletes all entries and returns how many there were
	Purge(ctx context.Context) (int64, errorsx.Error)
	Count(ctx context.Context) (int64, errorsx.Error)
	// ListIDs returns up to limit ids, in no particular order
	ListIDs(ctx context.Context, limit int) ([]string, errorsx.Error)
	Close() error
}

type DBFileType string

const (
	DBFileTypeSQLite     DBFileType = "sqlite"
	DBFileTypePostgresql DBFileType = "postgresql"
	DBFileTypeRedis      DBFileType = "redis"
)

type DBFileConnectionURL struct {
	Type           DBFileType
	ConnectionPath string
}

func (u DBFileConnectionURL) String() string {
	return string(u.Type) + ConnectionPathSeparator + u.ConnectionPath
}

const ConnectionPathSeparator = "://"

func ParseDBConnFilePath(str string) (DBFileConnectionURL, errorsx.Error) {
	idx := strings.Index(str, ConnectionPathSeparator)
	if idx < 0 {
		return DBFileConnectionURL{}, errorsx.Errorf("couldn't find connection path separator %q in cache connection string", ConnectionPathSeparator)
	}

	connURL := DBFileConnectionURL{
		Type:           DBFileType(str[:idx]),
		ConnectionPath: str[idx+len(ConnectionPathSeparator):],
	}

	switch connURL.Type {
	case DBFileTypeSQLite, DBFileTypePostgresql, DBFileTypeRedis:
	default:
		return DBFileConnectionURL{}, errorsx.Errorf("unknown cache store type %q (expected one of sqlite, postgresql, redis)", connURL.Type)
	}

	if connURL.ConnectionPath == "" {
		return DBFileConnectionURL{}, errorsx.Errorf("empty connection path in %q", str)
	}

	return connURL, nil
}

// OpenCacheStore opens (and, for the SQL stores, migrates) the store the connection URL points to
func OpenCacheStore(ctx context.Context, connURL DBFileConnectionURL) (CacheStore, errorsx.Error) {
	switch connURL.Type {
	case DBFileTypeSQLite:
		return NewSQLiteStore(ctx, connURL.ConnectionPath)
	case DBFileTypePostgresql:
		return NewPostgresqlStore(ctx, connURL.ConnectionPath)
	case DBFileTypeRedis:
		return NewRedisStore(ctx, connURL.ConnectionPath)
	default:
		return nil, errorsx.Errorf("unknown cache store type %q", connURL.Type)
	}
}
