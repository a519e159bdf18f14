// Package postgres keeps records and attachments in two key/value tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

type Store struct {
	db     *sql.DB
	getter *trmsql.CtxGetter
	trm    *manager.Manager
	logger logger.Logger
}

func New(db *sql.DB, getter *trmsql.CtxGetter, trm *manager.Manager, logger logger.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil dependency: database")
	}
	if getter == nil {
		return nil, errors.New("nil dependency: transaction getter")
	}
	if trm == nil {
		return nil, errors.New("nil dependency: transaction manager")
	}

	return &Store{db: db, getter: getter, trm: trm, logger: logger}, nil
}

var _ storage.Store = (*Store)(nil)

// Migrate creates the tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	const blobs = `
		CREATE TABLE IF NOT EXISTS blobs (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`
	const attachments = `
		CREATE TABLE IF NOT EXISTS attachments (
			key          TEXT PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL,
			data         BYTEA NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);`

	return s.trm.Do(ctx, func(ctx context.Context) error {
		for _, query := range []string{blobs, attachments} {
			if _, err := s.getter.DefaultTrOrDB(ctx, s.db).ExecContext(ctx, query); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const query = "SELECT value FROM blobs WHERE key = $1"

	var value []byte

	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, classify(err)
	}

	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO blobs (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();`

	_, err := s.getter.DefaultTrOrDB(ctx, s.db).ExecContext(ctx, query, key, value)
	if err != nil {
		return classify(err)
	}

	return nil
}

// Delete removes the key from both tables in one transaction.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.trm.Do(ctx, func(ctx context.Context) error {
		for _, query := range []string{
			"DELETE FROM blobs WHERE key = $1",
			"DELETE FROM attachments WHERE key = $1",
		} {
			if _, err := s.getter.DefaultTrOrDB(ctx, s.db).ExecContext(ctx, query, key); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	const query = "SELECT key FROM blobs WHERE left(key, length($1)) = $1 ORDER BY key"

	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, classify(err)
	}

	defer func() {
		if err = rows.Close(); err != nil {
			s.logger.Errorf("close rows: %s", err)
		}
	}()

	keys := make([]string, 0)

	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	// Rows.Err will report the last error encountered by Rows.Scan.
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *Store) Upload(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	const query = `
		INSERT INTO attachments (key, name, content_type, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			content_type = EXCLUDED.content_type,
			data = EXCLUDED.data,
			updated_at = now();`

	_, err := s.getter.DefaultTrOrDB(ctx, s.db).
		ExecContext(ctx, query, key, a.Name, a.ContentType, a.Data)
	if err != nil {
		return "", classify(err)
	}

	return storage.AttachmentPath(key), nil
}

func (s *Store) UploadNew(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	const query = `
		INSERT INTO attachments (key, name, content_type, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING;`

	res, err := s.getter.DefaultTrOrDB(ctx, s.db).
		ExecContext(ctx, query, key, a.Name, a.ContentType, a.Data)
	if err != nil {
		return "", classify(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", errs.ErrAlreadyExists
	}

	return storage.AttachmentPath(key), nil
}

func (s *Store) Download(ctx context.Context, key string) (*storage.Attachment, error) {
	const query = "SELECT name, content_type, data FROM attachments WHERE key = $1"

	a := new(storage.Attachment)

	err := s.db.QueryRowContext(ctx, query, key).Scan(&a.Name, &a.ContentType, &a.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, classify(err)
	}

	return a, nil
}

// classify adds a hint for errors an operator can act on.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UndefinedTable:
			return fmt.Errorf("schema is not migrated: %w", err)
		case pgerrcode.IsConnectionException(pgErr.Code):
			return fmt.Errorf("connection lost: %w", err)
		}
	}
	return err
}
