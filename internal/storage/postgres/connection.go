package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	trmcontext "github.com/avito-tech/go-transaction-manager/trm/v2/context"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	_ "github.com/jackc/pgx/v5/stdlib"
	sqldblogger "github.com/simukti/sqldb-logger"
)

// Open connects to the database, checks connectivity and migrates the schema.
// The caller owns the returned *sql.DB.
func Open(ctx context.Context, dsn string, logger logger.Logger) (*Store, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open the database: %w", err)
	}

	// Log every query to the database.
	db = sqldblogger.OpenDriver(dsn, db.Driver(), logger)

	// Check connectivity and DSN correctness.
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	// Create default transaction manager for database/sql package.
	trManager := manager.Must(
		trmsql.NewDefaultFactory(db),
		manager.WithCtxManager(trmcontext.DefaultManager),
	)

	store, err := New(db, trmsql.DefaultCtxGetter, trManager, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	if err = store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return store, db, nil
}
