package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
)

// nextVersionExpr computes max(now, version+1) inside an UPDATE so the
// version bump happens in the same statement as the write.
const nextVersionExpr = "version = CASE WHEN version >= ? THEN version + 1 ELSE ? END"

// sqlDB is shared by the per-entity SQL stores.
type sqlDB struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStores returns stores backed by an already migrated database.
func NewSQLStores(db *sqlx.DB, now func() time.Time) *interfaces.Stores {
	if now == nil {
		now = time.Now
	}
	s := &sqlDB{db: db, now: now}
	return &interfaces.Stores{
		Applications:   &sqlApplications{s},
		Organizations:  &sqlOrganizations{s},
		Instances:      &sqlInstances{s},
		Scopes:         &sqlScopes{s},
		Services:       &sqlServices{s},
		Subscriptions:  &sqlSubscriptions{s},
		ACL:            &sqlACL{s},
		Credentials:    &sqlCredentials{s},
		Tokens:         &sqlTokens{s},
		Authorizations: &sqlAuthorizations{s},
		Hooks:          &sqlHooks{s},
	}
}

// OpenSQL connects to the database and applies the embedded migrations.
func OpenSQL(ctx context.Context, driver, dsn string, log *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite3 {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Database ready", "driver", driver)
	return db, nil
}

// Migrate brings the schema up to date.
func Migrate(db *sqlx.DB, driver string) error {
	source, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var target database.Driver
	switch driver {
	case DriverSQLite3:
		target, err = migratesqlite3.WithInstance(db.DB, &migratesqlite3.Config{})
	case DriverPostgres:
		target, err = migratepostgres.WithInstance(db.DB, &migratepostgres.Config{})
	default:
		return fmt.Errorf("unsupported sql driver: %s", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, target)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *sqlDB) version(previous int64) int64 {
	return interfaces.NextVersion(s.now(), previous)
}

// bumpArgs are the two arguments of nextVersionExpr.
func (s *sqlDB) bumpArgs() []any {
	now := s.now().UnixMicro()
	return []any{now, now}
}

// exec rebinds query for the driver, expanding slice arguments.
func (s *sqlDB) exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	query, args, err := s.expand(query, args...)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlDB) get(ctx context.Context, dest any, query string, args ...any) error {
	query, args, err := s.expand(query, args...)
	if err != nil {
		return err
	}
	return s.db.GetContext(ctx, dest, query, args...)
}

func (s *sqlDB) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	query, args, err := s.expand(query, args...)
	if err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, query, args...)
}

func (s *sqlDB) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.get(ctx, &n, query, args...)
	return n, err
}

func (s *sqlDB) expand(query string, args ...any) (string, []any, error) {
	if hasSlice(args) {
		var err error
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return "", nil, err
		}
	}
	return s.db.Rebind(query), args, nil
}

func (s *sqlDB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func hasSlice(args []any) bool {
	for _, a := range args {
		switch a.(type) {
		case []string, []int64:
			return true
		}
	}
	return false
}

// translate maps driver errors onto the store taxonomy.
func translate(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	if isUniqueViolation(err) {
		return conflict(kind, id)
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
