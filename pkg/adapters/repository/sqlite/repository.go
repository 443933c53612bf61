package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/repository/sqlite/migrations"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
	_ "modernc.org/sqlite" // Local SQLite driver
)

// SQLiteRepository owns the connection and implements the link store.
// Challenges, Sessions and Suspicious expose the other stores on the same db.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := driverFor(dbURL)

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db, driverName); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// NewWithDB wraps an already migrated connection.
func NewWithDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func driverFor(dbURL string) string {
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		return "libsql"
	}
	return "sqlite"
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB, driverName string) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())

	dialect := "sqlite3"
	if driverName == "libsql" {
		dialect = "turso"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Challenges() *ChallengeRepository {
	return &ChallengeRepository{db: r.db}
}

func (r *SQLiteRepository) Sessions() *SessionRepository {
	return &SessionRepository{db: r.db}
}

func (r *SQLiteRepository) Suspicious() *SuspiciousRepository {
	return &SuspiciousRepository{db: r.db}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Ensure interface compliance
var (
	_ ports.LinkRepository       = (*SQLiteRepository)(nil)
	_ ports.ChallengeRepository  = (*ChallengeRepository)(nil)
	_ ports.SessionRepository    = (*SessionRepository)(nil)
	_ ports.SuspiciousRepository = (*SuspiciousRepository)(nil)
)
