package users

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx の database/sql ドライバー登録
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite の database/sql ドライバー登録
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Dialect は接続先データベースの種類です。
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDatabaseURL は DATABASE_URL から database/sql のドライバー名と DSN を決定します。
func ParseDatabaseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite path is empty")
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(databaseURL, "file:"), databaseURL == ":memory:":
		return DialectSQLite, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %q", databaseURL)
	}
}

// Open は DATABASE_URL に接続し、マイグレーションを適用した *sql.DB を返します。
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, "", err
	}

	var db *sql.DB
	switch dialect {
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
	case DialectSQLite:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, "", err
		}
		db, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return nil, "", fmt.Errorf("db open error: %w", err)
	}
	if dialect == DialectSQLite {
		// :memory: は接続ごとに別DBになるため1本に固定する
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("db ping error: %w", err)
	}

	if err := Migrate(ctx, db, dialect, logger); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("migration error: %w", err)
	}

	return db, dialect, nil
}

// Migrate は埋め込みのマイグレーションを適用します。
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) error {
	gooseDialect := "postgres"
	if dialect == DialectSQLite {
		gooseDialect = "sqlite3"
	}

	if logger != nil {
		goose.SetLogger(zap.NewStdLog(logger.Named("goose")))
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	return goose.UpContext(ctx, db, "migrations/"+string(dialect))
}

func ensureSQLiteDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create db parent directory: %w", err)
	}
	return nil
}
