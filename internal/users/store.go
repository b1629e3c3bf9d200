package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

var placeholderRe = regexp.MustCompile(`\$\d+`)

// DBTX は *sql.DB と *sql.Tx の共通部分です。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore は Postgres / SQLite 上の users テーブルを扱います。
type SQLStore struct {
	db      DBTX
	dialect Dialect
}

// NewSQLStore は SQLStore を作成します。
func NewSQLStore(db DBTX, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// FindByUsername はユーザー名が完全一致するユーザーを返します。
// 見つからない場合は ErrNotFound を返します。
func (s *SQLStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	query :=
		`SELECT id, username, password_hash, role FROM users
		 WHERE username = $1
		 `

	user := &User{}
	err := s.db.QueryRowContext(ctx, s.rebind(query), username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// Create はユーザーを登録し、採番された ID を設定して返します。
func (s *SQLStore) Create(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, fmt.Errorf("user is nil")
	}
	if user.Username == "" || user.PasswordHash == "" {
		return nil, fmt.Errorf("username and password hash are required")
	}
	if user.Role == "" {
		user.Role = DefaultRole
	}

	query :=
		`INSERT INTO users (username, password_hash, role)
		 VALUES ($1, $2, $3)
		 RETURNING id
		 `

	err := s.db.QueryRowContext(ctx, s.rebind(query),
		user.Username, user.PasswordHash, user.Role).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// Delete はユーザー名に一致するユーザーを削除します。該当がなければ ErrNotFound を返します。
func (s *SQLStore) Delete(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE username = $1`), username)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rebind は SQLite 向けに $N プレースホルダを ? に置き換えます。
// 各クエリは引数を番号順に一度ずつしか使わない前提です。
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// 拡張リザルトコードが無効な接続では文言で判定する
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
