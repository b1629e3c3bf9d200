// Package users はユーザーテーブルへのアクセスを提供します。
package users

import (
	"context"
	"errors"
)

// DefaultRole はロール未指定で作成したユーザーに付与されるロールです。
const DefaultRole = "USER"

var (
	// ErrNotFound はユーザー名に一致するレコードがないことを表します。
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists は同じユーザー名のレコードが既に存在することを表します。
	ErrAlreadyExists = errors.New("user already exists")
)

// User は users テーブルの1行です。PasswordHash は bcrypt ハッシュのみを保持します。
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// Loader はログイン時にユーザー名からユーザーを引くためのインターフェースです。
// ユーザー名は完全一致（大文字小文字を区別）で比較されます。
type Loader interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}
