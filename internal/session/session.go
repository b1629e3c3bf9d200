// Package session はログイン済みセッションの発行・参照・破棄を提供します。
//
// ブラウザには署名付きCookieでセッションIDだけを渡し、ユーザー名や権限などの
// 実体はサーバー側の Registry に保持します。ログアウト時に Registry から削除する
// ことで、古いCookieを再送されても認証済みとして扱われません。
package session

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrExpired はログインからの最大有効期間を過ぎたことを表します。
	ErrExpired = errors.New("session expired")
	// ErrIdleTimeout は無操作時間が上限を超えたことを表します。
	ErrIdleTimeout = errors.New("session idle timeout")
)

// Record はサーバー側に保存するセッションの実体です。
type Record struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Authorities  []string  `json:"authorities"`
	CSRFToken    string    `json:"csrfToken,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// HasAuthority は指定した権限を保持しているかを返します。
func (r *Record) HasAuthority(authority string) bool {
	return slices.Contains(r.Authorities, authority)
}

// Registry はセッションIDごとに原子的な作成・参照・更新・削除を提供します。
// Get は該当なしの場合 (nil, nil) を返します。
type Registry interface {
	Create(ctx context.Context, record *Record, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Record, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
