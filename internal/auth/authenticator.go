package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yourusername/authgate/internal/users"
)

// AuthorityPrefix はロールから権限名を作るときの接頭辞です。
const AuthorityPrefix = "ROLE_"

// ErrInvalidCredentials はユーザー名またはパスワードが正しくないことを表します。
// ユーザーが存在しない場合もこのエラーに統一し、どちらが誤りかは区別しません。
var ErrInvalidCredentials = errors.New("invalid username or password")

// Authority はロール値から権限名（"ROLE_" + role）を作ります。
// 1ユーザー1ロールの前提で、権限はこの1つだけです。
func Authority(role string) string {
	return AuthorityPrefix + role
}

// Principal は認証に成功したユーザーと、その権限の集合です。
type Principal struct {
	Username    string
	Authorities []string
}

// Authenticator はユーザー名とパスワードを検証します。
type Authenticator struct {
	loader users.Loader
}

// NewAuthenticator は Authenticator を作成します。
func NewAuthenticator(loader users.Loader) *Authenticator {
	return &Authenticator{loader: loader}
}

// dummyHash は存在しないユーザーでも bcrypt 比較を1回行うためのハッシュです。
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := HashPassword("authgate-timing-equalizer")
	if err != nil {
		panic(err)
	}
	return hash
})

// Authenticate はパスワードを検証し、成功時に Principal を返します。
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	user, err := a.loader.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			// 応答時間からユーザーの有無を推測されないよう比較だけは行う
			_ = ComparePassword(password, dummyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := ComparePassword(password, []byte(user.PasswordHash)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Principal{
		Username:    user.Username,
		Authorities: []string{Authority(user.Role)},
	}, nil
}
