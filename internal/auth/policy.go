package auth

import (
	"fmt"
	"path"
	"strings"
)

// ルーティング上の固定パス
const (
	LoginPath           = "/login"
	LoginProcessingPath = "/perform_login"
	LogoutPath          = "/logout"
	DefaultSuccessPath  = "/home"
	HealthPath          = "/health"
)

// Access はパスごとに要求する認証状態です。ゼロ値は Authenticated です。
type Access int

const (
	// Authenticated はログイン済みのみ許可します。
	Authenticated Access = iota
	// PermitAll は認証状態に関係なく許可します。
	PermitAll
	// AnonymousOnly は未ログインのみ許可します。ログイン済みは DefaultSuccessPath へ送ります。
	AnonymousOnly
)

func (a Access) String() string {
	switch a {
	case Authenticated:
		return "authenticated"
	case PermitAll:
		return "permitAll"
	case AnonymousOnly:
		return "anonymous"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// Rule はパスパターンと要求する認証状態の組です。
// Pattern は完全一致、path.Match のグロブ、または末尾 "/**" の前方一致です。
type Rule struct {
	Pattern string
	Access  Access
}

// Policy は先頭から順に評価するルールの一覧です。どれにも一致しなければ Authenticated です。
type Policy struct {
	rules []Rule
}

// NewPolicy はルールを検証して Policy を作成します。
func NewPolicy(rules ...Rule) (*Policy, error) {
	for _, r := range rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("pattern must start with '/': %q", r.Pattern)
		}
		if _, err := path.Match(strings.TrimSuffix(r.Pattern, "/**"), "/"); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", r.Pattern, err)
		}
	}
	return &Policy{rules: append([]Rule(nil), rules...)}, nil
}

// DefaultPolicy はログイン画面・ログイン処理・ログアウト・ヘルスチェック以外を
// すべてログイン必須にするポリシーです。
func DefaultPolicy() *Policy {
	p, err := NewPolicy(
		Rule{Pattern: LoginPath, Access: AnonymousOnly},
		Rule{Pattern: LoginProcessingPath, Access: PermitAll},
		Rule{Pattern: LogoutPath, Access: PermitAll},
		Rule{Pattern: HealthPath, Access: PermitAll},
		Rule{Pattern: DefaultSuccessPath, Access: Authenticated},
	)
	if err != nil {
		panic(err)
	}
	return p
}

// Evaluate はリクエストパスに対して要求される認証状態を返します。
func (p *Policy) Evaluate(requestPath string) Access {
	cleaned := path.Clean("/" + requestPath)
	for _, r := range p.rules {
		if matchPattern(r.Pattern, cleaned) {
			return r.Access
		}
	}
	return Authenticated
}

func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	ok, err := path.Match(pattern, p)
	return err == nil && ok
}
