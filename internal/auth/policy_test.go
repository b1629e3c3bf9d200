package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		path string
		want Access
	}{
		{"/login", AnonymousOnly},
		{"/perform_login", PermitAll},
		{"/logout", PermitAll},
		{"/health", PermitAll},
		{"/home", Authenticated},
		{"/home/", Authenticated},
		{"/", Authenticated},
		{"/admin", Authenticated},
		{"/login/../home", Authenticated},
		{"/login/extra", Authenticated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Evaluate(tt.path), tt.path)
	}
}

func TestPolicyFirstMatchWins(t *testing.T) {
	p, err := NewPolicy(
		Rule{Pattern: "/public/secret", Access: Authenticated},
		Rule{Pattern: "/public/**", Access: PermitAll},
		Rule{Pattern: "/assets/*.css", Access: PermitAll},
	)
	require.NoError(t, err)

	assert.Equal(t, Authenticated, p.Evaluate("/public/secret"))
	assert.Equal(t, PermitAll, p.Evaluate("/public"))
	assert.Equal(t, PermitAll, p.Evaluate("/public/a/b"))
	assert.Equal(t, PermitAll, p.Evaluate("/assets/site.css"))
	assert.Equal(t, Authenticated, p.Evaluate("/assets/site.js"))
	assert.Equal(t, Authenticated, p.Evaluate("/publicity"))
}

func TestEmptyPolicyDeniesEverything(t *testing.T) {
	p, err := NewPolicy()
	require.NoError(t, err)
	assert.Equal(t, Authenticated, p.Evaluate("/login"))
}

func TestNewPolicyRejectsBadPatterns(t *testing.T) {
	_, err := NewPolicy(Rule{Pattern: "home"})
	assert.Error(t, err)

	_, err = NewPolicy(Rule{Pattern: "/[unclosed"})
	assert.Error(t, err)
}

func TestAccessString(t *testing.T) {
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "permitAll", PermitAll.String())
	assert.Equal(t, "anonymous", AnonymousOnly.String())
	assert.Equal(t, "Access(9)", Access(9).String())
}
