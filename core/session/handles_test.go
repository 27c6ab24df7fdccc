package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleMintAndResolve(t *testing.T) {
	reg := NewHandleRegistry()

	url := reg.Mint("rec-1")
	require.True(t, strings.HasPrefix(url, "/clips/"))

	token := strings.TrimPrefix(url, "/clips/")
	require.Len(t, token, 32)

	id, ok := reg.Resolve(token)
	require.True(t, ok)
	require.Equal(t, "rec-1", id)
}

func TestHandleMintReplacesPreviousToken(t *testing.T) {
	reg := NewHandleRegistry()

	first := strings.TrimPrefix(reg.Mint("rec-1"), "/clips/")
	second := strings.TrimPrefix(reg.Mint("rec-1"), "/clips/")
	require.NotEqual(t, first, second)

	_, ok := reg.Resolve(first)
	require.False(t, ok, "旧 token 应随重铸失效")

	id, ok := reg.Resolve(second)
	require.True(t, ok)
	require.Equal(t, "rec-1", id)
}

func TestHandleRevoke(t *testing.T) {
	reg := NewHandleRegistry()

	token := strings.TrimPrefix(reg.Mint("rec-1"), "/clips/")
	reg.Revoke("rec-1")

	_, ok := reg.Resolve(token)
	require.False(t, ok)

	// 重复作废不报错
	reg.Revoke("rec-1")
}

func TestHandleRevokeAll(t *testing.T) {
	reg := NewHandleRegistry()

	t1 := strings.TrimPrefix(reg.Mint("rec-1"), "/clips/")
	t2 := strings.TrimPrefix(reg.Mint("rec-2"), "/clips/")
	reg.RevokeAll()

	_, ok := reg.Resolve(t1)
	require.False(t, ok)
	_, ok = reg.Resolve(t2)
	require.False(t, ok)
}
