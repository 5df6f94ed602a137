package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saansook/saansook/pkg/jwtx"
)

func TestKey(t *testing.T) {
	t.Parallel()

	t.Run("access key layout", func(t *testing.T) {
		key := Key("saansook", "customer", "42", jwtx.KindAccess, "01J8ZQ4X")
		require.Equal(t, "saansook/auth/customer/42/access_token/01J8ZQ4X", key)
	})

	t.Run("refresh key layout", func(t *testing.T) {
		key := Key("saansook", "customer", "42", jwtx.KindRefresh, "01J8ZQ5Y")
		require.Equal(t, "saansook/auth/customer/42/refresh_token/01J8ZQ5Y", key)
	})

	t.Run("prefix may carry a leading slash for legacy layouts", func(t *testing.T) {
		key := Key("/saansook", "customer", "42", jwtx.KindAccess, "abc")
		require.Equal(t, "/saansook/auth/customer/42/access_token/abc", key)
	})

	t.Run("distinct jtis never collide", func(t *testing.T) {
		a := Key("p", "customer", "1", jwtx.KindAccess, "j1")
		b := Key("p", "customer", "1", jwtx.KindAccess, "j2")
		require.NotEqual(t, a, b)
	})
}
