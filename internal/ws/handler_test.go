package ws

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOrigin(t *testing.T) {
	check := makeCheckOrigin([]string{" http://localhost:3000 ", "HTTPS://Chat.Example.com"})

	cases := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"https://chat.example.com", true},
		{"https://chat.example.com/some/path", true},
		{"http://localhost:3001", false},
		{"", false},
		{"not a url", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.want, check(r), tc.origin)
	}

	t.Run("empty allow list rejects", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "http://localhost:3000")
		assert.False(t, makeCheckOrigin(nil)(r))
	})

	t.Run("wildcard accepts", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		assert.True(t, makeCheckOrigin([]string{"*"})(r))
	})
}

func TestExtractToken(t *testing.T) {
	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer abc.def")
		tok, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "abc.def", tok)
	})

	t.Run("subprotocol", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Sec-WebSocket-Protocol", "bearer, abc.def")
		tok, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "abc.def", tok)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		_, err := extractTokenFromWSRequest(r)
		var authErr wsAuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, 401, authErr.status)
	})
}
