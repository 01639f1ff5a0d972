package npi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLookupReturnsIdentifier(t *testing.T) {
	t.Parallel()

	var gotQuery map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"result_count": 1, "results": [{"number": "1234567890"}]}`))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, ts.Client(), zap.NewNop())
	id, err := c.Lookup(context.Background(), "Ada", "Byron", "california")
	require.NoError(t, err)
	require.Equal(t, "1234567890", id)

	require.Equal(t, []string{"2.1"}, gotQuery["version"])
	require.Equal(t, []string{"Ada"}, gotQuery["first_name"])
	require.Equal(t, []string{"Byron"}, gotQuery["last_name"])
	require.Equal(t, []string{"california"}, gotQuery["state"])
	require.Equal(t, []string{"1"}, gotQuery["limit"])
}

func TestLookupNoMatchIsNotAnError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result_count": 0, "results": []}`))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, ts.Client(), zap.NewNop())
	id, err := c.Lookup(context.Background(), "Nobody", "Unknown", "")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestLookupNonSuccessStatusIsError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, ts.Client(), zap.NewNop())
	_, err := c.Lookup(context.Background(), "Ada", "Byron", "")
	require.Error(t, err)
}
