package oncall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"warroom/config"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]string{" Payments ": "Oncall-Pay@Example.com", "": "ignored@example.com"})
	email, err := r.Resolve(context.Background(), "payments")
	require.NoError(t, err)
	require.Equal(t, "oncall-pay@example.com", email)

	email, err = r.Resolve(context.Background(), "unknown")
	require.NoError(t, err)
	require.Empty(t, email)
}

func TestHTTPPager(t *testing.T) {
	var got Page
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewHTTPPager(srv.URL, time.Second)
	require.NoError(t, p.Page(context.Background(), Page{ServiceRef: "payments", Email: "a@example.com", Name: "INC-1"}))
	require.Equal(t, "INC-1", got.Name)
	require.Equal(t, "payments", got.ServiceRef)

	require.Error(t, NewHTTPPager("", time.Second).Page(context.Background(), Page{}))
}

func TestFromConfig(t *testing.T) {
	_, pager := FromConfig(config.OncallConfig{})
	require.Nil(t, pager)
	resolver, pager := FromConfig(config.OncallConfig{Services: map[string]string{"db": "dba@example.com"}, PagerURL: "http://pager.invalid"})
	require.NotNil(t, pager)
	email, err := resolver.Resolve(context.Background(), "DB")
	require.NoError(t, err)
	require.Equal(t, "dba@example.com", email)
}
