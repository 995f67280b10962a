package evaluation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluations/42", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 42,
			"checklist": {"id": 7, "name": "Conferência Aprendiz"},
			"user": {"name": "Ana"},
			"unit": {"name": "Loja Centro"},
			"fields": [{"label": "Valor", "value": 150.00}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second, zap.NewNop())
	ev, err := c.Get(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), ev.ID)
	assert.Equal(t, int64(7), ev.Checklist.ID)
	assert.Equal(t, "Ana", ev.User.Name)
	assert.Equal(t, "Loja Centro", ev.Unit.Name)
	require.Len(t, ev.Fields, 1)
	assert.Equal(t, "150.00", string(ev.Fields[0].Value))
}

func TestClient_Get_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zap.NewNop())
	_, err := c.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Get_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 50*time.Millisecond, zap.NewNop())
	_, err := c.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Get_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "not-a-number"`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zap.NewNop())
	_, err := c.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}
