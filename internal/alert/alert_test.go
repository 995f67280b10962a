package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func mismatchAlert() Alert {
	return Alert{
		Kind:               KindMismatch,
		ID:                 "3f1c2a9e-0000-4000-8000-000000000001",
		InvoiceNumber:      "NF-300",
		UnitName:           "Loja Centro",
		Supplier:           "Distribuidora Sul",
		PrimarySubmitter:   "João",
		PrimaryValue:       models.MustDecimal("100.00"),
		AttachmentRef:      "https://files.example/nf-300.jpg",
		SecondarySubmitter: "Maria",
		SecondaryValue:     models.MustDecimal("90.00"),
		Delta:              models.MustDecimal("10"),
	}
}

func unmatchedAlert() Alert {
	return Alert{
		Kind:               KindUnmatched,
		ID:                 "3f1c2a9e-0000-4000-8000-000000000002",
		InvoiceNumber:      "NF-200",
		UnitName:           "Loja Centro",
		SecondarySubmitter: "Maria",
		SecondaryValue:     models.MustDecimal("200"),
		EntryNumber:        "L-9001",
		ReceivedAt:         time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC),
	}
}

func TestRenderCard_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name  string
		alert Alert
	}{
		{"mismatch_card", mismatchAlert()},
		{"unmatched_card", unmatchedAlert()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := RenderCard(tt.alert, saoPaulo)
			require.NoError(t, err)
			g.Assert(t, tt.name, body)
		})
	}
}

func TestRenderCard_NoPhotoOmitsAction(t *testing.T) {
	a := mismatchAlert()
	a.AttachmentRef = ""

	body, err := RenderCard(a, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "potentialAction")
}

func TestRenderCard_UnknownKind(t *testing.T) {
	_, err := RenderCard(Alert{Kind: "other"}, nil)
	assert.Error(t, err)
}

func TestWebhookDispatcher_Delivers(t *testing.T) {
	var got map[string]any
	var correlation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		correlation = r.Header.Get("X-Correlation-ID")
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("1"))
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, time.Second, saoPaulo, zap.NewNop())
	a := mismatchAlert()
	a.ID = ""
	require.NoError(t, d.Dispatch(context.Background(), a))

	assert.NotEmpty(t, correlation, "a correlation id is generated")
	assert.Equal(t, "MessageCard", got["@type"])
	assert.Equal(t, "Invoice values differ", got["title"])
}

func TestWebhookDispatcher_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server error", http.StatusBadGateway, ErrSinkUnavailable},
		{"throttled", http.StatusTooManyRequests, ErrSinkUnavailable},
		{"bad request", http.StatusBadRequest, ErrSinkRejected},
		{"gone", http.StatusGone, ErrSinkRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			d := NewWebhookDispatcher(srv.URL, time.Second, saoPaulo, zap.NewNop())
			err := d.Dispatch(context.Background(), unmatchedAlert())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWebhookDispatcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := NewWebhookDispatcher(srv.URL, 50*time.Millisecond, saoPaulo, zap.NewNop())
	err := d.Dispatch(context.Background(), unmatchedAlert())
	assert.ErrorIs(t, err, ErrSinkUnavailable)
}

func TestWebhookDispatcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewWebhookDispatcher(url, time.Second, saoPaulo, zap.NewNop())
	err := d.Dispatch(context.Background(), unmatchedAlert())
	assert.True(t, errors.Is(err, ErrSinkUnavailable))
}

func TestLogDispatcher(t *testing.T) {
	assert.NoError(t, NewLogDispatcher(zap.NewNop()).Dispatch(context.Background(), mismatchAlert()))
}
