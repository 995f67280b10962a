package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebhookDispatcher posts alert cards to a chat incoming-webhook URL
type WebhookDispatcher struct {
	url        string
	timeout    time.Duration
	location   *time.Location
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookDispatcher creates a dispatcher; timeout bounds each POST and loc
// is used to render timestamps.
func NewWebhookDispatcher(url string, timeout time.Duration, loc *time.Location, logger *zap.Logger) *WebhookDispatcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 2 * time.Second,
	}
	return &WebhookDispatcher{
		url:        url,
		timeout:    timeout,
		location:   loc,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, a Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	body, err := RenderCard(a, d.location)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkRejected, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrSinkUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", a.ID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		d.logger.Info("alert delivered",
			zap.String("alert_id", a.ID),
			zap.String("kind", string(a.Kind)),
			zap.String("invoice", a.InvoiceNumber))
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrSinkUnavailable, resp.StatusCode, snippet)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrSinkRejected, resp.StatusCode, snippet)
	}
}

var _ Dispatcher = (*WebhookDispatcher)(nil)
