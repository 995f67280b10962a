package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the platform cannot be reached or answers
// with anything other than a decodable 2xx response.
var ErrUnavailable = errors.New("evaluation platform unavailable")

// Fetcher loads an evaluation by id
type Fetcher interface {
	Get(ctx context.Context, id int64) (*Evaluation, error)
}

// Client is the HTTP implementation of Fetcher
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client. timeout bounds each Get call.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   2 * time.Second,
		ExpectContinueTimeout: 500 * time.Millisecond,
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// Get fetches GET {baseURL}/evaluations/{id}
func (c *Client) Get(ctx context.Context, id int64) (*Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/evaluations/" + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: evaluation %d: status %d", ErrUnavailable, id, resp.StatusCode)
	}

	var ev Evaluation
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: decode evaluation %d: %v", ErrUnavailable, id, err)
	}

	c.logger.Debug("evaluation fetched",
		zap.Int64("evaluation_id", id),
		zap.Int64("checklist_id", ev.Checklist.ID),
		zap.Duration("took", time.Since(start)))
	return &ev, nil
}

var _ Fetcher = (*Client)(nil)
