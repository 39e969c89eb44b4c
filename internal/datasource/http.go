package datasource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

// HTTPClient fetches frames from the box-slice service:
//
//	GET {base}/api/box-slices?pair=ID&since=RFC3339&limit=N
type HTTPClient struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

var _ Fetcher = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the service at base. A non-positive
// timeout leaves the per-request deadline to the caller's context.
func NewHTTPClient(base string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &http.Client{}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return &HTTPClient{base: strings.TrimRight(base, "/"), client: c, logger: logger}
}

// URL builds the request URL for a fetch.
func (c *HTTPClient) URL(pairID string, since time.Time, limit int) string {
	q := url.Values{}
	q.Set("pair", pairID)
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.base + "/api/box-slices?" + q.Encode()
}

// FetchFrames implements Fetcher. Frames that fail conversion are logged and
// dropped; a non-2xx status is an error.
func (c *HTTPClient) FetchFrames(ctx context.Context, pairID string, since time.Time, limit int) ([]boxslice.Frame, error) {
	reqID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(pairID, since, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch box slices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch box slices: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read box slices: %w", err)
	}
	batch, bad, err := boxslice.DecodeBatch(data)
	if err != nil {
		return nil, err
	}
	frames, errs := boxslice.ConvertWire(batch)
	for _, e := range append(bad, errs...) {
		c.logger.Warn("dropped frame", "request_id", reqID, "pair", pairID, "err", e)
	}
	c.logger.Debug("fetched box slices", "request_id", reqID, "pair", pairID, "received", len(batch)+len(bad), "kept", len(frames))
	return frames, nil
}
