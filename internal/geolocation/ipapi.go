package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/metrics"
	"github.com/utafrali/storefront-shipping/pkg/httpclient"
	"github.com/utafrali/storefront-shipping/pkg/logger"
)

// ErrIncompleteLocation is returned when an IP lookup answered without a
// usable latitude and longitude.
var ErrIncompleteLocation = errors.New("ip lookup returned no coordinates")

// IPLocator approximates a coordinate from a client IP address.
type IPLocator interface {
	Lookup(ctx context.Context, ip string) (domain.Coordinate, error)
}

// getter is the subset of the HTTP client used for lookups.
type getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

type ipapiResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
}

// IPAPIClient looks up IP locations on ipapi.co. Concurrent lookups of the
// same address share one upstream request.
type IPAPIClient struct {
	baseURL string
	client  getter
	timeout time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

// NewIPAPIClient creates a client for the API at baseURL. Every upstream
// request is bounded by timeout.
func NewIPAPIClient(baseURL string, client getter, timeout time.Duration, logger *slog.Logger) *IPAPIClient {
	return &IPAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// PublicIP returns ip when it is a routable public address and "" otherwise.
// An empty result means "the address the request comes from".
func PublicIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil ||
		parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() {
		return ""
	}
	return parsed.String()
}

func (c *IPAPIClient) endpoint(ip string) string {
	if ip = PublicIP(ip); ip == "" {
		return c.baseURL + "/json/"
	}
	return c.baseURL + "/" + ip + "/json/"
}

// Lookup returns the approximate coordinate of ip.
func (c *IPAPIClient) Lookup(ctx context.Context, ip string) (domain.Coordinate, error) {
	url := c.endpoint(ip)

	// The shared request must outlive the caller that started it.
	ch := c.group.DoChan(url, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), url)
	})

	select {
	case <-ctx.Done():
		return domain.Coordinate{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Coordinate{}, res.Err
		}
		return res.Val.(domain.Coordinate), nil
	}
}

func (c *IPAPIClient) fetch(ctx context.Context, url string) (coord domain.Coordinate, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() { metrics.ObserveIPLookup(start, err) }()

	resp, err := c.client.Get(ctx, url)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("ip lookup: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Coordinate{}, fmt.Errorf("ip lookup: %w", httpclient.ParseResponseError(resp, "ipapi"))
	}
	defer func() { _ = resp.Body.Close() }()

	var body ipapiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return domain.Coordinate{}, fmt.Errorf("decode ip lookup response: %w", err)
	}
	if body.Error {
		return domain.Coordinate{}, fmt.Errorf("%w: %s", ErrIncompleteLocation, body.Reason)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return domain.Coordinate{}, ErrIncompleteLocation
	}

	coord = domain.Coordinate{Latitude: *body.Latitude, Longitude: *body.Longitude}
	if !coord.Valid() {
		return domain.Coordinate{}, fmt.Errorf("%w: out of range", ErrIncompleteLocation)
	}

	logger.WithContext(ctx, c.logger).Debug("ip lookup succeeded",
		slog.String("url", url),
		slog.Float64("latitude", coord.Latitude),
		slog.Float64("longitude", coord.Longitude),
	)
	return coord, nil
}
