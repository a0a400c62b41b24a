package geolocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/metrics"
	"github.com/utafrali/storefront-shipping/pkg/logger"
	"github.com/utafrali/storefront-shipping/pkg/tracing"
)

const tracerName = "github.com/utafrali/storefront-shipping/internal/geolocation"

// Notice messages emitted while resolving a location.
const (
	MsgLocationDetected    = "Location detected!"
	MsgUsingApproximate    = "Using approximate location..."
	MsgApproximateSet      = "Approximate location set. Please adjust the pin if needed."
	MsgCouldNotDetermine   = "Could not determine location. Please pin manually on the map."
	MsgLocationLookupFails = "Location detection failed. Please pin manually on the map."
)

// ResolveRequest carries the sources available for one resolution.
type ResolveRequest struct {
	// Device is the caller's location capability. Nil means absent.
	Device DeviceLocator
	// ClientIP is the caller's address used for the IP approximation.
	ClientIP string
}

// Resolution is the outcome of a resolution attempt. On failure Coordinate
// and Provenance are zero and only Notices is meaningful.
type Resolution struct {
	Coordinate domain.Coordinate
	Provenance domain.Provenance
	Notices    domain.Notices
}

// Resolver obtains a coordinate from the device, falling back to an IP
// approximation.
type Resolver struct {
	ip        IPLocator
	device    PositionOptions
	ipTimeout time.Duration
	logger    *slog.Logger
}

// NewResolver creates a resolver. deviceTimeout bounds the device step and
// ipTimeout the IP step.
func NewResolver(ip IPLocator, deviceTimeout, ipTimeout time.Duration, logger *slog.Logger) *Resolver {
	opts := DefaultPositionOptions()
	if deviceTimeout > 0 {
		opts.Timeout = deviceTimeout
	}
	return &Resolver{
		ip:        ip,
		device:    opts,
		ipTimeout: ipTimeout,
		logger:    logger,
	}
}

// Resolve runs the fallback chain. Failures are returned wrapping
// domain.ErrLocationUnavailable together with the notices to show.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "geolocation.Resolve")
	defer span.End()

	log := logger.WithContext(ctx, r.logger)
	res := &Resolution{}

	coord, err := r.fromDevice(ctx, req.Device)
	if err == nil {
		metrics.ObserveResolution("device", metrics.OutcomeSuccess)
		span.SetAttributes(attribute.String("geolocation.source", "device"))
		res.Coordinate = coord
		res.Provenance = domain.ProvenanceDeviceGeolocation
		res.Notices.Add(domain.NoticeSuccess, MsgLocationDetected)
		return res, nil
	}
	metrics.ObserveResolution("device", metrics.OutcomeFailed)
	log.Info("device geolocation failed, falling back to ip", slog.String("reason", err.Error()))

	res.Notices.Add(domain.NoticeInfo, MsgUsingApproximate)

	coord, err = r.fromIP(ctx, req.ClientIP)
	if err == nil {
		metrics.ObserveResolution("ip", metrics.OutcomeSuccess)
		span.SetAttributes(attribute.String("geolocation.source", "ip"))
		res.Coordinate = coord
		res.Provenance = domain.ProvenanceIPApproximation
		res.Notices.Add(domain.NoticeSuccess, MsgApproximateSet)
		return res, nil
	}
	metrics.ObserveResolution("ip", metrics.OutcomeFailed)
	log.Warn("ip geolocation failed", slog.String("error", err.Error()))

	if errors.Is(err, ErrIncompleteLocation) {
		res.Notices.Add(domain.NoticeError, MsgCouldNotDetermine)
	} else {
		res.Notices.Add(domain.NoticeError, MsgLocationLookupFails)
	}
	span.SetStatus(codes.Error, "location unavailable")
	return res, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, err)
}

func (r *Resolver) fromDevice(ctx context.Context, device DeviceLocator) (domain.Coordinate, error) {
	if device == nil {
		return domain.Coordinate{}, ErrDeviceUnsupported
	}
	ctx, cancel := context.WithTimeout(ctx, r.device.Timeout)
	defer cancel()
	return device.CurrentPosition(ctx, r.device)
}

func (r *Resolver) fromIP(ctx context.Context, ip string) (domain.Coordinate, error) {
	if r.ip == nil {
		return domain.Coordinate{}, errors.New("no ip locator configured")
	}
	if r.ipTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.ipTimeout)
		defer cancel()
	}
	return r.ip.Lookup(ctx, ip)
}
