package geolocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-shipping/internal/domain"
)

func f64(v float64) *float64 { return &v }

func TestReportedDevice_CurrentPosition(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fresh := now.Add(-2 * time.Second)
	stale := now.Add(-time.Minute)

	tests := []struct {
		name     string
		report   *DeviceReport
		want     domain.Coordinate
		wantCode DeviceErrorCode
		wantErr  error
	}{
		{"no capability", nil, domain.Coordinate{}, "", ErrDeviceUnsupported},
		{"fix", &DeviceReport{Latitude: f64(19.07), Longitude: f64(72.87)}, domain.Coordinate{Latitude: 19.07, Longitude: 72.87}, "", nil},
		{"fresh fix", &DeviceReport{Latitude: f64(19.07), Longitude: f64(72.87), CapturedAt: &fresh}, domain.Coordinate{Latitude: 19.07, Longitude: 72.87}, "", nil},
		{"stale fix", &DeviceReport{Latitude: f64(19.07), Longitude: f64(72.87), CapturedAt: &stale}, domain.Coordinate{}, DeviceTimeout, nil},
		{"permission denied", &DeviceReport{Error: "permission-denied"}, domain.Coordinate{}, DevicePermissionDenied, nil},
		{"timeout", &DeviceReport{Error: "timeout"}, domain.Coordinate{}, DeviceTimeout, nil},
		{"missing longitude", &DeviceReport{Latitude: f64(19.07)}, domain.Coordinate{}, DeviceUnavailable, nil},
		{"out of range", &DeviceReport{Latitude: f64(120), Longitude: f64(72.87)}, domain.Coordinate{}, DeviceUnavailable, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewReportedDevice(tt.report)
			d.now = func() time.Time { return now }

			got, err := d.CurrentPosition(context.Background(), DefaultPositionOptions())

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantCode != "":
				var devErr *DeviceError
				require.True(t, errors.As(err, &devErr), "got %v", err)
				assert.Equal(t, tt.wantCode, devErr.Code)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReportedDevice_CancelledContextIsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReportedDevice(&DeviceReport{Latitude: f64(1), Longitude: f64(1)}).
		CurrentPosition(ctx, DefaultPositionOptions())

	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, DeviceTimeout, devErr.Code)
}

func TestDefaultPositionOptions(t *testing.T) {
	opts := DefaultPositionOptions()
	assert.True(t, opts.HighAccuracy)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Zero(t, opts.MaxAge)
}
