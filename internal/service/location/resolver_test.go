package location

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// fakeDevice is an in-memory device source.
type fakeDevice struct {
	fix   alert.Fix
	ok    bool
	err   error
	calls atomic.Int32
}

func (d *fakeDevice) CurrentLocation(context.Context, string) (alert.Fix, bool, error) {
	d.calls.Add(1)

	return d.fix, d.ok, d.err
}

// fakeNetwork is an in-memory operator network source.
type fakeNetwork struct {
	fix   alert.Fix
	err   error
	block bool
	calls atomic.Int32
}

func (n *fakeNetwork) NetworkLocation(ctx context.Context, _ string) (alert.Fix, error) {
	n.calls.Add(1)

	if n.block {
		<-ctx.Done()

		return alert.Fix{}, ctx.Err()
	}

	return n.fix, n.err
}

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestResolver(opts ...Option) *Resolver {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)

	return NewResolver(NewClassifier("jio"), NewCircleTable("delhi"), opts...)
}

// TestResolver_DeviceTierWins ensures a live device fix is used directly.
func TestResolver_DeviceTierWins(t *testing.T) {
	t.Parallel()

	device := &fakeDevice{fix: alert.Fix{Latitude: 12.97, Longitude: 77.59, Accuracy: 8}, ok: true}
	network := &fakeNetwork{fix: alert.Fix{Latitude: 1, Longitude: 1, Accuracy: 500}}

	r := newTestResolver(WithDeviceSource(device), WithNetworkSource(OperatorJio, network))

	fix, err := r.Resolve(context.Background(), Subject{ID: "S1", PhoneNumber: "6001234567"}, nil)
	require.NoError(t, err)
	require.Equal(t, alert.ConfidenceDevice, fix.Confidence)
	require.InDelta(t, 8.0, fix.Accuracy, 1e-9)
	require.Equal(t, fixedNow, fix.Timestamp)
	require.Zero(t, network.calls.Load())
}

// TestResolver_OperatorTier uses the operator detected from the number prefix.
func TestResolver_OperatorTier(t *testing.T) {
	t.Parallel()

	airtel := &fakeNetwork{fix: alert.Fix{Latitude: 28.6, Longitude: 77.2, Accuracy: 300, MNC: "845"}}
	jio := &fakeNetwork{fix: alert.Fix{Latitude: 19.0, Longitude: 72.8, Accuracy: 500}}

	r := newTestResolver(
		WithDeviceSource(&fakeDevice{}),
		WithNetworkSource(OperatorAirtel, airtel),
		WithNetworkSource(OperatorJio, jio),
	)

	fix, err := r.Resolve(context.Background(), Subject{ID: "S1", PhoneNumber: "9000123456"}, nil)
	require.NoError(t, err)
	require.Equal(t, alert.ConfidenceOperator, fix.Confidence)
	require.Equal(t, "845", fix.MNC)
	require.EqualValues(t, 1, airtel.calls.Load())
	require.Zero(t, jio.calls.Load())
}

// TestResolver_HintOperatorOverridesPrefix ensures a declared operator wins over detection.
func TestResolver_HintOperatorOverridesPrefix(t *testing.T) {
	t.Parallel()

	jio := &fakeNetwork{fix: alert.Fix{Latitude: 19.0, Longitude: 72.8, Accuracy: 500}}
	r := newTestResolver(WithNetworkSource(OperatorJio, jio))

	hint := &alert.CarrierHint{Operator: "Jio", Circle: "mumbai"}
	require.Equal(t, OperatorJio, r.Operator("9000123456", hint))

	fix, err := r.Resolve(context.Background(), Subject{ID: "S1", PhoneNumber: "9000123456"}, hint)
	require.NoError(t, err)
	require.Equal(t, alert.ConfidenceOperator, fix.Confidence)
	require.EqualValues(t, 1, jio.calls.Load())
}

// TestResolver_StaticFallback covers unconfigured, failing and slow operators.
func TestResolver_StaticFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		network *fakeNetwork
		hint    *alert.CarrierHint
		wantLat float64
	}{
		{
			name:    "unconfigured operator uses hinted circle",
			hint:    &alert.CarrierHint{Operator: "jio", Circle: "mumbai"},
			wantLat: 19.0760,
		},
		{
			name:    "operator error uses default circle",
			network: &fakeNetwork{err: errors.New("502 bad gateway")},
			wantLat: 28.6139,
		},
		{
			name:    "operator timeout",
			network: &fakeNetwork{block: true},
			hint:    &alert.CarrierHint{Circle: "chennai"},
			wantLat: 13.0827,
		},
		{
			name:    "invalid operator coordinates",
			network: &fakeNetwork{fix: alert.Fix{Latitude: 200, Longitude: 10}},
			hint:    &alert.CarrierHint{Circle: "unknown-circle"},
			wantLat: 28.6139,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := []Option{
				WithDeviceSource(&fakeDevice{err: errors.New("gps disabled")}),
				WithTierTimeout(20 * time.Millisecond),
				WithStaticAccuracy(50000),
			}
			if tt.network != nil {
				opts = append(opts, WithNetworkSource(OperatorJio, tt.network))
			}

			r := newTestResolver(opts...)

			fix, err := r.Resolve(context.Background(), Subject{ID: "S1", PhoneNumber: "6001234567"}, tt.hint)
			require.NoError(t, err)
			require.Equal(t, alert.ConfidenceStatic, fix.Confidence)
			require.InDelta(t, tt.wantLat, fix.Latitude, 1e-6)
			require.InDelta(t, 50000.0, fix.Accuracy, 1e-9)
			require.Equal(t, fixedNow, fix.Timestamp)
		})
	}
}

// TestResolver_NoPhoneSkipsOperator ensures the operator tier needs a number.
func TestResolver_NoPhoneSkipsOperator(t *testing.T) {
	t.Parallel()

	jio := &fakeNetwork{fix: alert.Fix{Latitude: 19.0, Longitude: 72.8, Accuracy: 500}}
	r := newTestResolver(WithNetworkSource(OperatorJio, jio))

	fix, err := r.Resolve(context.Background(), Subject{ID: "S1"}, nil)
	require.NoError(t, err)
	require.Equal(t, alert.ConfidenceStatic, fix.Confidence)
	require.Zero(t, jio.calls.Load())
}

// TestResolver_EmptyTableFails is the only failing path.
func TestResolver_EmptyTableFails(t *testing.T) {
	t.Parallel()

	r := NewResolver(NewClassifier("jio"), NewCircleTableFrom(nil, ""))

	_, err := r.Resolve(context.Background(), Subject{ID: "S1"}, nil)
	require.ErrorIs(t, err, alert.ErrResolutionFailed)
}

// TestResolver_AlwaysReturnsFix checks that any subject resolves to a valid fix.
func TestResolver_AlwaysReturnsFix(t *testing.T) {
	t.Parallel()

	r := newTestResolver(
		WithDeviceSource(&fakeDevice{}),
		WithNetworkSource(OperatorAirtel, &fakeNetwork{err: errors.New("down")}),
	)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("resolution never fails with a non-empty table", prop.ForAll(
		func(subjectID, phone, circle string) bool {
			fix, err := r.Resolve(context.Background(),
				Subject{ID: subjectID, PhoneNumber: phone},
				&alert.CarrierHint{Circle: circle},
			)

			return err == nil && fix.ValidCoordinates() && fix.Confidence.Rank() > 0
		},
		gen.AlphaString(),
		gen.NumString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestResolver_LogsCallerFieldsOnce keeps the caller's subject field single on every tier log.
func TestResolver_LogsCallerFieldsOnce(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar().With("subject_id", "S1"))

	jio := &fakeNetwork{err: errors.New("gateway down")}
	r := newTestResolver(WithNetworkSource(OperatorJio, jio))

	fix, err := r.Resolve(ctx, Subject{ID: "S1", PhoneNumber: "6001234567"}, nil)
	require.NoError(t, err)
	require.Equal(t, alert.ConfidenceStatic, fix.Confidence)
	require.NotZero(t, logs.Len())

	for _, entry := range logs.All() {
		var count int

		for _, field := range entry.Context {
			if field.Key == "subject_id" {
				count++
			}
		}

		require.Equal(t, 1, count, entry.Message)
	}
}
