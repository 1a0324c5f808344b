package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// DeviceSource returns the latest location reported by the subject's device.
type DeviceSource interface {
	// CurrentLocation reports ok=false when no live fix is available.
	CurrentLocation(ctx context.Context, subjectID string) (fix alert.Fix, ok bool, err error)
}

// NetworkSource returns a carrier network-based location for a phone number.
type NetworkSource interface {
	NetworkLocation(ctx context.Context, phoneNumber string) (alert.Fix, error)
}

// Subject identifies whose location is being resolved.
type Subject struct {
	// ID is the subject identifier known to the device source.
	ID string
	// PhoneNumber is used to pick and query the operator.
	PhoneNumber string
}

// Default resolver settings.
const (
	DefaultTierTimeout    = 3 * time.Second
	DefaultStaticAccuracy = 50000
)

var (
	// errNoDeviceFix is logged when the device tier has nothing to offer.
	errNoDeviceFix = errors.New("no live device location")
	// errInvalidFix is returned for out-of-range coordinates from a source.
	errInvalidFix = errors.New("source returned invalid coordinates")
)

// Resolver produces a best-effort location by trying the device, the operator
// network and finally a static circle table. Each tier's failure is non-fatal.
type Resolver struct {
	// device is the live device location source, optional.
	device DeviceSource
	// networks maps an operator to its network-location source.
	networks map[Operator]NetworkSource
	// classifier detects the operator from a phone number.
	classifier *Classifier
	// circles is the static fallback table.
	circles *CircleTable
	// tierTimeout bounds each remote tier.
	tierTimeout time.Duration
	// staticAccuracy is the accuracy radius of static fixes, in meters.
	staticAccuracy float64
	// now returns the current time.
	now func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDeviceSource sets the live device location source.
func WithDeviceSource(src DeviceSource) Option {
	return func(r *Resolver) {
		r.device = src
	}
}

// WithNetworkSource registers the network-location source of an operator.
func WithNetworkSource(op Operator, src NetworkSource) Option {
	return func(r *Resolver) {
		if src != nil {
			r.networks[op] = src
		}
	}
}

// WithTierTimeout bounds each remote tier.
func WithTierTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.tierTimeout = timeout
		}
	}
}

// WithStaticAccuracy sets the accuracy radius of static fixes in meters.
func WithStaticAccuracy(meters float64) Option {
	return func(r *Resolver) {
		if meters > 0 {
			r.staticAccuracy = meters
		}
	}
}

// WithClock overrides the clock for testing.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a resolver over the given classifier and circle table.
func NewResolver(classifier *Classifier, circles *CircleTable, opts ...Option) *Resolver {
	r := &Resolver{
		networks:       make(map[Operator]NetworkSource),
		classifier:     classifier,
		circles:        circles,
		tierTimeout:    DefaultTierTimeout,
		staticAccuracy: DefaultStaticAccuracy,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Operator returns the operator used for a subject: the hinted one when it
// names a known operator, otherwise the prefix classification of the number.
func (r *Resolver) Operator(phoneNumber string, hint *alert.CarrierHint) Operator {
	if hint != nil {
		if op, ok := ParseOperator(hint.Operator); ok {
			return op
		}
	}

	return r.classifier.Detect(phoneNumber)
}

// Resolve returns the best available fix for the subject. It degrades through
// device, operator and static tiers and only fails when the static table is empty.
// Log fields identifying the subject are expected on ctx already.
func (r *Resolver) Resolve(ctx context.Context, subject Subject, hint *alert.CarrierHint) (alert.Fix, error) {
	// Tier 1: live device location.
	fix, err := r.fromDevice(ctx, subject.ID)
	if err == nil {
		return fix, nil
	}

	logger.DebugKV(ctx, "Device tier unavailable", "error", err)

	// Tier 2: operator network location.
	fix, err = r.fromOperator(ctx, subject.PhoneNumber, hint)
	if err == nil {
		return fix, nil
	}

	logger.WarnKV(ctx, "Operator tier unavailable", "error", err)

	// Tier 3: static circle centroid.
	var circle string
	if hint != nil {
		circle = hint.Circle
	}

	fix, err = r.fromStatic(circle)
	if err != nil {
		return alert.Fix{}, err
	}

	logger.WarnKV(ctx, "Location resolved from static table",
		"error", alert.ErrResolutionDegraded,
		"circle", circle,
		"accuracy", fix.Accuracy,
	)

	return fix, nil
}

func (r *Resolver) fromDevice(ctx context.Context, subjectID string) (alert.Fix, error) {
	if r.device == nil || subjectID == "" {
		return alert.Fix{}, errNoDeviceFix
	}

	tierCtx, cancel := context.WithTimeout(ctx, r.tierTimeout)
	defer cancel()

	fix, ok, err := r.device.CurrentLocation(tierCtx, subjectID)
	if err != nil {
		return alert.Fix{}, fmt.Errorf("device source: %w", err)
	}

	if !ok {
		return alert.Fix{}, errNoDeviceFix
	}

	return r.stamp(fix, alert.ConfidenceDevice)
}

func (r *Resolver) fromOperator(ctx context.Context, phoneNumber string, hint *alert.CarrierHint) (alert.Fix, error) {
	if phoneNumber == "" {
		return alert.Fix{}, errors.New("no phone number to query")
	}

	op := r.Operator(phoneNumber, hint)

	src, ok := r.networks[op]
	if !ok {
		return alert.Fix{}, fmt.Errorf("operator %s is not configured", op)
	}

	tierCtx, cancel := context.WithTimeout(ctx, r.tierTimeout)
	defer cancel()

	fix, err := src.NetworkLocation(tierCtx, phoneNumber)
	if err != nil {
		return alert.Fix{}, fmt.Errorf("operator %s: %w", op, err)
	}

	return r.stamp(fix, alert.ConfidenceOperator)
}

func (r *Resolver) fromStatic(circle string) (alert.Fix, error) {
	if r.circles == nil {
		return alert.Fix{}, alert.ErrResolutionFailed
	}

	_, point, ok := r.circles.Lookup(circle)
	if !ok {
		return alert.Fix{}, alert.ErrResolutionFailed
	}

	return alert.Fix{
		Latitude:   point.Latitude,
		Longitude:  point.Longitude,
		Accuracy:   r.staticAccuracy,
		Timestamp:  r.now(),
		Confidence: alert.ConfidenceStatic,
	}, nil
}

// stamp validates a fix and marks it with the producing tier.
func (r *Resolver) stamp(fix alert.Fix, tier alert.Confidence) (alert.Fix, error) {
	if !fix.ValidCoordinates() {
		return alert.Fix{}, errInvalidFix
	}

	if fix.Timestamp.IsZero() {
		fix.Timestamp = r.now()
	}

	fix.Confidence = tier

	return fix, nil
}
