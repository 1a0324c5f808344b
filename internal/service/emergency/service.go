package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/repository/registry"
	"github.com/oshokin/sos-engine/internal/service/broadcast"
)

// Default engine settings.
const (
	DefaultResponseTimeout = 30 * time.Second
	DefaultDispatchTimeout = 15 * time.Second
	DefaultTombstones      = 4096
)

// Errors returned by New.
var (
	errResolverRequired  = errors.New("location resolver is required")
	errLedgerRequired    = errors.New("evidence ledger is required")
	errSchedulerRequired = errors.New("escalation scheduler is required")
)

// Dependencies are the collaborators of the engine.
// Resolver, Ledger and Scheduler are required, the rest default to no-ops.
type Dependencies struct {
	Resolver  LocationResolver
	Ledger    EvidenceLedger
	Scheduler Scheduler
	Contacts  ContactsProvider
	Notifier  Notifier
	Tracking  TrackingController
	Capture   CaptureController
	Caller    VoiceCaller
	Archive   Archiver
	Geocoder  Geocoder
	Directory SubjectDirectory
	Metrics   Metrics
}

// Settings tune the engine.
type Settings struct {
	// ResponseTimeout is how long an alert stays active before escalation.
	ResponseTimeout time.Duration
	// DispatchTimeout bounds each fire-and-forget collaborator call.
	DispatchTimeout time.Duration
	// Tombstones is how many terminated alert ids are remembered.
	Tombstones int
	// USSDCodes are accepted in addition to the built-in emergency codes.
	USSDCodes []string
	// Clock overrides time.Now.
	Clock func() time.Time
	// NewID overrides the alert id generator.
	NewID func() string
}

// Service is the alert lifecycle engine.
type Service struct {
	// ctx is the base context of dispatched collaborator calls.
	ctx context.Context //nolint:containedctx // Dispatches outlive requests.

	resolver  LocationResolver
	ledger    EvidenceLedger
	scheduler Scheduler
	contacts  ContactsProvider
	notifier  Notifier
	tracking  TrackingController
	capture   CaptureController
	caller    VoiceCaller
	archive   Archiver
	geocoder  Geocoder
	directory SubjectDirectory
	metrics   Metrics

	// registry holds in-flight alerts.
	registry *registry.Registry
	// bus publishes lifecycle events.
	bus *broadcast.Bus
	// tombstones remembers recently terminated alert ids and their final state.
	tombstones *lru.Cache[string, alert.State]
	// ussdCodes is the set of accepted USSD codes.
	ussdCodes map[string]struct{}

	responseTimeout time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time
	newID           func() string

	// lifecycle guards closed against concurrent dispatch.
	lifecycle sync.RWMutex
	// closed rejects new dispatches after Close.
	closed bool
	// inflight tracks dispatched collaborator calls.
	inflight sync.WaitGroup
}

// New creates an engine.
func New(ctx context.Context, deps Dependencies, settings Settings) (*Service, error) {
	switch {
	case deps.Resolver == nil:
		return nil, errResolverRequired
	case deps.Ledger == nil:
		return nil, errLedgerRequired
	case deps.Scheduler == nil:
		return nil, errSchedulerRequired
	}

	if settings.ResponseTimeout <= 0 {
		settings.ResponseTimeout = DefaultResponseTimeout
	}

	if settings.DispatchTimeout <= 0 {
		settings.DispatchTimeout = DefaultDispatchTimeout
	}

	if settings.Tombstones <= 0 {
		settings.Tombstones = DefaultTombstones
	}

	if settings.Clock == nil {
		settings.Clock = time.Now
	}

	if settings.NewID == nil {
		settings.NewID = uuid.NewString
	}

	tombstones, err := lru.New[string, alert.State](settings.Tombstones)
	if err != nil {
		return nil, fmt.Errorf("create tombstone cache: %w", err)
	}

	var nop nopCollaborators

	s := &Service{
		ctx:             logger.WithName(ctx, "emergency"),
		resolver:        deps.Resolver,
		ledger:          deps.Ledger,
		scheduler:       deps.Scheduler,
		contacts:        orDefault[ContactsProvider](deps.Contacts, nop),
		notifier:        orDefault[Notifier](deps.Notifier, nop),
		tracking:        orDefault[TrackingController](deps.Tracking, nop),
		capture:         orDefault[CaptureController](deps.Capture, nop),
		caller:          orDefault[VoiceCaller](deps.Caller, nop),
		archive:         orDefault[Archiver](deps.Archive, nop),
		geocoder:        orDefault[Geocoder](deps.Geocoder, nop),
		directory:       orDefault[SubjectDirectory](deps.Directory, nop),
		metrics:         orDefault[Metrics](deps.Metrics, nop),
		registry:        registry.New(),
		bus:             broadcast.NewBus(),
		tombstones:      tombstones,
		ussdCodes:       ussdCodeSet(settings.USSDCodes),
		responseTimeout: settings.ResponseTimeout,
		dispatchTimeout: settings.DispatchTimeout,
		now:             settings.Clock,
		newID:           settings.NewID,
	}

	return s, nil
}

// orDefault returns v unless it is nil.
func orDefault[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}

	return v
}

// GetActiveAlerts returns a snapshot of every in-flight alert, oldest first.
func (s *Service) GetActiveAlerts() []*alert.Alert {
	return s.registry.ListActive()
}

// GetAlert returns a copy of an in-flight alert, or the archived version of a terminated one.
func (s *Service) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	if entry, ok := s.registry.Get(id); ok {
		entry.Lock()
		defer entry.Unlock()

		return entry.Alert.Clone(), nil
	}

	archived, err := s.archive.Load(ctx, id)
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			return nil, fmt.Errorf("get alert %s: %w", id, alert.ErrNotFound)
		}

		return nil, alert.Upstream("archive", err)
	}

	return archived, nil
}

// Subscribe returns the lifecycle event stream and a function ending the subscription.
func (s *Service) Subscribe(buffer int) (<-chan alert.Event, func()) {
	return s.bus.Subscribe(buffer)
}

// ActiveCount returns the number of in-flight alerts.
func (s *Service) ActiveCount() int {
	return s.registry.Len()
}

// Close stops accepting dispatches, waits for in-flight ones and ends every subscription.
func (s *Service) Close(ctx context.Context) error {
	s.lifecycle.Lock()
	s.closed = true
	s.lifecycle.Unlock()

	done := make(chan struct{})

	go func() {
		s.inflight.Wait()
		close(done)
	}()

	defer s.bus.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for dispatched calls: %w", ctx.Err())
	}
}

// lookup returns the entry of an in-flight alert or the error describing why it is missing.
func (s *Service) lookup(id string) (*registry.Entry, error) {
	if entry, ok := s.registry.Get(id); ok {
		return entry, nil
	}

	if _, ok := s.tombstones.Get(id); ok {
		return nil, fmt.Errorf("alert %s: %w", id, alert.ErrAlreadyTerminal)
	}

	return nil, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
}

// dispatch runs a collaborator call in the background, logging its failure.
func (s *Service) dispatch(ctx context.Context, collaborator string, call func(ctx context.Context) error) {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	if s.closed {
		logger.WarnKV(ctx, "Dispatch skipped after close", "collaborator", collaborator)

		return
	}

	s.inflight.Add(1)

	go func() {
		defer s.inflight.Done()

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.dispatchTimeout)
		defer cancel()

		if err := call(callCtx); err != nil {
			s.upstreamFailed(ctx, collaborator, err)
		}
	}()
}

// upstreamFailed logs and counts a failed collaborator call.
func (s *Service) upstreamFailed(ctx context.Context, collaborator string, err error) {
	logger.WarnKV(ctx, "Collaborator call failed",
		"collaborator", collaborator,
		"error", alert.Upstream(collaborator, err),
	)
	s.metrics.UpstreamFailed(collaborator)
}

// publish emits a lifecycle event carrying a snapshot.
func (s *Service) publish(eventType alert.EventType, snapshot *alert.Alert) {
	s.bus.Publish(alert.Event{
		Type:  eventType,
		At:    s.now(),
		Alert: snapshot,
	})
}
