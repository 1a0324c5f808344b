package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/repository/chain"
	"github.com/oshokin/sos-engine/internal/service/escalation"
	"github.com/oshokin/sos-engine/internal/service/evidence"
	"github.com/oshokin/sos-engine/internal/service/location"
)

var errDown = errors.New("collaborator down")

// recorder collects collaborator calls by name.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (r *recorder) record(name, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, name+":"+id)

	if r.fail {
		return errDown
	}

	return nil
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int

	for _, c := range r.calls {
		if len(c) > len(name) && c[:len(name)+1] == name+":" {
			n++
		}
	}

	return n
}

// fakeNotifier records every notification.
type fakeNotifier struct{ recorder }

func (n *fakeNotifier) SendEmergencyAlerts(_ context.Context, a *alert.Alert) error {
	return n.record("send", a.ID)
}

func (n *fakeNotifier) NotifyAuthorities(_ context.Context, a *alert.Alert) error {
	return n.record("authorities", a.ID)
}

func (n *fakeNotifier) EscalateToAuthorities(_ context.Context, a *alert.Alert) error {
	return n.record("escalate", a.ID)
}

func (n *fakeNotifier) BroadcastLocationUpdate(_ context.Context, a *alert.Alert) error {
	return n.record("location", a.ID)
}

func (n *fakeNotifier) SendResolutionNotifications(_ context.Context, a *alert.Alert) error {
	return n.record("resolution", a.ID)
}

// fakeControllers implements tracking, capture and voice calls.
type fakeControllers struct{ recorder }

func (c *fakeControllers) StartTracking(_ context.Context, alertID, _ string) error {
	return c.record("track-start", alertID)
}

func (c *fakeControllers) StopTracking(_ context.Context, alertID string) error {
	return c.record("track-stop", alertID)
}

func (c *fakeControllers) StartCapture(_ context.Context, alertID, _ string) error {
	return c.record("capture-start", alertID)
}

func (c *fakeControllers) StopCapture(_ context.Context, alertID, _ string) error {
	return c.record("capture-stop", alertID)
}

func (c *fakeControllers) MakeEmergencyCalls(_ context.Context, a *alert.Alert) error {
	return c.record("call", a.ID)
}

// fakeContacts returns fixed contacts.
type fakeContacts struct {
	contacts alert.Contacts
	err      error
}

func (c *fakeContacts) EmergencyContacts(context.Context, string) (alert.Contacts, error) {
	return c.contacts, c.err
}

// gatedContacts signals when contacts are requested and answers once released.
type gatedContacts struct {
	fakeContacts

	requested chan struct{}
	release   chan struct{}
}

func newGatedContacts(contacts alert.Contacts) *gatedContacts {
	return &gatedContacts{
		fakeContacts: fakeContacts{contacts: contacts},
		requested:    make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (c *gatedContacts) EmergencyContacts(ctx context.Context, subjectID string) (alert.Contacts, error) {
	close(c.requested)
	<-c.release

	return c.fakeContacts.EmergencyContacts(ctx, subjectID)
}

// immediateScheduler runs the callback inside Arm.
type immediateScheduler struct{}

func (immediateScheduler) Arm(alertID string, _ time.Duration, callback escalation.Callback) {
	_ = callback(context.Background(), alertID)
}

func (immediateScheduler) Disarm(string) bool {
	return false
}

// fakeDirectory maps phone numbers to subjects.
type fakeDirectory map[string]string

func (d fakeDirectory) SubjectByPhone(_ context.Context, phone string) (string, bool) {
	id, ok := d[phone]

	return id, ok
}

// memoryArchive keeps archived alerts in memory.
type memoryArchive struct {
	mu     sync.Mutex
	alerts map[string]*alert.Alert
}

func (m *memoryArchive) Save(_ context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alerts == nil {
		m.alerts = make(map[string]*alert.Alert)
	}

	m.alerts[a.ID] = a.Clone()

	return nil
}

func (m *memoryArchive) Load(_ context.Context, id string) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, alert.ErrNotFound
	}

	return a.Clone(), nil
}

// memoryStore is an in-memory content store.
type memoryStore struct {
	seq atomic.Int64
	err error
}

func (s *memoryStore) Store(_ context.Context, _ []byte, kind alert.EvidenceKind, alertID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}

	return fmt.Sprintf("mem://%s/%s/%d", alertID, kind, s.seq.Add(1)), nil
}

// fakeNetwork is an operator network source.
type fakeNetwork struct {
	fix alert.Fix
}

func (n fakeNetwork) NetworkLocation(context.Context, string) (alert.Fix, error) {
	return n.fix, nil
}

// noDevice reports no live location.
type noDevice struct{}

func (noDevice) CurrentLocation(context.Context, string) (alert.Fix, bool, error) {
	return alert.Fix{}, false, nil
}

// countingMetrics counts upstream failures.
type countingMetrics struct {
	nopCollaborators

	upstream atomic.Int32
}

func (m *countingMetrics) UpstreamFailed(string) {
	m.upstream.Add(1)
}

// env is a service wired with in-memory collaborators.
type env struct {
	svc         *Service
	scheduler   *escalation.Scheduler
	notifier    *fakeNotifier
	controllers *fakeControllers
	contacts    *fakeContacts
	archive     *memoryArchive
	store       *memoryStore
	ledger      *evidence.Ledger
	metrics     *countingMetrics
}

type envOption func(*Dependencies, *Settings, []location.Option) []location.Option

func withNetwork(op location.Operator, fix alert.Fix) envOption {
	return func(_ *Dependencies, _ *Settings, opts []location.Option) []location.Option {
		return append(opts, location.WithNetworkSource(op, fakeNetwork{fix: fix}))
	}
}

func withResponseTimeout(d time.Duration) envOption {
	return func(_ *Dependencies, s *Settings, opts []location.Option) []location.Option {
		s.ResponseTimeout = d

		return opts
	}
}

func withContacts(c ContactsProvider) envOption {
	return func(deps *Dependencies, _ *Settings, opts []location.Option) []location.Option {
		deps.Contacts = c

		return opts
	}
}

func withScheduler(s Scheduler) envOption {
	return func(deps *Dependencies, _ *Settings, opts []location.Option) []location.Option {
		deps.Scheduler = s

		return opts
	}
}

func withDirectory(d fakeDirectory) envOption {
	return func(deps *Dependencies, _ *Settings, opts []location.Option) []location.Option {
		deps.Directory = d

		return opts
	}
}

func newEnv(t *testing.T, options ...envOption) *env {
	t.Helper()

	e := &env{
		scheduler:   escalation.NewScheduler(context.Background()),
		notifier:    new(fakeNotifier),
		controllers: new(fakeControllers),
		contacts: &fakeContacts{contacts: alert.Contacts{
			Emergency:   []string{"112"},
			Trusted:     []string{"+919000000001", "112"},
			Authorities: []string{"police"},
		}},
		archive: new(memoryArchive),
		store:   new(memoryStore),
		metrics: new(countingMetrics),
	}

	e.ledger = evidence.NewLedger(e.store, chain.New())

	deps := Dependencies{
		Ledger:    e.ledger,
		Scheduler: e.scheduler,
		Contacts:  e.contacts,
		Notifier:  e.notifier,
		Tracking:  e.controllers,
		Capture:   e.controllers,
		Caller:    e.controllers,
		Archive:   e.archive,
		Metrics:   e.metrics,
	}
	settings := Settings{ResponseTimeout: time.Hour}
	locationOpts := []location.Option{
		location.WithDeviceSource(noDevice{}),
		location.WithTierTimeout(time.Second),
	}

	for _, opt := range options {
		locationOpts = opt(&deps, &settings, locationOpts)
	}

	deps.Resolver = location.NewResolver(location.NewClassifier("jio"), location.NewCircleTable("delhi"), locationOpts...)

	svc, err := New(context.Background(), deps, settings)
	require.NoError(t, err)

	e.svc = svc

	t.Cleanup(func() {
		e.scheduler.Stop()
		require.NoError(t, svc.Close(context.Background()))
	})

	return e
}

func panicTrigger(subjectID string) *alert.Trigger {
	return &alert.Trigger{
		SubjectID:   subjectID,
		Kind:        alert.TriggerPanicButton,
		PhoneNumber: "6001234567",
	}
}

func timelineKinds(a *alert.Alert) []alert.EventKind {
	kinds := make([]alert.EventKind, 0, len(a.Timeline))
	for _, entry := range a.Timeline {
		kinds = append(kinds, entry.Event)
	}

	return kinds
}
