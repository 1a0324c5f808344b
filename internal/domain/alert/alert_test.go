package alert

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAlertClone verifies that Clone returns a deep copy and handles nil safely.
func TestAlertClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*Alert)(nil).Clone())

	confidence := 0.9
	ts := time.Now().UTC().Truncate(time.Second)
	a := &Alert{
		ID:        "alert-1",
		SubjectID: "S1",
		Trigger:   TriggerPanicButton,
		State:     StateActive,
		Metadata: Metadata{
			Confidence: &confidence,
			Carrier:    &CarrierHint{Operator: "jio", Circle: "mumbai"},
			Extra:      map[string]string{"device": "watch"},
		},
		Evidence: []Evidence{{Kind: EvidenceAudio, StorageRef: "ref-1"}},
		Contacts: Contacts{Authorities: []string{"112"}},
	}
	a.Record(ts, EventTriggered, map[string]any{"type": "panic_button"})

	b := a.Clone()
	require.Equal(t, a, b)
	require.NotSame(t, a, b)

	// Mutating the clone must not leak into the original.
	*b.Metadata.Confidence = 0.1
	b.Metadata.Carrier.Circle = "delhi"
	b.Metadata.Extra["device"] = "phone"
	b.Evidence[0].StorageRef = "other"
	b.Contacts.Authorities[0] = "100"
	b.Timeline[0].Details["type"] = "gesture"

	require.InDelta(t, 0.9, *a.Metadata.Confidence, 1e-9)
	require.Equal(t, "mumbai", a.Metadata.Carrier.Circle)
	require.Equal(t, "watch", a.Metadata.Extra["device"])
	require.Equal(t, "ref-1", a.Evidence[0].StorageRef)
	require.Equal(t, "112", a.Contacts.Authorities[0])
	require.Equal(t, "panic_button", a.Timeline[0].Details["type"])
}

// TestAlertRecord checks that Record appends one entry and bumps UpdatedAt.
func TestAlertRecord(t *testing.T) {
	t.Parallel()

	a := new(Alert)
	ts := time.Unix(100, 0)

	a.Record(ts, EventLocationUpdated, nil)

	require.Len(t, a.Timeline, 1)
	require.Equal(t, ts, a.UpdatedAt)
	require.Equal(t, EventLocationUpdated, a.Timeline[0].Event)
}

// TestStateTerminal verifies which states accept further transitions.
func TestStateTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, StateActive.Terminal())
	require.False(t, StateEscalated.Terminal())
	require.True(t, StateResolved.Terminal())
	require.True(t, StateFalseAlarm.Terminal())
}

// TestContactsDisjoint ensures each contact lands in exactly one set by priority.
func TestContactsDisjoint(t *testing.T) {
	t.Parallel()

	c := Contacts{
		Emergency:   []string{"112", "+911234", ""},
		Trusted:     []string{"+911234", "+915678", "+915678"},
		Authorities: []string{"112", "police"},
	}.Disjoint()

	require.Equal(t, []string{"112", "police"}, c.Authorities)
	require.Equal(t, []string{"+911234"}, c.Emergency)
	require.Equal(t, []string{"+915678"}, c.Trusted)
}

// TestReplayStates derives transitions from a timeline.
func TestReplayStates(t *testing.T) {
	t.Parallel()

	timeline := []TimelineEntry{
		{Event: EventTriggered},
		{Event: EventResponseInitiated},
		{Event: EventLocationUpdated},
		{Event: EventEscalated},
		{Event: EventEvidenceAdded},
		{Event: EventResolved},
	}

	require.Equal(t, []State{StateActive, StateEscalated, StateResolved}, ReplayStates(timeline))
	require.Empty(t, ReplayStates(nil))
}

// TestTriggerValidate covers the InvalidTrigger cases.
func TestTriggerValidate(t *testing.T) {
	t.Parallel()

	var nilTrigger *Trigger
	require.ErrorIs(t, nilTrigger.Validate(), ErrInvalidTrigger)

	cases := map[string]*Trigger{
		"missing subject": {Kind: TriggerPanicButton},
		"unknown kind":    {SubjectID: "S1", Kind: "telepathy"},
		"bad location":    {SubjectID: "S1", Kind: TriggerWearable, Location: &Fix{Latitude: 91}},
	}
	for name, trig := range cases {
		require.ErrorIs(t, trig.Validate(), ErrInvalidTrigger, name)
	}

	ok := &Trigger{SubjectID: "S1", Kind: TriggerUSSD, Location: &Fix{Latitude: 19.07, Longitude: 72.87, Accuracy: 10}}
	require.NoError(t, ok.Validate())
}

// TestUpstream verifies collaborator errors are classified as unavailable.
func TestUpstream(t *testing.T) {
	t.Parallel()

	require.NoError(t, Upstream("notifier", nil))

	cause := errors.New("boom")
	err := Upstream("notifier", cause)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "notifier")

	require.ErrorIs(t, ErrInvalidEvidence, ErrInvalidTrigger)
}
