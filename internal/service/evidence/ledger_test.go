package evidence

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
)

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

// memoryTamper is an in-memory tamper ledger.
type memoryTamper struct {
	err error
}

func (m *memoryTamper) Commit(_ context.Context, ref string, _ time.Time, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}

	return "hash:" + ref, nil
}

// TestLedger_Append records a fully populated item.
func TestLedger_Append(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(&memoryStore{}, &memoryTamper{})
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	item, err := ledger.Append(context.Background(), "A1", Capture{
		Kind:       alert.EvidenceAudio,
		Data:       []byte("pcm"),
		CapturedAt: at,
	})
	require.NoError(t, err)
	require.Equal(t, alert.EvidenceAudio, item.Kind)
	require.Equal(t, "mem://A1/audio/1", item.StorageRef)
	require.Equal(t, "hash:mem://A1/audio/1", item.TamperHash)
	require.Equal(t, at, item.CapturedAt)
	require.Equal(t, []alert.Evidence{item}, ledger.Records("A1"))
	require.Empty(t, ledger.Records("A2"))
}

// TestLedger_AppendAllOrNothing ensures failed collaborators leave no partial record.
func TestLedger_AppendAllOrNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		store   *memoryStore
		tamper  *memoryTamper
		capture Capture
		wantErr error
	}{
		{
			name:    "content store down",
			store:   &memoryStore{err: errors.New("bucket unreachable")},
			tamper:  &memoryTamper{},
			capture: Capture{Kind: alert.EvidenceVideo, Data: []byte("x")},
			wantErr: alert.ErrUpstreamUnavailable,
		},
		{
			name:    "tamper ledger down",
			store:   &memoryStore{},
			tamper:  &memoryTamper{err: errors.New("chain closed")},
			capture: Capture{Kind: alert.EvidenceImage, Data: []byte("x")},
			wantErr: alert.ErrUpstreamUnavailable,
		},
		{
			name:    "unknown kind",
			store:   &memoryStore{},
			tamper:  &memoryTamper{},
			capture: Capture{Kind: "smell", Data: []byte("x")},
			wantErr: alert.ErrInvalidEvidence,
		},
		{
			name:    "empty payload",
			store:   &memoryStore{},
			tamper:  &memoryTamper{},
			capture: Capture{Kind: alert.EvidenceAudio},
			wantErr: alert.ErrInvalidTrigger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ledger := NewLedger(tt.store, tt.tamper)

			_, err := ledger.Append(context.Background(), "A1", tt.capture)
			require.ErrorIs(t, err, tt.wantErr)
			require.Empty(t, ledger.Records("A1"))
		})
	}
}

// TestLedger_ConcurrentAppends ensures concurrent captures for one alert all land.
func TestLedger_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(&memoryStore{}, &memoryTamper{})

	const perKind = 50

	var wg sync.WaitGroup

	for _, kind := range []alert.EvidenceKind{alert.EvidenceAudio, alert.EvidenceVideo} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range perKind {
				_, err := ledger.Append(context.Background(), "A1", Capture{Kind: kind, Data: []byte("x")})
				if err != nil {
					t.Error(err)
				}
			}
		}()
	}

	wg.Wait()

	records := ledger.Records("A1")
	require.Len(t, records, 2*perKind)

	refs := make(map[string]struct{}, len(records))
	for _, r := range records {
		refs[r.StorageRef] = struct{}{}
	}

	require.Len(t, refs, 2*perKind)
}

// TestLedger_RecordsIsCopy ensures callers cannot mutate the ledger.
func TestLedger_RecordsIsCopy(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(&memoryStore{}, &memoryTamper{})
	_, err := ledger.Append(context.Background(), "A1", Capture{Kind: alert.EvidenceImage, Data: []byte("x")})
	require.NoError(t, err)

	records := ledger.Records("A1")
	records[0].StorageRef = "tampered"

	require.NotEqual(t, "tampered", ledger.Records("A1")[0].StorageRef)
}

// TestLedger_Forget drops the records of one alert and keeps the others.
func TestLedger_Forget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := NewLedger(&memoryStore{}, &memoryTamper{})

	for _, id := range []string{"A1", "A1", "A2"} {
		_, err := ledger.Append(ctx, id, Capture{Kind: alert.EvidenceImage, Data: []byte("jpg")})
		require.NoError(t, err)
	}

	require.Len(t, ledger.Records("A1"), 2)

	ledger.Forget("A1")
	ledger.Forget("missing")

	require.Empty(t, ledger.Records("A1"))
	require.Len(t, ledger.Records("A2"), 1)

	ledger.mu.Lock()
	require.Len(t, ledger.records, 1)
	ledger.mu.Unlock()
}
