package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	cases := []struct {
		from    SessionStatus
		op      SessionOp
		want    SessionStatus
		changed bool
		wantErr bool
	}{
		{SessionDraft, OpStart, SessionInProgress, true, false},
		{SessionInProgress, OpStart, SessionInProgress, false, false},
		{SessionInProgress, OpPause, SessionPaused, true, false},
		{SessionPaused, OpStart, SessionInProgress, true, false},
		{SessionPaused, OpComplete, SessionCompleted, true, false},
		{SessionInProgress, OpComplete, SessionCompleted, true, false},
		{SessionDraft, OpCancel, SessionCancelled, true, false},
		{SessionDraft, OpPause, SessionDraft, false, true},
		{SessionDraft, OpComplete, SessionDraft, false, true},
		{SessionCompleted, OpStart, SessionCompleted, false, true},
		{SessionCompleted, OpCancel, SessionCompleted, false, true},
		{SessionCancelled, OpStart, SessionCancelled, false, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_"+string(tc.op), func(t *testing.T) {
			next, changed, err := tc.from.Transition(tc.op)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, next)
			assert.Equal(t, tc.changed, changed)
		})
	}
}

func TestComputeStatistics(t *testing.T) {
	t.Run("empty session is all zero", func(t *testing.T) {
		assert.Equal(t, Statistics{}, ComputeStatistics(SessionCounts{}))
	})

	t.Run("one of three found", func(t *testing.T) {
		stats := ComputeStatistics(SessionCounts{Expected: 3, Found: 1})
		assert.Equal(t, int64(2), stats.TotalNotFound)
		assert.Equal(t, 33.3, stats.CompletionPercentage)
	})

	t.Run("written off counts toward completion", func(t *testing.T) {
		stats := ComputeStatistics(SessionCounts{Expected: 4, Found: 1, WrittenOff: 1, Unregistered: 5})
		assert.Equal(t, int64(2), stats.TotalNotFound)
		assert.Equal(t, int64(5), stats.TotalUnregistered)
		assert.Equal(t, 50.0, stats.CompletionPercentage)
	})

	t.Run("clamped", func(t *testing.T) {
		for _, c := range []SessionCounts{
			{Expected: 0, Found: 7, WrittenOff: 2},
			{Expected: 2, Found: 2, WrittenOff: 2},
			{Expected: 1, Found: 0, WrittenOff: 0},
		} {
			stats := ComputeStatistics(c)
			assert.GreaterOrEqual(t, stats.CompletionPercentage, 0.0)
			assert.LessOrEqual(t, stats.CompletionPercentage, 100.0)
			assert.GreaterOrEqual(t, stats.TotalNotFound, int64(0))
		}
	})
}

func TestDeviceSessionExpiry(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := DeviceReadingSession{Status: DeviceActive, TimeoutSeconds: 300, CreatedAt: created}

	assert.Equal(t, created.Add(5*time.Minute), s.ExpiresAt())
	assert.True(t, s.IsActive(created.Add(299*time.Second)))
	assert.Equal(t, DeviceExpired, s.EffectiveStatus(created.Add(305*time.Second)))
	assert.Equal(t, time.Duration(0), s.Remaining(created.Add(305*time.Second)))

	s.Status = DeviceCompleted
	assert.Equal(t, DeviceCompleted, s.EffectiveStatus(created.Add(time.Hour)))
}

func TestExpectedAssetMatches(t *testing.T) {
	a := ExpectedAsset{AssetCode: "PAT-001", RFIDCode: "e200abc", Barcode: "789"}
	assert.True(t, a.Matches(" pat-001 "))
	assert.True(t, a.Matches("E200ABC"))
	assert.True(t, a.Matches("789"))
	assert.False(t, a.Matches(""))
	assert.False(t, a.Matches("PAT-002"))
}

func TestDeviceLink(t *testing.T) {
	assert.Equal(t, "inventario://reading?type=BARCODE&session_id=s-1",
		DeviceLink("inventario", ReadingTypeBarcode, "s-1"))
}
