package reconcile

import (
	"testing"
	"time"

	"github.com/pvrelay/pvrelay/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)
	t0 := time.Date(2024, 6, 1, 11, 0, 0, 0, loc)

	prevAt := func(ts time.Time, imported, exported float64) *types.ReconciliationState {
		return &types.ReconciliationState{
			Date:        types.DateKey(ts),
			ImportedKWH: imported,
			ExportedKWH: exported,
			Timestamp:   ts,
		}
	}

	t.Run("ConsumptionClamp", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal, ACEnergyTodayKWH: 1.0}
		report, state := Reconcile(t0, snap, 0.5, 4.0, nil)
		assert.Equal(t, 0.0, report.ConsumptionKWH)
		assert.Equal(t, 0.0, state.ConsumptionKWH)
	})

	t.Run("NegativeGenerationIgnored", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal, ACEnergyTodayKWH: -2.0}
		report, _ := Reconcile(t0, snap, 3.0, 1.0, nil)
		assert.InDelta(t, 2.0, report.ConsumptionKWH, 1e-9)
	})

	t.Run("Consumption", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal, ACEnergyTodayKWH: 12.3}
		report, _ := Reconcile(t0, snap, 4.2, 6.5, nil)
		assert.InDelta(t, 10.0, report.ConsumptionKWH, 1e-9)
	})

	t.Run("DerivedPower", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal}
		report, _ := Reconcile(t0.Add(time.Hour), snap, 1.0, 3.0, prevAt(t0, 1.0, 2.0))
		require.NotNil(t, report.DerivedGridPowerW)
		assert.InDelta(t, 1000.0, *report.DerivedGridPowerW, 1e-9)
		assert.InDelta(t, 1000.0, report.GridPowerW, 1e-9)
		assert.Equal(t, types.GridPowerSourceDerived, report.GridPowerSource)
	})

	t.Run("DerivedImportIsNegative", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal}
		report, _ := Reconcile(t0.Add(5*time.Minute), snap, 1.25, 2.0, prevAt(t0, 1.0, 2.0))
		// 250 Wh imported in 5 minutes
		assert.InDelta(t, -3000.0, report.GridPowerW, 1e-9)
	})

	t.Run("SubSecondRepeat", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal}
		report, _ := Reconcile(t0.Add(200*time.Millisecond), snap, 1.0, 2.001, prevAt(t0, 1.0, 2.0))
		// 1 Wh over the 1s floor
		assert.InDelta(t, 3600.0, report.GridPowerW, 1e-6)
	})

	t.Run("ClockWentBackwards", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal}
		report, _ := Reconcile(t0.Add(-time.Minute), snap, 1.0, 2.001, prevAt(t0, 1.0, 2.0))
		assert.InDelta(t, 3600.0, report.GridPowerW, 1e-6)
	})

	t.Run("DirectWins", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal, GridPowerW: 120}
		report, _ := Reconcile(t0.Add(time.Hour), snap, 1.0, 5.0, prevAt(t0, 1.0, 2.0))
		require.NotNil(t, report.DerivedGridPowerW)
		assert.InDelta(t, 3000.0, *report.DerivedGridPowerW, 1e-9)
		assert.Equal(t, 120.0, report.GridPowerW, "a nonzero register wins over a larger derived value")
		assert.Equal(t, types.GridPowerSourceDirect, report.GridPowerSource)
	})

	t.Run("DirectNegativeWins", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal, GridPowerW: -40}
		report, _ := Reconcile(t0.Add(time.Hour), snap, 1.0, 5.0, prevAt(t0, 1.0, 2.0))
		assert.Equal(t, -40.0, report.GridPowerW)
	})

	t.Run("StaleStateDiscarded", func(t *testing.T) {
		yesterday := t0.Add(-24 * time.Hour)
		snap := types.Snapshot{Status: types.StatusNormal, GridPowerW: 75}
		report, _ := Reconcile(t0, snap, 0.1, 0.2, prevAt(yesterday, 9.0, 1.0))
		assert.Nil(t, report.DerivedGridPowerW)
		assert.True(t, report.StaleStateDropped)
		assert.Equal(t, 75.0, report.GridPowerW)
		assert.Equal(t, types.GridPowerSourceDirect, report.GridPowerSource)

		snap.GridPowerW = 0
		report, _ = Reconcile(t0, snap, 0.1, 0.2, prevAt(yesterday, 9.0, 1.0))
		assert.Equal(t, 0.0, report.GridPowerW)
		assert.Equal(t, types.GridPowerSourceNone, report.GridPowerSource)
	})

	t.Run("MidnightRollover", func(t *testing.T) {
		beforeMidnight := time.Date(2024, 6, 1, 23, 58, 0, 0, loc)
		afterMidnight := time.Date(2024, 6, 2, 0, 3, 0, 0, loc)
		snap := types.Snapshot{Status: types.StatusNormal}
		// counters reset at midnight, a delta would be a huge spurious import
		report, state := Reconcile(afterMidnight, snap, 0.05, 0.0, prevAt(beforeMidnight, 14.0, 8.0))
		assert.Nil(t, report.DerivedGridPowerW)
		assert.Equal(t, 0.0, report.GridPowerW)
		assert.Equal(t, "2024-06-02", state.Date)
	})

	t.Run("NoPreviousState", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal}
		report, _ := Reconcile(t0, snap, 1.0, 2.0, nil)
		assert.Nil(t, report.DerivedGridPowerW)
		assert.False(t, report.StaleStateDropped)
		assert.Equal(t, types.GridPowerSourceNone, report.GridPowerSource)
	})

	t.Run("NewState", func(t *testing.T) {
		snap := types.Snapshot{Status: types.StatusNormal, ACEnergyTodayKWH: 8.5}
		now := t0.Add(10 * time.Minute)
		report, state := Reconcile(now, snap, 2.0, 3.0, prevAt(t0, 1.0, 2.0))
		assert.Equal(t, types.ReconciliationState{
			Date:               "2024-06-01",
			ConsumptionKWH:     7.5,
			InverterACTodayKWH: 8.5,
			ImportedKWH:        2.0,
			ExportedKWH:        3.0,
			Timestamp:          now,
		}, state)
		assert.Equal(t, now, report.Timestamp)
		assert.Equal(t, snap, report.Snapshot)
	})
}

func TestDerivedGridPower(t *testing.T) {
	assert.InDelta(t, 1000.0, DerivedGridPower(time.Hour, 0, 1), 1e-9)
	assert.InDelta(t, -12000.0, DerivedGridPower(5*time.Minute, 1, 0), 1e-9)
	assert.InDelta(t, 0.0, DerivedGridPower(time.Minute, 0.3, 0.3), 1e-9)
	assert.InDelta(t, 3.6e6, DerivedGridPower(0, 0, 1), 1e-6)
}
