// Package reconcile combines an inverter snapshot with the day's grid energy
// counters into a single energy report.
package reconcile

import (
	"math"
	"time"

	"github.com/pvrelay/pvrelay/pkg/types"
)

// minElapsed bounds the divisor when two samples land in the same second.
const minElapsed = time.Second

// Reconcile builds the report for now and the state to persist for the next
// cycle. prev may be nil. A prev recorded on another calendar day is dropped
// because the device counters reset at local midnight.
//
// Grid power (export positive) is the directly measured register when it is
// nonzero; otherwise it is derived from the change in imported and exported
// energy since prev.
func Reconcile(
	now time.Time,
	snap types.Snapshot,
	importedKWH, exportedKWH float64,
	prev *types.ReconciliationState,
) (types.Report, types.ReconciliationState) {
	generatedKWH := math.Max(snap.ACEnergyTodayKWH, 0)
	consumptionKWH := math.Max(generatedKWH+importedKWH-exportedKWH, 0)

	report := types.Report{
		Timestamp:       now,
		Snapshot:        snap,
		ImportedKWH:     importedKWH,
		ExportedKWH:     exportedKWH,
		ConsumptionKWH:  consumptionKWH,
		GridPowerSource: types.GridPowerSourceNone,
	}

	if prev != nil {
		if prev.SameDay(now) {
			derived := DerivedGridPower(now.Sub(prev.Timestamp), importedKWH-prev.ImportedKWH, exportedKWH-prev.ExportedKWH)
			report.DerivedGridPowerW = &derived
		} else {
			report.StaleStateDropped = true
		}
	}

	switch {
	case math.Abs(snap.GridPowerW) > 0:
		report.GridPowerW = snap.GridPowerW
		report.GridPowerSource = types.GridPowerSourceDirect
	case report.DerivedGridPowerW != nil:
		report.GridPowerW = *report.DerivedGridPowerW
		report.GridPowerSource = types.GridPowerSourceDerived
	}

	next := types.ReconciliationState{
		Date:               types.DateKey(now),
		ConsumptionKWH:     consumptionKWH,
		InverterACTodayKWH: snap.ACEnergyTodayKWH,
		ImportedKWH:        importedKWH,
		ExportedKWH:        exportedKWH,
		Timestamp:          now,
	}
	return report, next
}

// DerivedGridPower converts the net energy exported over elapsed into an
// average power in watts. elapsed is floored at one second.
func DerivedGridPower(elapsed time.Duration, deltaImportedKWH, deltaExportedKWH float64) float64 {
	if elapsed < minElapsed {
		elapsed = minElapsed
	}
	netExportedWH := (deltaExportedKWH - deltaImportedKWH) * 1000
	return netExportedWH * 3600 / elapsed.Seconds()
}
