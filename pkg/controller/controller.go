// Package controller runs the polling cycle: read the inverter, fetch grid
// totals, reconcile, publish and persist.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/pvoutput"
	"github.com/pvrelay/pvrelay/pkg/reconcile"
	"github.com/pvrelay/pvrelay/pkg/storage"
	"github.com/pvrelay/pvrelay/pkg/types"
)

const (
	defaultInterval       = 5 * time.Minute
	defaultFailureBackoff = time.Minute
)

// SnapshotReader samples the inverter. A failed read returns an offline
// snapshot rather than an error.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context) types.Snapshot
}

// GridSource provides the day's grid energy counters and optional live clamp
// readings.
type GridSource interface {
	TodayTotals(ctx context.Context, day time.Time) (types.GridTotals, error)
	LivePower(ctx context.Context) (types.LivePower, bool)
}

// Publisher uploads a payload.
type Publisher interface {
	Publish(ctx context.Context, p pvoutput.Payload) error
}

// Thermometer returns the outside temperature when known.
type Thermometer interface {
	CurrentTemperature(ctx context.Context) (float64, bool)
}

// ReportSink receives every completed report.
type ReportSink interface {
	PublishReport(ctx context.Context, r types.Report) error
}

// Outcome summarises one cycle.
type Outcome struct {
	Online     bool
	Published  bool
	StateSaved bool
	Report     types.Report
}

// Controller owns the polling loop.
type Controller struct {
	reader    SnapshotReader
	grid      GridSource
	publisher Publisher
	weather   Thermometer
	store     storage.Store
	sinks     []ReportSink

	interval       time.Duration
	failureBackoff time.Duration
	loc            *time.Location

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu         sync.Mutex
	lastReport *types.Report
	lastCycle  time.Time
}

// New returns a Controller with the default interval and backoff in the
// local time zone.
func New(reader SnapshotReader, grid GridSource, publisher Publisher, weather Thermometer, store storage.Store, sinks ...ReportSink) *Controller {
	return &Controller{
		reader:         reader,
		grid:           grid,
		publisher:      publisher,
		weather:        weather,
		store:          store,
		sinks:          sinks,
		interval:       defaultInterval,
		failureBackoff: defaultFailureBackoff,
		loc:            time.Local,
		now:            time.Now,
		sleep:          sleepContext,
	}
}

// Cycle runs one poll at now.
func (c *Controller) Cycle(ctx context.Context, now time.Time) Outcome {
	ctx = log.WithAttrs(ctx, slog.Time("cycle", now))

	// 1. Outside temperature
	var outsideTemp *float64
	if c.weather != nil {
		if temp, ok := c.weather.CurrentTemperature(ctx); ok {
			outsideTemp = &temp
		}
	}

	// 2. Inverter
	snap := c.reader.ReadSnapshot(ctx)
	if !snap.Online() {
		// nothing is reconciled or saved, so prev stays the delta base
		log.Ctx(ctx).WarnContext(ctx, "inverter offline, skipping cycle", slog.Duration("backoff", c.failureBackoff))
		c.mu.Lock()
		c.lastCycle = now
		c.mu.Unlock()
		return Outcome{Online: false}
	}

	// 3. Grid totals; unavailable totals count as zero for this cycle
	totals, err := c.grid.TodayTotals(ctx, now)
	totalsOK := err == nil
	if !totalsOK {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get grid totals", slog.Any("error", err))
		totals = types.GridTotals{}
	}

	// 4. Previous state
	prev, err := c.store.LoadState(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to load reconciliation state", slog.Any("error", err))
		prev = nil
	}

	// 5. Reconcile; zeroed totals must not be compared against prev
	base := prev
	if !totalsOK {
		base = nil
	}
	report, state := reconcile.Reconcile(now, snap, totals.ImportedKWH, totals.ExportedKWH, base)
	report.OutsideTempC = outsideTemp
	if live, ok := c.grid.LivePower(ctx); ok {
		report.Live = &live
	}
	if report.StaleStateDropped {
		log.Ctx(ctx).InfoContext(ctx, "discarded reconciliation state from a previous day", slog.String("date", prev.Date))
	}

	// 6. Publish
	payload := pvoutput.BuildPayload(report)
	if err := c.publisher.Publish(ctx, payload); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to publish status", slog.Any("error", err))
	} else {
		report.Published = true
	}

	// 7. Persist regardless of the upload result. Without grid totals the
	// stored state stays as it was so the next cycle derives over the gap.
	out := Outcome{Online: true, Published: report.Published, Report: report}
	if !totalsOK {
		log.Ctx(ctx).WarnContext(ctx, "keeping previous reconciliation state, grid totals unavailable")
	} else if err := c.store.SaveState(ctx, state); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save reconciliation state", slog.Any("error", err))
	} else {
		out.StateSaved = true
	}

	log.Ctx(ctx).InfoContext(ctx, "cycle complete",
		slog.String("status", snap.Status.String()),
		slog.Float64("acPowerW", snap.ACPowerW),
		slog.Float64("acEnergyTodayKWH", snap.ACEnergyTodayKWH),
		slog.Float64("importedKWH", report.ImportedKWH),
		slog.Float64("exportedKWH", report.ExportedKWH),
		slog.Float64("consumptionKWH", report.ConsumptionKWH),
		slog.Float64("gridPowerW", report.GridPowerW),
		slog.String("gridPowerSource", string(report.GridPowerSource)),
		slog.Bool("published", report.Published),
	)

	c.mu.Lock()
	c.lastReport = &report
	c.lastCycle = now
	c.mu.Unlock()

	// 8. Sinks
	for _, sink := range c.sinks {
		if err := sink.PublishReport(ctx, report); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish report to sink", slog.Any("error", err))
		}
	}

	return out
}

// Run polls until ctx is cancelled. After a successful cycle it waits for the
// next interval boundary; after an inverter failure it waits the failure
// backoff.
func (c *Controller) Run(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "controller started",
		slog.Duration("interval", c.interval),
		slog.String("timezone", c.loc.String()),
	)
	for {
		out := c.Cycle(ctx, c.now().In(c.loc))

		wait := c.failureBackoff
		if out.Online {
			now := c.now().In(c.loc)
			wait = NextBoundary(now, c.interval).Sub(now)
		}
		log.Ctx(ctx).DebugContext(ctx, "waiting for next cycle", slog.Duration("wait", wait))
		if err := c.sleep(ctx, wait); err != nil {
			log.Ctx(ctx).InfoContext(ctx, "controller stopped")
			return nil
		}
	}
}

// NextBoundary returns the first multiple of interval after local midnight
// that is strictly after now.
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	n := now.Sub(midnight)/interval + 1
	return midnight.Add(n * interval)
}

// LastReport returns the most recent completed report and the time of the
// last cycle, online or not. The report is nil before the first online cycle.
func (c *Controller) LastReport() (*types.Report, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastReport == nil {
		return nil, c.lastCycle
	}
	r := *c.lastReport
	return &r, c.lastCycle
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
