package inverter

import (
	"context"
	"log/slog"
	"time"

	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/types"
)

// Reader polls the inverter over a Link and decodes the result.
type Reader struct {
	link   Link
	layout Layout
	now    func() time.Time
}

// NewReader returns a Reader for the given link and layout.
func NewReader(link Link, layout Layout) *Reader {
	return &Reader{
		link:   link,
		layout: layout,
		now:    time.Now,
	}
}

// Layout returns the register layout the reader decodes with.
func (r *Reader) Layout() Layout {
	return r.layout
}

// ReadSnapshot connects, reads every bank of the layout and decodes it. Each
// bank is read from the input registers first and from the holding registers
// if that fails. When nothing could be read the snapshot has StatusUnknown.
func (r *Reader) ReadSnapshot(ctx context.Context) types.Snapshot {
	ts := r.now()
	if err := r.link.Connect(); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to connect to inverter", slog.Any("error", err))
		return types.OfflineSnapshot(ts)
	}
	defer func() {
		if err := r.link.Close(); err != nil {
			log.Ctx(ctx).DebugContext(ctx, "failed to close inverter link", slog.Any("error", err))
		}
	}()

	banks := make([][]uint16, len(r.layout.Banks))
	var ok int
	for i, b := range r.layout.Banks {
		regs, err := r.link.ReadInputRegisters(b.Start, b.Count)
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "input register read failed, trying holding registers",
				slog.Int("bank", i),
				slog.Int("start", int(b.Start)),
				slog.Any("error", err),
			)
			regs, err = r.link.ReadHoldingRegisters(b.Start, b.Count)
		}
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "inverter register read failed",
				slog.Int("bank", i),
				slog.Int("start", int(b.Start)),
				slog.Int("count", int(b.Count)),
				slog.Any("error", err),
			)
			continue
		}
		banks[i] = regs
		ok++
	}
	if ok == 0 {
		return types.OfflineSnapshot(ts)
	}

	snap := r.layout.Decode(ts, banks)
	log.Ctx(ctx).DebugContext(ctx, "inverter snapshot",
		slog.String("status", snap.Status.String()),
		slog.Float64("pvW", snap.PVPowerW),
		slog.Float64("acW", snap.ACPowerW),
		slog.Float64("acTodayKWH", snap.ACEnergyTodayKWH),
		slog.Float64("gridW", snap.GridPowerW),
		slog.Int("banksRead", ok),
	)
	return snap
}
