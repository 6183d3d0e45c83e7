package myenergi

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/types"
)

const wsPerKWH = 3_600_000.0

// Site reads grid totals from a zappi's history and live clamp power from
// the harvi units of one account.
type Site struct {
	client           *Client
	zappiID          int
	harviGridSerial  int
	harviSolarSerial int
}

// ZappiIDFromUsername derives the zappi serial from the account identifier,
// which is either the bare serial or the serial prefixed with "Z".
func ZappiIDFromUsername(username string) (int, error) {
	s := strings.TrimSpace(username)
	if len(s) > 0 && (s[0] == 'Z' || s[0] == 'z') {
		s = s[1:]
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid zappi serial %q: %w", username, err)
	}
	return id, nil
}

// WSToKWH converts watt-seconds to kWh.
func WSToKWH(ws int64) float64 {
	return float64(ws) / wsPerKWH
}

// TodayTotals sums the hourly buckets of day into imported, exported and
// generated energy.
func (s *Site) TodayTotals(ctx context.Context, day time.Time) (types.GridTotals, error) {
	records, err := s.client.GetHourData(ctx, s.zappiID, day)
	if err != nil {
		return types.GridTotals{}, err
	}
	var totals types.GridTotals
	for _, r := range records {
		totals.ImportedKWH += WSToKWH(r.ImportWS)
		totals.ExportedKWH += WSToKWH(r.ExportWS)
		totals.GeneratedKWH += WSToKWH(r.GenPositiveWS)
	}
	log.Ctx(ctx).DebugContext(ctx, "myenergi day totals",
		slog.String("date", types.DateKey(day)),
		slog.Int("buckets", len(records)),
		slog.Float64("importedKWH", totals.ImportedKWH),
		slog.Float64("exportedKWH", totals.ExportedKWH),
		slog.Float64("generatedKWH", totals.GeneratedKWH),
	)
	return totals, nil
}

// LivePower returns the grid and generation clamp readings of the configured
// harvis. It returns false when either reading is unavailable.
func (s *Site) LivePower(ctx context.Context) (types.LivePower, bool) {
	if s.harviGridSerial == 0 || s.harviSolarSerial == 0 {
		return types.LivePower{}, false
	}
	status, err := s.client.GetStatus(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get myenergi status", slog.Any("error", err))
		return types.LivePower{}, false
	}
	grid := findDevice(status, "harvi", s.harviGridSerial)
	solar := findDevice(status, "harvi", s.harviSolarSerial)
	if grid == nil || solar == nil {
		log.Ctx(ctx).WarnContext(ctx, "harvi not found in myenergi status",
			slog.Bool("grid", grid != nil),
			slog.Bool("solar", solar != nil),
		)
		return types.LivePower{}, false
	}
	gridW := sumCTPower(grid)
	genW := sumCTPower(solar)
	return types.LivePower{
		GridW:       gridW,
		GenerationW: genW,
		HouseW:      genW + gridW,
	}, true
}

// findDevice searches the status groups for a device of class with serial.
func findDevice(status any, class string, serial int) map[string]any {
	groups, ok := status.([]any)
	if !ok {
		return nil
	}
	for _, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			continue
		}
		devices, ok := group[class].([]any)
		if !ok {
			continue
		}
		for _, d := range devices {
			dev, ok := d.(map[string]any)
			if !ok {
				continue
			}
			if sno, ok := toInt(dev["sno"]); ok && sno == serial {
				return dev
			}
		}
	}
	return nil
}

// sumCTPower adds the three clamp channels, skipping any that are missing.
func sumCTPower(dev map[string]any) int {
	var sum int
	for _, k := range []string{"ectp1", "ectp2", "ectp3"} {
		if v, ok := dev[k].(float64); ok {
			sum += int(v)
		}
	}
	return sum
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
