package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/storage"
	"github.com/pvrelay/pvrelay/pkg/types"
)

// withDefaultProvider selects the firestore provider unless args already
// name one.
func withDefaultProvider(args []string) []string {
	for _, a := range args[1:] {
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == "storage-provider" || strings.HasPrefix(name, "storage-provider=") {
			return args
		}
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], "--storage-provider=firestore")
	return append(out, args[1:]...)
}

// seed writes a reconciliation state into the configured store so the next
// cycle derives grid power against it. Defaults to the firestore provider on
// the local emulator.
func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	os.Args = withDefaultProvider(os.Args)
	s := storage.Configured()
	age := lflag.Duration("seed-age", 5*time.Minute, "How long ago the seeded state was taken")
	imported := lflag.Float64("seed-imported-kwh", 2.5, "Imported energy today in kWh")
	exported := lflag.Float64("seed-exported-kwh", 4.0, "Exported energy today in kWh")
	acToday := lflag.Float64("seed-ac-today-kwh", 12.0, "Inverter AC energy today in kWh")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	ts := time.Now().Add(-*age)
	state := types.ReconciliationState{
		Date:               types.DateKey(ts),
		ConsumptionKWH:     max(*acToday+*imported-*exported, 0),
		InverterACTodayKWH: *acToday,
		ImportedKWH:        *imported,
		ExportedKWH:        *exported,
		Timestamp:          ts,
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding reconciliation state",
		slog.String("date", state.Date),
		slog.Time("timestamp", state.Timestamp),
		slog.Float64("consumptionKWH", state.ConsumptionKWH),
	)
	if err := s.SaveState(ctx, state); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed state", slog.Any("error", err))
		os.Exit(1)
	}

	prev, err := s.LoadState(ctx)
	if err != nil || prev == nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read back seeded state", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "done", slog.Bool("sameDay", prev.SameDay(time.Now())))
}
