package controller

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/pvrelay/pvrelay/pkg/storage"
)

// Configured sets up a Controller over the given collaborators.
func Configured(reader SnapshotReader, grid GridSource, publisher Publisher, weather Thermometer, store storage.Store, sinks ...ReportSink) *Controller {
	interval := lflag.Duration("interval", defaultInterval, "Polling interval, aligned to local midnight")
	backoff := lflag.Duration("failure-backoff", defaultFailureBackoff, "Wait after an inverter read failure")
	tz := lflag.String("timezone", "Local", "IANA time zone used for dates and interval alignment")

	c := New(reader, grid, publisher, weather, store, sinks...)

	lflag.Do(func() {
		if *interval <= 0 || *backoff <= 0 {
			panic("interval and failure-backoff must be positive")
		}
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			panic(fmt.Errorf("failed to load timezone %q: %w", *tz, err))
		}
		c.interval = *interval
		c.failureBackoff = *backoff
		c.loc = loc
	})

	return c
}
