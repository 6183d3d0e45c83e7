package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pvrelay/pvrelay/pkg/pvoutput"
	"github.com/pvrelay/pvrelay/pkg/storage/storagemock"
	"github.com/pvrelay/pvrelay/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reader    *mockReader
	grid      *mockGrid
	publisher *mockPublisher
	weather   *mockThermometer
	store     *storagemock.MockStore
	sink      *mockSink
	c         *Controller
}

func newFixture() *fixture {
	f := &fixture{
		reader:    &mockReader{},
		grid:      &mockGrid{},
		publisher: &mockPublisher{},
		weather:   &mockThermometer{},
		store:     &storagemock.MockStore{},
		sink:      &mockSink{},
	}
	f.c = New(f.reader, f.grid, f.publisher, f.weather, f.store, f.sink)
	f.c.loc = time.UTC
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.reader.AssertExpectations(t)
	f.grid.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
	f.weather.AssertExpectations(t)
	f.store.AssertExpectations(t)
	f.sink.AssertExpectations(t)
}

func onlineSnapshot(ts time.Time) types.Snapshot {
	return types.Snapshot{
		Timestamp:        ts,
		Status:           types.StatusNormal,
		PVPowerW:         2100,
		PVVoltageV:       580.2,
		ACPowerW:         2000,
		ACVoltageV:       240.1,
		ACEnergyTodayKWH: 10,
		ACEnergyTotalKWH: 1234.5,
		TemperatureC:     35.4,
	}
}

func TestCycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)

	t.Run("DerivesGridPowerAndPublishes", func(t *testing.T) {
		f := newFixture()
		f.weather.On("CurrentTemperature", mock.Anything).Return(18.4, true)
		f.reader.On("ReadSnapshot", mock.Anything).Return(onlineSnapshot(now))
		f.grid.On("TodayTotals", mock.Anything, now).Return(types.GridTotals{ImportedKWH: 2, ExportedKWH: 3.0833}, nil)
		f.grid.On("LivePower", mock.Anything).Return(types.LivePower{}, false)
		f.store.On("LoadState", mock.Anything).Return(&types.ReconciliationState{
			Date:        "2024-06-01",
			ImportedKWH: 2,
			ExportedKWH: 3,
			Timestamp:   now.Add(-5 * time.Minute),
		}, nil)
		f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p pvoutput.Payload) bool {
			return p.ConsumptionWH == 8917 && p.ExportW == 1000 && p.OutsideTempC != nil && *p.OutsideTempC == 18.4
		})).Return(nil)
		f.store.On("SaveState", mock.Anything, mock.MatchedBy(func(s types.ReconciliationState) bool {
			return s.Date == "2024-06-01" && s.ExportedKWH == 3.0833 && s.Timestamp.Equal(now) && s.InverterACTodayKWH == 10
		})).Return(nil)
		f.sink.On("PublishReport", mock.Anything, mock.Anything).Return(nil)

		out := f.c.Cycle(ctx, now)
		assert.True(t, out.Online)
		assert.True(t, out.Published)
		assert.True(t, out.StateSaved)
		assert.Equal(t, types.GridPowerSourceDerived, out.Report.GridPowerSource)
		assert.InDelta(t, 999.6, out.Report.GridPowerW, 0.01)

		last, at := f.c.LastReport()
		require.NotNil(t, last)
		assert.True(t, last.Published)
		assert.Equal(t, now, at)
		f.assertExpectations(t)
	})

	t.Run("OfflineSkipsEverything", func(t *testing.T) {
		f := newFixture()
		f.weather.On("CurrentTemperature", mock.Anything).Return(0.0, false)
		f.reader.On("ReadSnapshot", mock.Anything).Return(types.OfflineSnapshot(now))

		out := f.c.Cycle(ctx, now)
		assert.False(t, out.Online)
		assert.False(t, out.Published)
		f.grid.AssertNotCalled(t, "TodayTotals", mock.Anything, mock.Anything)
		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		f.store.AssertNotCalled(t, "SaveState", mock.Anything, mock.Anything)

		last, at := f.c.LastReport()
		assert.Nil(t, last)
		assert.Equal(t, now, at)
		f.assertExpectations(t)
	})

	t.Run("PublishFailureStillSaves", func(t *testing.T) {
		f := newFixture()
		f.weather.On("CurrentTemperature", mock.Anything).Return(0.0, false)
		f.reader.On("ReadSnapshot", mock.Anything).Return(onlineSnapshot(now))
		f.grid.On("TodayTotals", mock.Anything, now).Return(types.GridTotals{}, nil)
		f.grid.On("LivePower", mock.Anything).Return(types.LivePower{GridW: -500, GenerationW: 1900, HouseW: 1400}, true)
		f.store.On("LoadState", mock.Anything).Return(nil, errors.New("corrupt"))
		f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p pvoutput.Payload) bool {
			return p.GenerationW == 1900 && p.ExportW == 500 && p.OutsideTempC == nil
		})).Return(pvoutput.ErrPublishFailed)
		f.store.On("SaveState", mock.Anything, mock.Anything).Return(nil)
		f.sink.On("PublishReport", mock.Anything, mock.Anything).Return(errors.New("broker down"))

		out := f.c.Cycle(ctx, now)
		assert.True(t, out.Online)
		assert.False(t, out.Published)
		assert.True(t, out.StateSaved)
		assert.Equal(t, 10.0, out.Report.ConsumptionKWH)
		assert.Equal(t, types.GridPowerSourceNone, out.Report.GridPowerSource)
		require.NotNil(t, out.Report.Live)
		f.assertExpectations(t)
	})

	t.Run("TotalsErrorDoesNotDerive", func(t *testing.T) {
		f := newFixture()
		f.weather.On("CurrentTemperature", mock.Anything).Return(0.0, false)
		f.reader.On("ReadSnapshot", mock.Anything).Return(onlineSnapshot(now))
		f.grid.On("TodayTotals", mock.Anything, now).Return(types.GridTotals{}, errors.New("status 401"))
		f.grid.On("LivePower", mock.Anything).Return(types.LivePower{}, false)
		f.store.On("LoadState", mock.Anything).Return(&types.ReconciliationState{
			Date:        "2024-06-01",
			ImportedKWH: 2.5,
			ExportedKWH: 4,
			Timestamp:   now.Add(-5 * time.Minute),
		}, nil)
		f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p pvoutput.Payload) bool {
			return p.ExportW == 0
		})).Return(nil)
		f.sink.On("PublishReport", mock.Anything, mock.Anything).Return(nil)

		out := f.c.Cycle(ctx, now)
		assert.True(t, out.Published)
		assert.False(t, out.StateSaved, "previous state is kept as the delta base")
		assert.Equal(t, types.GridPowerSourceNone, out.Report.GridPowerSource)
		assert.Nil(t, out.Report.DerivedGridPowerW)
		assert.Equal(t, 0.0, out.Report.GridPowerW)
		assert.Equal(t, 10.0, out.Report.ConsumptionKWH, "grid totals fall back to zero")
		f.store.AssertNotCalled(t, "SaveState", mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("TotalsErrorUsesDirectRegister", func(t *testing.T) {
		f := newFixture()
		snap := onlineSnapshot(now)
		snap.GridPowerW = 750
		f.weather.On("CurrentTemperature", mock.Anything).Return(0.0, false)
		f.reader.On("ReadSnapshot", mock.Anything).Return(snap)
		f.grid.On("TodayTotals", mock.Anything, now).Return(types.GridTotals{}, errors.New("timeout"))
		f.grid.On("LivePower", mock.Anything).Return(types.LivePower{}, false)
		f.store.On("LoadState", mock.Anything).Return(&types.ReconciliationState{
			Date:        "2024-06-01",
			ImportedKWH: 2.5,
			ExportedKWH: 4,
			Timestamp:   now.Add(-5 * time.Minute),
		}, nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
		f.sink.On("PublishReport", mock.Anything, mock.Anything).Return(nil)

		out := f.c.Cycle(ctx, now)
		assert.Equal(t, types.GridPowerSourceDirect, out.Report.GridPowerSource)
		assert.Equal(t, 750.0, out.Report.GridPowerW)
		f.assertExpectations(t)
	})

	t.Run("SaveFailure", func(t *testing.T) {
		f := newFixture()
		f.weather.On("CurrentTemperature", mock.Anything).Return(0.0, false)
		f.reader.On("ReadSnapshot", mock.Anything).Return(onlineSnapshot(now))
		f.grid.On("TodayTotals", mock.Anything, now).Return(types.GridTotals{ImportedKWH: 1}, nil)
		f.grid.On("LivePower", mock.Anything).Return(types.LivePower{}, false)
		f.store.On("LoadState", mock.Anything).Return(nil, nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
		f.store.On("SaveState", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		f.sink.On("PublishReport", mock.Anything, mock.Anything).Return(nil)

		out := f.c.Cycle(ctx, now)
		assert.True(t, out.Published)
		assert.False(t, out.StateSaved)
		f.assertExpectations(t)
	})

	t.Run("StaleStateDropped", func(t *testing.T) {
		f := newFixture()
		f.weather.On("CurrentTemperature", mock.Anything).Return(0.0, false)
		f.reader.On("ReadSnapshot", mock.Anything).Return(onlineSnapshot(now))
		f.grid.On("TodayTotals", mock.Anything, now).Return(types.GridTotals{ImportedKWH: 1}, nil)
		f.grid.On("LivePower", mock.Anything).Return(types.LivePower{}, false)
		f.store.On("LoadState", mock.Anything).Return(&types.ReconciliationState{
			Date:      "2024-05-31",
			Timestamp: now.Add(-12 * time.Hour),
		}, nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
		f.store.On("SaveState", mock.Anything, mock.Anything).Return(nil)
		f.sink.On("PublishReport", mock.Anything, mock.Anything).Return(nil)

		out := f.c.Cycle(ctx, now)
		assert.True(t, out.Report.StaleStateDropped)
		assert.Nil(t, out.Report.DerivedGridPowerW)
		f.assertExpectations(t)
	})
}

func TestRun(t *testing.T) {
	t.Run("WaitsForBoundary", func(t *testing.T) {
		f := newFixture()
		clock := time.Date(2024, 6, 1, 12, 3, 20, 0, time.UTC)
		f.c.now = func() time.Time { return clock }

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var waits []time.Duration
		f.c.sleep = func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			if len(waits) == 2 {
				cancel()
				return context.Canceled
			}
			clock = clock.Add(d)
			return nil
		}

		f.weather.On("CurrentTemperature", mock.Anything).Return(0.0, false)
		f.reader.On("ReadSnapshot", mock.Anything).Return(onlineSnapshot(clock)).Once()
		f.reader.On("ReadSnapshot", mock.Anything).Return(types.OfflineSnapshot(clock)).Once()
		f.grid.On("TodayTotals", mock.Anything, mock.Anything).Return(types.GridTotals{}, nil)
		f.grid.On("LivePower", mock.Anything).Return(types.LivePower{}, false)
		f.store.On("LoadState", mock.Anything).Return(nil, nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
		f.store.On("SaveState", mock.Anything, mock.Anything).Return(nil)
		f.sink.On("PublishReport", mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, f.c.Run(ctx))
		assert.Equal(t, []time.Duration{100 * time.Second, defaultFailureBackoff}, waits)
		f.assertExpectations(t)
	})
}

func TestNextBoundary(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	tests := []struct {
		name     string
		now      time.Time
		interval time.Duration
		want     time.Time
	}{
		{
			name:     "MidInterval",
			now:      time.Date(2024, 6, 1, 12, 3, 20, 0, loc),
			interval: 5 * time.Minute,
			want:     time.Date(2024, 6, 1, 12, 5, 0, 0, loc),
		},
		{
			name:     "ExactlyOnBoundary",
			now:      time.Date(2024, 6, 1, 12, 5, 0, 0, loc),
			interval: 5 * time.Minute,
			want:     time.Date(2024, 6, 1, 12, 10, 0, 0, loc),
		},
		{
			name:     "CrossesMidnight",
			now:      time.Date(2024, 6, 1, 23, 58, 0, 0, loc),
			interval: 5 * time.Minute,
			want:     time.Date(2024, 6, 2, 0, 0, 0, 0, loc),
		},
		{
			name:     "OddInterval",
			now:      time.Date(2024, 6, 1, 0, 10, 0, 0, loc),
			interval: 7 * time.Minute,
			want:     time.Date(2024, 6, 1, 0, 14, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextBoundary(tt.now, tt.interval)), "got %s", NextBoundary(tt.now, tt.interval))
		})
	}
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
