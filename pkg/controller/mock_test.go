package controller

import (
	"context"
	"time"

	"github.com/pvrelay/pvrelay/pkg/pvoutput"
	"github.com/pvrelay/pvrelay/pkg/types"
	"github.com/stretchr/testify/mock"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ReadSnapshot(ctx context.Context) types.Snapshot {
	args := m.Called(ctx)
	return args.Get(0).(types.Snapshot)
}

type mockGrid struct {
	mock.Mock
}

func (m *mockGrid) TodayTotals(ctx context.Context, day time.Time) (types.GridTotals, error) {
	args := m.Called(ctx, day)
	return args.Get(0).(types.GridTotals), args.Error(1)
}

func (m *mockGrid) LivePower(ctx context.Context) (types.LivePower, bool) {
	args := m.Called(ctx)
	return args.Get(0).(types.LivePower), args.Bool(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, p pvoutput.Payload) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type mockThermometer struct {
	mock.Mock
}

func (m *mockThermometer) CurrentTemperature(ctx context.Context) (float64, bool) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Bool(1)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) PublishReport(ctx context.Context, r types.Report) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}
