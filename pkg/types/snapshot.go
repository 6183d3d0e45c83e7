package types

import (
	"strconv"
	"time"
)

// InverterStatus is the run state reported in register 0. Device-specific
// codes outside the known set pass through unchanged.
type InverterStatus int

const (
	StatusUnknown InverterStatus = -1
	StatusWaiting InverterStatus = 0
	StatusNormal  InverterStatus = 1
	StatusFault   InverterStatus = 2
)

func (s InverterStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusWaiting:
		return "waiting"
	case StatusNormal:
		return "normal"
	case StatusFault:
		return "fault"
	default:
		return "code-" + strconv.Itoa(int(s))
	}
}

// Snapshot is one decoded inverter sample.
type Snapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    InverterStatus `json:"status"`

	PVPowerW         float64 `json:"pvPowerW"`
	PVVoltageV       float64 `json:"pvVoltageV"`
	PVEnergyTodayKWH float64 `json:"pvEnergyTodayKWH"`
	ACPowerW         float64 `json:"acPowerW"`
	ACVoltageV       float64 `json:"acVoltageV"`
	ACEnergyTodayKWH float64 `json:"acEnergyTodayKWH"`
	ACEnergyTotalKWH float64 `json:"acEnergyTotalKWH"`
	TemperatureC     float64 `json:"temperatureC"`
	// GridPowerW is the directly measured power to grid, 0 when the register
	// is unavailable.
	GridPowerW       float64 `json:"gridPowerW"`
}

// Online reports whether the snapshot came from a successful read.
func (s Snapshot) Online() bool {
	return s.Status != StatusUnknown
}

// OfflineSnapshot is returned when the device could not be read.
func OfflineSnapshot(ts time.Time) Snapshot {
	return Snapshot{Timestamp: ts, Status: StatusUnknown}
}
