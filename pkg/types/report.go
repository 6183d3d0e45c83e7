package types

import "time"

// GridPowerSource records where the reported grid power came from.
type GridPowerSource string

const (
	GridPowerSourceNone    GridPowerSource = "none"
	GridPowerSourceDirect  GridPowerSource = "direct"
	GridPowerSourceDerived GridPowerSource = "derived"
)

// GridTotals are the cumulative energy counters for the current day.
type GridTotals struct {
	ImportedKWH  float64 `json:"importedKWH"`
	ExportedKWH  float64 `json:"exportedKWH"`
	GeneratedKWH float64 `json:"generatedKWH"`
}

// LivePower are instantaneous clamp readings. GridW is import positive.
type LivePower struct {
	GridW       int `json:"gridW"`
	GenerationW int `json:"generationW"`
	HouseW      int `json:"houseW"`
}

// Report is the reconciled result of one cycle.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`

	ImportedKWH    float64 `json:"importedKWH"`
	ExportedKWH    float64 `json:"exportedKWH"`
	ConsumptionKWH float64 `json:"consumptionKWH"`

	// GridPowerW is export positive.
	GridPowerW        float64         `json:"gridPowerW"`
	GridPowerSource   GridPowerSource `json:"gridPowerSource"`
	DerivedGridPowerW *float64        `json:"derivedGridPowerW,omitempty"`
	StaleStateDropped bool            `json:"staleStateDropped,omitempty"`

	Live         *LivePower `json:"live,omitempty"`
	OutsideTempC *float64   `json:"outsideTempC,omitempty"`

	Published bool `json:"published"`
}
