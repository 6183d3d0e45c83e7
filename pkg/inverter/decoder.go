package inverter

import (
	"time"

	"github.com/pvrelay/pvrelay/pkg/types"
)

// DefaultScale divides raw register values when a term does not set one.
const DefaultScale = 10.0

// Encoding describes how many registers make up one value.
type Encoding string

const (
	Single Encoding = "single"
	Double Encoding = "double"
)

// Field names a physical quantity in a Snapshot.
type Field string

const (
	FieldPVPower       Field = "pvPower"
	FieldPVVoltage     Field = "pvVoltage"
	FieldPVEnergyToday Field = "pvEnergyToday"
	FieldACPower       Field = "acPower"
	FieldACVoltage     Field = "acVoltage"
	FieldACEnergyToday Field = "acEnergyToday"
	FieldACEnergyTotal Field = "acEnergyTotal"
	FieldTemperature   Field = "temperature"
	FieldGridPower     Field = "gridPower"
)

// Term is a single register read within a bank.
type Term struct {
	Bank     int      `json:"bank"`
	Offset   int      `json:"offset"`
	Encoding Encoding `json:"encoding"`
	Scale    float64  `json:"scale,omitempty"`
}

// Bank is one contiguous register read.
type Bank struct {
	Start uint16 `json:"start"`
	Count uint16 `json:"count"`
}

// Layout maps the registers of one inverter protocol version onto Snapshot
// fields. A field is the sum of its terms.
type Layout struct {
	Name   string           `json:"name"`
	Banks  []Bank           `json:"banks"`
	Fields map[Field][]Term `json:"fields"`
}

// DecodeSingle returns regs[offset]/scale, or 0 when offset is out of range.
func DecodeSingle(regs []uint16, offset int, scale float64) float64 {
	if offset < 0 || offset >= len(regs) {
		return 0
	}
	return float64(regs[offset]) / normalizeScale(scale)
}

// DecodeDouble composes regs[offset] and regs[offset+1] big-endian and divides
// by scale. Either register being out of range yields 0.
func DecodeDouble(regs []uint16, offset int, scale float64) float64 {
	if offset < 0 || offset+1 >= len(regs) {
		return 0
	}
	v := uint32(regs[offset])<<16 | uint32(regs[offset+1])
	return float64(v) / normalizeScale(scale)
}

func normalizeScale(scale float64) float64 {
	if scale == 0 {
		return DefaultScale
	}
	return scale
}

func (t Term) decode(banks [][]uint16) float64 {
	if t.Bank < 0 || t.Bank >= len(banks) {
		return 0
	}
	if t.Encoding == Double {
		return DecodeDouble(banks[t.Bank], t.Offset, t.Scale)
	}
	return DecodeSingle(banks[t.Bank], t.Offset, t.Scale)
}

func (l Layout) field(f Field, banks [][]uint16) float64 {
	var sum float64
	for _, t := range l.Fields[f] {
		sum += t.decode(banks)
	}
	return sum
}

// Decode converts raw register banks into a Snapshot. banks is indexed the
// same way as l.Banks; a nil or short bank decodes its fields to 0. Status is
// register 0 of the first bank, or unknown when that bank is empty.
func (l Layout) Decode(ts time.Time, banks [][]uint16) types.Snapshot {
	status := types.StatusUnknown
	if len(banks) > 0 && len(banks[0]) > 0 {
		status = types.InverterStatus(banks[0][0])
	}
	return types.Snapshot{
		Timestamp:        ts,
		Status:           status,
		PVPowerW:         l.field(FieldPVPower, banks),
		PVVoltageV:       l.field(FieldPVVoltage, banks),
		PVEnergyTodayKWH: l.field(FieldPVEnergyToday, banks),
		ACPowerW:         l.field(FieldACPower, banks),
		ACVoltageV:       l.field(FieldACVoltage, banks),
		ACEnergyTodayKWH: l.field(FieldACEnergyToday, banks),
		ACEnergyTotalKWH: l.field(FieldACEnergyTotal, banks),
		TemperatureC:     l.field(FieldTemperature, banks),
		GridPowerW:       l.field(FieldGridPower, banks),
	}
}
