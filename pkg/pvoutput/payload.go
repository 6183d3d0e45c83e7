package pvoutput

import (
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/pvrelay/pvrelay/pkg/types"
)

// Payload is one addstatus upload. Energies are in Wh or kWh as noted,
// powers in W.
type Payload struct {
	Time   time.Time
	Online bool

	EnergyTodayWH     int // v1
	GenerationW       int // v2, v10
	ConsumptionWH     int // v3
	OutsideTempC      *float64
	PVVoltageV        float64
	EnergyTodayKWH    float64
	EnergyLifetimeKWH float64
	ExportW           int // v9
	ACVoltageV        float64
	InverterTempC     float64
}

// BuildPayload maps a report onto the PVOutput channels. Live harvi readings
// take precedence over the inverter for generation and export power.
func BuildPayload(r types.Report) Payload {
	snap := r.Snapshot
	p := Payload{
		Time:          r.Timestamp,
		Online:        snap.Online(),
		ConsumptionWH: roundInt(r.ConsumptionKWH * 1000),
		OutsideTempC:  r.OutsideTempC,
	}

	if p.Online {
		p.EnergyTodayWH = roundInt(snap.ACEnergyTodayKWH * 1000)
		p.PVVoltageV = snap.PVVoltageV
		p.EnergyTodayKWH = snap.ACEnergyTodayKWH
		p.EnergyLifetimeKWH = snap.ACEnergyTotalKWH
		p.ACVoltageV = snap.ACVoltageV
		p.InverterTempC = snap.TemperatureC
	}

	switch {
	case r.Live != nil:
		p.GenerationW = r.Live.GenerationW
		p.ExportW = max(-r.Live.GridW, 0)
	default:
		if p.Online {
			p.GenerationW = roundInt(snap.ACPowerW)
		}
		p.ExportW = roundInt(r.GridPowerW)
	}
	return p
}

// Values renders the payload as the addstatus form.
func (p Payload) Values() url.Values {
	v := url.Values{}
	v.Set("d", p.Time.Format("20060102"))
	v.Set("t", p.Time.Format("15:04"))
	v.Set("v1", strconv.Itoa(p.EnergyTodayWH))
	v.Set("v2", strconv.Itoa(p.GenerationW))
	v.Set("v3", strconv.Itoa(p.ConsumptionWH))
	if p.OutsideTempC != nil {
		v.Set("v5", strconv.FormatFloat(*p.OutsideTempC, 'f', 1, 64))
	}
	v.Set("v6", p.reading(p.PVVoltageV, 1))
	v.Set("v7", p.reading(p.EnergyTodayKWH, 3))
	v.Set("v8", p.reading(p.EnergyLifetimeKWH, 3))
	v.Set("v9", strconv.Itoa(p.ExportW))
	v.Set("v10", strconv.Itoa(p.GenerationW))
	v.Set("v11", p.reading(p.ACVoltageV, 1))
	v.Set("v12", p.reading(p.InverterTempC, 1))
	return v
}

// reading formats an inverter value, or "0" when the inverter was offline.
func (p Payload) reading(f float64, prec int) string {
	if !p.Online {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', prec, 64)
}

func roundInt(f float64) int {
	return int(math.Round(f))
}
