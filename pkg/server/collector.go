package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements prometheus.Collector over the last report.
type Collector struct {
	source ReportSource

	lastCycle     *prometheus.Desc
	status        *prometheus.Desc
	pvPower       *prometheus.Desc
	pvVoltage     *prometheus.Desc
	acPower       *prometheus.Desc
	acVoltage     *prometheus.Desc
	acEnergyToday *prometheus.Desc
	acEnergyTotal *prometheus.Desc
	inverterTemp  *prometheus.Desc
	gridPower     *prometheus.Desc
	imported      *prometheus.Desc
	exported      *prometheus.Desc
	consumption   *prometheus.Desc
	outsideTemp   *prometheus.Desc
	livePower     *prometheus.Desc
	uploadSuccess *prometheus.Desc
}

// NewCollector creates a collector reading from source on every scrape.
func NewCollector(source ReportSource) *Collector {
	return &Collector{
		source: source,
		lastCycle: prometheus.NewDesc(
			"pvrelay_last_cycle_timestamp_seconds",
			"Unix time of the last polling cycle",
			nil, nil,
		),
		status: prometheus.NewDesc(
			"pvrelay_inverter_status",
			"Inverter status register (-1 unknown, 0 waiting, 1 normal, 2 fault)",
			[]string{"state"}, nil,
		),
		pvPower: prometheus.NewDesc(
			"pvrelay_pv_power_watts",
			"DC power from the PV strings",
			nil, nil,
		),
		pvVoltage: prometheus.NewDesc(
			"pvrelay_pv_voltage_volts",
			"Summed PV string voltage",
			nil, nil,
		),
		acPower: prometheus.NewDesc(
			"pvrelay_ac_power_watts",
			"Inverter AC output power",
			nil, nil,
		),
		acVoltage: prometheus.NewDesc(
			"pvrelay_ac_voltage_volts",
			"Inverter AC voltage",
			nil, nil,
		),
		acEnergyToday: prometheus.NewDesc(
			"pvrelay_ac_energy_today_kwh",
			"Inverter AC energy generated today",
			nil, nil,
		),
		acEnergyTotal: prometheus.NewDesc(
			"pvrelay_ac_energy_total_kwh",
			"Inverter lifetime AC energy",
			nil, nil,
		),
		inverterTemp: prometheus.NewDesc(
			"pvrelay_inverter_temperature_celsius",
			"Inverter temperature",
			nil, nil,
		),
		gridPower: prometheus.NewDesc(
			"pvrelay_grid_power_watts",
			"Power to grid, export positive",
			[]string{"source"}, nil,
		),
		imported: prometheus.NewDesc(
			"pvrelay_grid_imported_kwh",
			"Energy imported from the grid today",
			nil, nil,
		),
		exported: prometheus.NewDesc(
			"pvrelay_grid_exported_kwh",
			"Energy exported to the grid today",
			nil, nil,
		),
		consumption: prometheus.NewDesc(
			"pvrelay_consumption_kwh",
			"Energy consumed by the house today",
			nil, nil,
		),
		outsideTemp: prometheus.NewDesc(
			"pvrelay_outside_temperature_celsius",
			"Outside temperature",
			nil, nil,
		),
		livePower: prometheus.NewDesc(
			"pvrelay_live_power_watts",
			"Live clamp power, grid import positive",
			[]string{"circuit"}, nil,
		),
		uploadSuccess: prometheus.NewDesc(
			"pvrelay_upload_success",
			"Whether the last report was published",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lastCycle
	ch <- c.status
	ch <- c.pvPower
	ch <- c.pvVoltage
	ch <- c.acPower
	ch <- c.acVoltage
	ch <- c.acEnergyToday
	ch <- c.acEnergyTotal
	ch <- c.inverterTemp
	ch <- c.gridPower
	ch <- c.imported
	ch <- c.exported
	ch <- c.consumption
	ch <- c.outsideTemp
	ch <- c.livePower
	ch <- c.uploadSuccess
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	report, lastCycle := c.source.LastReport()
	if !lastCycle.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastCycle, prometheus.GaugeValue, float64(lastCycle.Unix()))
	}
	if report == nil {
		return
	}

	snap := report.Snapshot
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	gauge(c.status, float64(snap.Status), snap.Status.String())
	gauge(c.pvPower, snap.PVPowerW)
	gauge(c.pvVoltage, snap.PVVoltageV)
	gauge(c.acPower, snap.ACPowerW)
	gauge(c.acVoltage, snap.ACVoltageV)
	gauge(c.acEnergyToday, snap.ACEnergyTodayKWH)
	gauge(c.acEnergyTotal, snap.ACEnergyTotalKWH)
	gauge(c.inverterTemp, snap.TemperatureC)
	gauge(c.gridPower, report.GridPowerW, string(report.GridPowerSource))
	gauge(c.imported, report.ImportedKWH)
	gauge(c.exported, report.ExportedKWH)
	gauge(c.consumption, report.ConsumptionKWH)
	if report.OutsideTempC != nil {
		gauge(c.outsideTemp, *report.OutsideTempC)
	}
	if report.Live != nil {
		gauge(c.livePower, float64(report.Live.GridW), "grid")
		gauge(c.livePower, float64(report.Live.GenerationW), "generation")
		gauge(c.livePower, float64(report.Live.HouseW), "house")
	}

	uploaded := 0.0
	if report.Published {
		uploaded = 1.0
	}
	gauge(c.uploadSuccess, uploaded)
}
