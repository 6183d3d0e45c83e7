package inverter

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up a Reader backed by a ModbusLink from flags.
func Configured() *Reader {
	address := lflag.String("inverter-address", "/dev/ttyUSB0", "Serial device of the inverter, or tcp://host:port for a Modbus TCP gateway")
	baud := lflag.Int("inverter-baud", 9600, "Serial baud rate")
	slaveID := lflag.Int("inverter-slave-id", 1, "Modbus slave/unit id of the inverter")
	timeout := lflag.Duration("inverter-timeout", time.Second, "Timeout for each register read")
	layoutName := lflag.String("inverter-layout", GrowattLayout.Name, "Built-in register layout (available: growatt, growatt-legacy)")
	layoutJSON := lflag.String("inverter-layout-json", "", "JSON register layout, overrides inverter-layout")

	link := &ModbusLink{}
	r := NewReader(link, Layout{})

	lflag.Do(func() {
		if *slaveID < 0 || *slaveID > 247 {
			panic(fmt.Sprintf("invalid inverter-slave-id: %d", *slaveID))
		}
		link.Address = *address
		link.BaudRate = *baud
		link.SlaveID = byte(*slaveID)
		link.Timeout = *timeout

		var err error
		if *layoutJSON != "" {
			r.layout, err = ParseLayout([]byte(*layoutJSON))
		} else {
			r.layout, err = LookupLayout(*layoutName)
		}
		if err != nil {
			panic(fmt.Sprintf("inverter layout: %v", err))
		}
	})

	return r
}
