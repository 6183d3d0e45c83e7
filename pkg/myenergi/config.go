package myenergi

import (
	"fmt"
	"strconv"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up a Site for the account named by flags.
func Configured() *Site {
	username := lflag.RequiredString("myenergi-username", "myenergi hub serial used to log in (e.g. Z12345678)")
	password := lflag.RequiredString("myenergi-password", "myenergi API key for the hub")
	host := lflag.String("myenergi-host", DefaultHost, "Initial myenergi backend host")
	timeout := lflag.Duration("myenergi-timeout", defaultTimeout, "Timeout for each myenergi request")
	harviGrid := lflag.String("myenergi-harvi-grid-serial", "", "Serial of the harvi on the grid connection (optional)")
	harviSolar := lflag.String("myenergi-harvi-generation-serial", "", "Serial of the harvi on the generation circuit (optional)")

	s := &Site{}

	lflag.Do(func() {
		zid, err := ZappiIDFromUsername(*username)
		if err != nil {
			panic(fmt.Sprintf("myenergi-username: %v", err))
		}
		s.zappiID = zid
		s.client = newClient(nil, *username, *password, *timeout)
		s.client.host = *host
		s.harviGridSerial = parseSerial("myenergi-harvi-grid-serial", *harviGrid)
		s.harviSolarSerial = parseSerial("myenergi-harvi-generation-serial", *harviSolar)
	})

	return s
}

func parseSerial(flag, v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("%s: invalid serial %q", flag, v))
	}
	return n
}
