package server

import (
	"github.com/levenlabs/go-lflag"
)

// Configured returns a Server over source. It is disabled unless
// -http-listen is set.
func Configured(source ReportSource) *Server {
	listenAddr := lflag.String("http-listen", "", "Status server listen address (e.g. :9090); empty disables it")

	srv := New(source, "")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}
