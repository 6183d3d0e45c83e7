package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pvrelay/pvrelay/pkg/common"
	"github.com/pvrelay/pvrelay/pkg/controller"
	"github.com/pvrelay/pvrelay/pkg/inverter"
	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/mqtt"
	"github.com/pvrelay/pvrelay/pkg/myenergi"
	"github.com/pvrelay/pvrelay/pkg/pvoutput"
	"github.com/pvrelay/pvrelay/pkg/server"
	"github.com/pvrelay/pvrelay/pkg/storage"
	"github.com/pvrelay/pvrelay/pkg/weather"

	"github.com/levenlabs/go-lflag"
)

func main() {
	// init packages
	reader := inverter.Configured()
	site := myenergi.Configured()
	publisher := pvoutput.Configured()
	owm := weather.Configured()
	sink := mqtt.Configured()
	s := storage.Configured()

	ctrl := controller.Configured(reader, site, publisher, owm, s, sink)
	srv := server.Configured(ctrl)

	// parse flags
	lflag.Configure()

	if err := log.Setup(); err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Ctx(ctx).InfoContext(ctx, "starting pvrelay",
		slog.String("version", common.UserAgent()),
		slog.String("layout", reader.Layout().Name),
		slog.Bool("mqtt", sink.Enabled()),
		slog.Bool("statusServer", srv.Enabled()),
	)

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	if srv.Enabled() {
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "status server failed", slog.Any("error", err))
			}
		}()
	}

	// Run will block until the context is canceled
	if err := ctrl.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "controller failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "exited cleanly")
}
