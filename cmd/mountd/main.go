// Command mountd polls a telescope mount, protects it from tracking past its
// meridian limit, and serves its state and controls over HTTP, a websocket
// and a line console.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/w1xm/mount_interface/config"
	"github.com/w1xm/mount_interface/dome"
	"github.com/w1xm/mount_interface/mount"
	"github.com/w1xm/mount_interface/simulator"
	"github.com/w1xm/mount_interface/transport"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configFile  = pflag.String("config", "", "YAML configuration file")
	addr        = pflag.String("addr", "", "HTTP address to listen on, overriding the configuration")
	consoleAddr = pflag.String("console_addr", "", "console address to listen on, overriding the configuration")
	simulate    = pflag.Bool("simulate", false, "talk to the built-in mount simulator")
	logFile     = pflag.String("log_file", "", "write logs to this file, rotated by size")
	staticDir   = pflag.String("static_dir", "", "directory containing static files")
)

// openTransport connects to the mount the configuration names.
func openTransport(ctx context.Context, g *errgroup.Group, cfg *config.Config) transport.Transport {
	tc := cfg.TransportConfig()
	switch cfg.Transport.Kind {
	case config.KindTCP:
		return transport.DialTCP(ctx, cfg.Transport.Address, tc)
	case config.KindSimulator:
		sim, conn := simulator.New()
		g.Go(func() error { return sim.Run(ctx) })
		return transport.NewPipe(ctx, conn, tc)
	}
	return transport.DialSerial(ctx, cfg.Transport.Port, cfg.Transport.Baud, tc)
}

func main() {
	pflag.Parse()
	if *logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatal(err)
		}
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *consoleAddr != "" {
		cfg.Console.Addr = *consoleAddr
	}
	if *simulate {
		cfg.Transport.Kind = config.KindSimulator
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	link := openTransport(ctx, g, cfg)
	defer link.Close()

	server := &Server{}
	opts := mount.Options{Timing: cfg.Timing(), Thresholds: cfg.Thresholds()}
	if cfg.Dome.Enabled() {
		relays, err := dome.Connect(ctx, dome.Config{
			Port:     cfg.Dome.Port,
			BaudRate: cfg.Dome.Baud,
			SlaveId:  cfg.Dome.SlaveID,
			URL:      cfg.Dome.URL,
			Interval: cfg.Dome.Poll,
		}, server.domeCallback)
		if err != nil {
			log.Fatal(err)
		}
		server.relays = relays
		opts.Lights = relays
	}
	m, err := mount.New(link, opts)
	if err != nil {
		log.Fatal(err)
	}
	server.m = m
	m.Start(ctx)
	defer m.Close()

	if cfg.Console.Addr != "" {
		if err := server.ListenConsole(ctx, cfg.Console.Addr); err != nil {
			log.Fatal(err)
		}
	}

	srv := &http.Server{
		Handler:     server.Router(*staticDir),
		Addr:        cfg.HTTP.Addr,
		ReadTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		log.Printf("Listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Print(err)
	}
}
