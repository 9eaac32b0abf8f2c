package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hfwwv/wwvsync/internal/config"
	"github.com/hfwwv/wwvsync/internal/control"
	"github.com/hfwwv/wwvsync/internal/iqsource"
	"github.com/hfwwv/wwvsync/internal/pipeline"
	"github.com/hfwwv/wwvsync/internal/telemetry"
)

func main() {
	configDir := flag.String("config-dir", ".", "Directory containing configuration files")
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := log.New(os.Stdout, "wwvsyncd: ", log.LstdFlags)
	if *debug {
		logger.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	configPath := *configFile
	if *configDir != "." {
		configPath = *configDir + "/" + *configFile
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}

	src, err := openSource(cfg.Source)
	if err != nil {
		logger.Fatalf("open source: %v", err)
	}
	if err := src.Open(); err != nil {
		logger.Fatalf("read stream header: %v", err)
	}

	bus := telemetry.NewBus(cfg.Telemetry.QueueDepth)
	sinkClosers := buildSinks(bus, cfg.Telemetry, logger)

	pipe := pipeline.New(src, bus, cfg.ToneTrack.NominalHz, cfg.ToneTrack.ReferenceHz, cfg.Source.UseWWVH, logger)
	pipe.SetTickParams(cfg.Tick.ToParams(cfg.Source.UseWWVH))
	pipe.SetMarkerParams(cfg.Marker.ToParams(cfg.Source.UseWWVH))
	pipe.SetSyncParams(cfg.Sync.ToParams())
	pipe.SetBCDParams(cfg.BCD.ToParams())

	store := buildControlStore(pipe, cfg.Control.ParamFile, logger)
	if cfg.Control.Reload && cfg.Control.ParamFile != "" {
		loadParamFile(store, cfg.Control.ParamFile, logger)
	}
	limiters := control.NewSourceLimiters(cfg.Control.CmdRateLimit)

	var controlListener net.Listener
	if cfg.Control.Listen != "" {
		controlListener, err = net.Listen("tcp", cfg.Control.Listen)
		if err != nil {
			logger.Fatalf("control: listen %s: %v", cfg.Control.Listen, err)
		}
		logger.Printf("control: listening on %s", cfg.Control.Listen)
		go serveControl(controlListener, store, limiters, logger)
	}

	go pipe.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Println("shutting down")
	pipe.Stop()
	if controlListener != nil {
		controlListener.Close()
	}
	for _, closer := range sinkClosers {
		closer()
	}
	bus.Close()
}

// openSource opens the framed I/Q stream named by cfg, from either a
// file or a TCP connection depending on cfg.Kind.
func openSource(cfg config.SourceConfig) (*iqsource.Source, error) {
	switch cfg.Kind {
	case "net":
		conn, err := iqsource.DialTuned(cfg.Address)
		if err != nil {
			return nil, err
		}
		return iqsource.New(conn), nil
	default:
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return iqsource.New(f), nil
	}
}

// serveControl accepts control-plane connections and runs one Server
// per connection until the listener is closed.
func serveControl(ln net.Listener, store *control.Store, limiters *control.SourceLimiters, logger *log.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			defer c.Close()
			srv := control.NewServer(store, limiters)
			defer srv.Close()
			if err := srv.Serve(c, c); err != nil {
				logger.Printf("control: session error: %v", err)
			}
		}(conn)
	}
}
