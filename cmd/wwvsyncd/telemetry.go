package main

import (
	"log"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hfwwv/wwvsync/internal/config"
	"github.com/hfwwv/wwvsync/internal/telemetry"
)

// buildSinks wires every enabled telemetry sink into bus and returns the
// teardown funcs the caller should run, in order, at shutdown.
func buildSinks(bus *telemetry.Bus, cfg config.TelemetryConfig, logger *log.Logger) []func() {
	var closers []func()

	if cfg.LineListen != "" {
		ln, err := net.Listen("tcp", cfg.LineListen)
		if err != nil {
			logger.Printf("telemetry: line sink listen %s: %v", cfg.LineListen, err)
		} else {
			logger.Printf("telemetry: line sink listening on %s", cfg.LineListen)
			go serveLineSink(ln, bus, logger)
			closers = append(closers, func() { ln.Close() })
		}
	}

	if cfg.Prometheus.Enabled {
		sink := telemetry.NewPrometheusSink(prometheus.DefaultRegisterer)
		bus.Subscribe(sink)
		if cfg.Prometheus.Listen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: cfg.Prometheus.Listen, Handler: mux}
			go func() {
				logger.Printf("telemetry: prometheus sink listening on %s", cfg.Prometheus.Listen)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Printf("telemetry: prometheus server: %v", err)
				}
			}()
			closers = append(closers, func() { srv.Close() })
		}
	}

	if cfg.MQTT.Enabled {
		mqttCfg := telemetry.MQTTSinkConfig{
			Broker:   cfg.MQTT.Broker,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
		}
		sink, err := telemetry.NewMQTTSink(mqttCfg, logger)
		if err != nil {
			logger.Printf("telemetry: mqtt sink: %v", err)
		} else {
			bus.Subscribe(sink)
			closers = append(closers, func() { sink.Close() })
		}
	}

	if cfg.WebSocket.Enabled && cfg.WebSocket.Listen != "" {
		sink := telemetry.NewWebSocketSink(logger)
		bus.Subscribe(sink)
		mux := http.NewServeMux()
		mux.Handle("/", sink)
		srv := &http.Server{Addr: cfg.WebSocket.Listen, Handler: mux}
		go func() {
			logger.Printf("telemetry: websocket sink listening on %s", cfg.WebSocket.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("telemetry: websocket server: %v", err)
			}
		}()
		closers = append(closers, func() { srv.Close() })
	}

	return closers
}

func serveLineSink(ln net.Listener, bus *telemetry.Bus, logger *log.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		sink := telemetry.NewLineSink(conn)
		bus.Subscribe(sink)
		go func(c net.Conn) {
			buf := make([]byte, 256)
			for {
				if _, err := c.Read(buf); err != nil {
					c.Close()
					return
				}
			}
		}(conn)
	}
}
