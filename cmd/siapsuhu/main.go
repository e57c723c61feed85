package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"siapsuhu/internal/agent"
	"siapsuhu/internal/api"
	"siapsuhu/internal/buildinfo"
	"siapsuhu/internal/clock"
	"siapsuhu/internal/config"
	"siapsuhu/internal/events"
	"siapsuhu/internal/identity"
	"siapsuhu/internal/mqtt"
	"siapsuhu/internal/sensor"
	"siapsuhu/internal/storage"
	"siapsuhu/internal/wifi"
)

func main() {
	envFile := flag.String("env", ".env", "Path to the .env file (optional)")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	// Load configuration from .env file
	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Printf("Siap Suhu %s", buildinfo.String())
	logger.Printf("Configuration loaded: %s", cfg)

	deviceID, err := identity.HostDeviceID(cfg.WiFiIface())
	if err != nil {
		logger.Fatalf("Failed to derive device ID: %v", err)
	}

	model, err := sensor.ParseModel(cfg.DHTType())
	if err != nil {
		logger.Fatalf("Invalid sensor model: %v", err)
	}

	// Connectivity event log, persisted once the journal is open
	store := events.NewStore(100)

	transport := mqtt.New(mqtt.Options{
		UseTLS:         cfg.MQTTUseTLS(),
		ConnectTimeout: cfg.MQTTConnectTimeout(),
	}, logger)

	var discovery []mqtt.Message
	if cfg.HADiscovery() {
		d := mqtt.NewDiscovery(deviceID, identity.NewTopics(deviceID), string(model), buildinfo.Version, logger)
		discovery = d.Messages()
	}

	a, err := agent.New(agent.Options{
		DeviceID:          deviceID,
		Firmware:          buildinfo.Version,
		WiFiSSID:          cfg.WiFiSSID(),
		WiFiPassword:      cfg.WiFiPassword(),
		MQTTHost:          cfg.MQTTHost(),
		MQTTPort:          cfg.MQTTPort(),
		Credentials:       cfg.MQTTCredentials(),
		TelemetryInterval: cfg.TelemetryInterval(),
		Link:              wifi.New(cfg.WiFiIface(), logger),
		Transport:         transport,
		Sensor:            sensor.NewDHT(model, cfg.DHTPin(), logger),
		TimeSource:        clock.NewNTPSource(cfg.NTPServers(), logger),
		Clock:             clock.NewMonotonic(),
		Discovery:         discovery,
		Logger:            logger,
		Events:            store,
	})
	if err != nil {
		logger.Fatalf("Failed to create agent: %v", err)
	}

	var journal storage.Journal
	if path := cfg.DiagDB(); path != "" {
		boltJournal, err := attachJournal(store, path, cfg.DiagMaxEvents(), logger)
		if err != nil {
			logger.Fatalf("Failed to open diagnostic journal: %v", err)
		}
		defer closeJournal(boltJournal, logger)
		journal = boltJournal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Read-only status API
	if addr := cfg.StatusAddr(); addr != "" {
		server := api.NewServer(a, store, journal, buildinfo.Version, logger)
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Printf("[API] Status server listening on %s", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("[API] Server failed: %v", err)
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Printf("[API] Shutdown failed: %v", err)
			}
		}()
	}

	a.Setup(ctx)
	a.Run(ctx, cfg.LoopInterval())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Shutdown(shutdownCtx)
}
