package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-agent/internal/command"
	"github.com/nerrad567/gray-logic-agent/internal/device"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-agent/internal/journal"
	"github.com/nerrad567/gray-logic-agent/internal/reporting"
	"github.com/nerrad567/gray-logic-agent/migrations"
)

// run is the agent lifecycle, separated from main for testability.
//
// It returns nil on a signal-driven shutdown and an error wrapping
// command.ErrRestartRequested when a restart command fired.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	identity := device.Identity{ID: cfg.Device.ID, Name: cfg.Device.Name, Type: cfg.Device.Type}

	log := logging.New(cfg.Logging, version).With("device_id", identity.ID)
	defer log.Close()

	log.Info("starting Gray Logic Agent",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
		"device_name", identity.Name,
		"device_type", identity.Type,
		"broker", cfg.MQTT.Broker.URI,
		"protocol_version", cfg.MQTT.Broker.ProtocolVersion,
	)

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	var routerOpts []command.Option

	// Command journal (optional)
	if cfg.Database.Enabled {
		db, openErr := openJournal(runCtx, cfg.Database)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		routerOpts = append(routerOpts, command.WithJournal(journal.NewSQLiteRepository(db.DB)))
		log.Info("command journal enabled", "path", db.Path())
	}

	// InfluxDB mirror (optional)
	var loopOpts []reporting.Option
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(runCtx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		if cfg.Reporting.MirrorToInfluxDB {
			loopOpts = append(loopOpts, reporting.WithSink(influxClient))
		}
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	client, err := mqtt.New(cfg.MQTT, identity, mqtt.WithLogger(log))
	if err != nil {
		return fmt.Errorf("configuring MQTT session: %w", err)
	}
	dispatcher := mqtt.NewDispatcher(client, log)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return dispatcher.Run(gctx) })

	if cfg.Commands.Enabled {
		restarter := command.NewRestarter(cfg.RestartDelay(), func() {
			log.Warn("restarting on command")
			cancelRun(command.ErrRestartRequested)
		})
		routerOpts = append(routerOpts, command.WithRestarter(restarter))
		router := command.NewRouter(client, log, routerOpts...)
		g.Go(func() error { return router.Run(gctx, dispatcher.Inbound()) })
		log.Info("command handling enabled", "commands", router.Commands())
	} else {
		g.Go(func() error {
			for msg := range dispatcher.Inbound() {
				log.Debug("ignoring inbound message, commands disabled", "topic", msg.Topic)
			}
			return nil
		})
		log.Info("command handling disabled")
	}

	if cfg.Reporting.Enabled {
		loop, loopErr := reporting.NewLoop(client, identity, cfg.Reporting, log, loopOpts...)
		if loopErr != nil {
			cancelRun(loopErr)
			_ = g.Wait()
			return fmt.Errorf("creating reporting loop: %w", loopErr)
		}
		g.Go(func() error { return loop.Run(gctx) })
	} else {
		log.Info("periodic reporting disabled")
	}

	if err := client.Start(); err != nil {
		cancelRun(err)
		_ = g.Wait()
		return fmt.Errorf("starting MQTT session: %w", err)
	}
	log.Info("MQTT session started, waiting for broker")

	<-gctx.Done()

	log.Info("shutting down")
	if err := client.Stop(); err != nil {
		log.Error("error stopping MQTT session", "error", err)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if cause := context.Cause(runCtx); errors.Is(cause, command.ErrRestartRequested) {
		return cause
	}
	log.Info("Gray Logic Agent stopped")
	return nil
}

func openJournal(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
