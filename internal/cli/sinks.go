package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nerrad567/fleet-runner/internal/history"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/database"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/influxdb"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/logging"
	"github.com/nerrad567/fleet-runner/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleet-runner/internal/pipeline"
	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// attachSinks connects the enabled history, event and metrics sinks to p.
// A sink that cannot be reached is logged and left out; the run goes ahead
// without it. The returned function releases every attached sink.
func attachSinks(ctx context.Context, cfg *config.Config, rc workspace.RunContext, p *pipeline.Pipeline, cancel context.CancelCauseFunc, log *logging.Logger) func() {
	var closers []func()

	if cfg.Database.Enabled {
		db, err := openHistoryDB(ctx, cfg.Database, rc.RunnerDir)
		if err != nil {
			log.Warn("run history disabled", "error", err)
		} else {
			p.AddObserver(pipeline.NewHistoryObserver(history.NewStore(db)))
			closers = append(closers, func() {
				if err := db.Close(); err != nil {
					log.Error("error closing database", "error", err)
				}
			})
			log.Debug("run history enabled", "path", db.Path())
		}
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err == nil {
			err = checkHealth(ctx, client, client.Close)
		}
		if err != nil {
			log.Warn("run events disabled", "error", err)
		} else {
			client.SetLogger(log)
			client.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})
			closers = append(closers, func() {
				if err := client.Close(); err != nil {
					log.Error("error closing MQTT", "error", err)
				}
			})
			if err := client.SetActiveRun(rc.RunID); err != nil {
				log.Warn("runner status not published", "error", err)
			}
			p.AddObserver(pipeline.NewEventObserver(client))

			stop, err := pipeline.WatchAbort(client, rc.RunID, cancel, log)
			if err != nil {
				log.Warn("remote abort unavailable", "error", err)
			} else {
				closers = append(closers, stop)
			}
			log.Debug("run events enabled",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"abort_topic", mqtt.Topics{}.RunAbort(rc.RunID),
			)
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err == nil {
			err = checkHealth(ctx, client, client.Close)
		}
		if err != nil {
			log.Warn("run metrics disabled", "error", err)
		} else {
			client.SetOnError(func(err error) {
				log.Warn("InfluxDB write error", "error", err)
			})
			p.AddObserver(pipeline.NewMetricsObserver(client))
			closers = append(closers, func() {
				if err := client.Close(); err != nil {
					log.Error("error closing InfluxDB", "error", err)
				}
			})
			log.Debug("run metrics enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// openHistoryDB opens and migrates the history database. A relative path
// is taken from baseDir.
func openHistoryDB(ctx context.Context, cfg config.DatabaseConfig, baseDir string) (*database.DB, error) {
	if !filepath.IsAbs(cfg.Path) {
		cfg.Path = filepath.Join(baseDir, cfg.Path)
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := checkHealth(ctx, db, db.Close); err != nil {
		return nil, err
	}
	return db, nil
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkHealth verifies a freshly opened sink and closes it when the check
// fails.
func checkHealth(ctx context.Context, sink healthChecker, closeFn func() error) error {
	if err := sink.HealthCheck(ctx); err != nil {
		_ = closeFn()
		return err
	}
	return nil
}
