// Package jobs registers the periodic maintenance work of the service.
package jobs

import (
	"context"
	"time"

	"AlertDesk/internal/models"
	"AlertDesk/pkg/backup"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/scheduler"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AlertGauge refreshes the per-organization alert gauge from the database.
func AlertGauge(db *gorm.DB, m *metrics.Metrics) scheduler.FuncJob {
	return func(ctx context.Context) {
		counts, err := models.CountAlertsByState(ctx, db)
		if err != nil {
			logger.Warn("count alerts failed", zap.Error(err))
			return
		}
		out := make(map[uint]map[string]int64, len(counts))
		for org, byState := range counts {
			out[org] = make(map[string]int64, len(byState))
			for state, n := range byState {
				out[org][string(state)] = n
			}
		}
		m.SetAlerts(out)
	}
}

// SystemStats samples the host and publishes it as gauges.
func SystemStats(monitor *metrics.SystemMonitor, m *metrics.Metrics) scheduler.FuncJob {
	return func(ctx context.Context) {
		m.ObserveSystem(monitor.Collect())
	}
}

// DatabaseBackup dumps the database; errors are logged and retried on the next run.
func DatabaseBackup(b *backup.Backup) scheduler.FuncJob {
	return func(ctx context.Context) {
		start := time.Now()
		file, err := b.Run(ctx)
		if err != nil {
			logger.Error("database backup failed", zap.Error(err))
			return
		}
		logger.Info("database backup done", zap.String("file", file), zap.Duration("cost", time.Since(start)))
	}
}

// Options selects which jobs Register installs.
type Options struct {
	StatsSchedule  string
	Backup         *backup.Backup
	BackupSchedule string
}

// Register adds the jobs to c. The caller starts and stops c.
func Register(c *scheduler.Cron, db *gorm.DB, m *metrics.Metrics, monitor *metrics.SystemMonitor, opts Options) error {
	if opts.StatsSchedule != "" {
		if _, err := c.Add("alert-gauge", opts.StatsSchedule, AlertGauge(db, m)); err != nil {
			return err
		}
		if _, err := c.Add("system-stats", opts.StatsSchedule, SystemStats(monitor, m)); err != nil {
			return err
		}
	}
	if opts.Backup != nil && opts.BackupSchedule != "" {
		if _, err := c.Add("database-backup", opts.BackupSchedule, DatabaseBackup(opts.Backup)); err != nil {
			return err
		}
	}
	return nil
}
