package queue

import (
	"context"
	"time"

	"github.com/omni/transfer-indexer/logging"
)

// StatsReporter periodically publishes broker counters as gauges.
type StatsReporter struct {
	logger   logging.Logger
	broker   Broker
	interval time.Duration
	timeout  time.Duration
}

func NewStatsReporter(logger logging.Logger, broker Broker, interval time.Duration) *StatsReporter {
	return &StatsReporter{
		logger:   logger.WithField("queue", broker.Name()),
		broker:   broker,
		interval: interval,
		timeout:  interval,
	}
}

func (r *StatsReporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.Report(ctx); err != nil {
			r.logger.WithError(err).Error("can't report queue stats")
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return
		}
	}
}

func (r *StatsReporter) Report(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stats, err := r.broker.Stats(ctx)
	if err != nil {
		return err
	}
	name := r.broker.Name()
	JobsGauge.WithLabelValues(name, "waiting").Set(float64(stats.Waiting))
	JobsGauge.WithLabelValues(name, "delayed").Set(float64(stats.Delayed))
	JobsGauge.WithLabelValues(name, "active").Set(float64(stats.Active))
	JobsGauge.WithLabelValues(name, "failed").Set(float64(stats.Failed))
	if stats.Failed > 0 {
		r.logger.WithField("failed", stats.Failed).Warn("queue has permanently failed jobs")
	}
	return nil
}
