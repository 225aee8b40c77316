package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/utils"
)

// Handler processes a single job. A returned error is handed to the broker,
// which decides between redelivery and the failed set.
type Handler func(ctx context.Context, job *Job) error

type Worker struct {
	logger       logging.Logger
	broker       Broker
	handler      Handler
	concurrency  int
	pollInterval time.Duration
}

func NewWorker(logger logging.Logger, broker Broker, handler Handler, concurrency int, pollInterval time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		logger:       logger.WithField("queue", broker.Name()),
		broker:       broker,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Run consumes jobs with a fixed number of goroutines until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		logger := w.logger.WithField("worker", i)
		g.Go(func() error {
			w.loop(ctx, logger)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, logger logging.Logger) {
	logger.Info("starting queue worker")
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			logger.WithError(err).Error("can't claim next job")
		}
		if processed {
			continue
		}
		utils.ContextSleep(ctx, w.pollInterval)
	}
	logger.Info("queue worker stopped")
}

// ProcessNext claims and handles at most one job. It reports whether a job was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.broker.Claim(ctx)
	if err != nil || job == nil {
		return false, err
	}
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *Job) {
	logger := w.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"attempts": job.Attempts,
	})

	start := time.Now()
	err := w.handler(ctx, job)
	ProcessingDuration.WithLabelValues(w.broker.Name()).Observe(time.Since(start).Seconds())

	if err == nil {
		if err2 := w.broker.Complete(ctx, job); err2 != nil {
			logger.WithError(err2).Error("can't mark job as completed, it will be redelivered after lease expiration")
			return
		}
		ProcessedJobs.WithLabelValues(w.broker.Name(), "completed").Inc()
		return
	}

	if ctx.Err() != nil {
		logger.WithError(err).Warn("job interrupted by shutdown, it will be redelivered after lease expiration")
		return
	}

	retrying, err2 := w.broker.Fail(ctx, job, err)
	if err2 != nil {
		logger.WithError(err2).Error("can't mark job as failed, it will be redelivered after lease expiration")
		return
	}
	if retrying {
		ProcessedJobs.WithLabelValues(w.broker.Name(), "retried").Inc()
		logger.WithError(err).WithField("retry_in", job.NextDelay()).Warn("job attempt failed")
		return
	}
	ProcessedJobs.WithLabelValues(w.broker.Name(), "failed").Inc()
	logger.WithError(err).Error("job failed permanently")
}
