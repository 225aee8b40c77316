package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedJob marks a job that can never succeed. Handlers wrap it to
	// skip the remaining attempts.
	ErrMalformedJob  = errors.New("malformed job")
	ErrEmptyJobID    = errors.New("job id is empty")
	ErrUnknownScheme = errors.New("unsupported queue url scheme")
)

type Job struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     time.Duration   `json:"backoff"`
	LastError   string          `json:"lastError,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	FailedAt    *time.Time      `json:"failedAt,omitempty"`
}

// NextDelay is the exponential backoff before the next attempt, doubling
// with every recorded failure.
func (j *Job) NextDelay() time.Duration {
	if j.Attempts <= 1 {
		return j.Backoff
	}
	return j.Backoff << (j.Attempts - 1)
}

// recordFailure bumps the attempts counter and reports whether the job
// should be redelivered.
func (j *Job) recordFailure(cause error, now time.Time) bool {
	j.Attempts++
	if cause != nil {
		j.LastError = cause.Error()
	}
	if errors.Is(cause, ErrMalformedJob) || j.Attempts >= j.MaxAttempts {
		j.FailedAt = &now
		return false
	}
	return true
}

type Options struct {
	MaxAttempts  int
	Backoff      time.Duration
	LeaseTimeout time.Duration
}

func (o Options) newJob(id string, payload []byte, now time.Time) *Job {
	return &Job{
		ID:          id,
		Payload:     payload,
		MaxAttempts: o.MaxAttempts,
		Backoff:     o.Backoff,
		EnqueuedAt:  now,
	}
}

type Stats struct {
	Waiting int64 `json:"waiting"`
	Delayed int64 `json:"delayed"`
	Active  int64 `json:"active"`
	Failed  int64 `json:"failed"`
}

// Broker is a durable at-least-once job queue keyed by job ID. A job ID that
// is already waiting, delayed or active is not enqueued twice.
type Broker interface {
	Name() string
	Enqueue(ctx context.Context, id string, payload []byte) (bool, error)
	// Claim leases the next ready job, it returns nil when nothing is ready.
	Claim(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	// Fail records a failed attempt and reports whether the job will be redelivered.
	Fail(ctx context.Context, job *Job, cause error) (bool, error)
	Failed(ctx context.Context, limit int) ([]*Job, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// NewBroker picks a broker implementation by the url scheme.
func NewBroker(url, name string, opts Options) (Broker, error) {
	switch {
	case strings.HasPrefix(url, "memory://"):
		return NewMemoryBroker(name, opts), nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return NewRedisBrokerFromURL(url, name, opts)
	default:
		return nil, fmt.Errorf("can't create broker for %q: %w", url, ErrUnknownScheme)
	}
}
