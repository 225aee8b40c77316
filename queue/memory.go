package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBroker keeps the whole queue in process memory. It follows the same
// delivery rules as RedisBroker, but its contents do not survive a restart.
type MemoryBroker struct {
	name string
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	jobs    map[string]*Job
	wait    []string
	delayed map[string]time.Time
	active  map[string]time.Time
	failed  map[string]*Job
}

func NewMemoryBroker(name string, opts Options) *MemoryBroker {
	return &MemoryBroker{
		name:    name,
		opts:    opts,
		now:     time.Now,
		jobs:    make(map[string]*Job),
		delayed: make(map[string]time.Time),
		active:  make(map[string]time.Time),
		failed:  make(map[string]*Job),
	}
}

func (b *MemoryBroker) Name() string {
	return b.name
}

func (b *MemoryBroker) Enqueue(_ context.Context, id string, payload []byte) (bool, error) {
	if id == "" {
		return false, ErrEmptyJobID
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.jobs[id]; ok {
		return false, nil
	}
	delete(b.failed, id)
	b.jobs[id] = b.opts.newJob(id, payload, b.now())
	b.wait = append(b.wait, id)
	return true, nil
}

func (b *MemoryBroker) Claim(_ context.Context) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.wait = append(b.wait, dueIDs(b.delayed, now)...)
	b.wait = append(b.wait, dueIDs(b.active, now)...)

	for len(b.wait) > 0 {
		id := b.wait[0]
		b.wait = b.wait[1:]
		job, ok := b.jobs[id]
		if !ok {
			continue
		}
		if _, leased := b.active[id]; leased {
			continue
		}
		b.active[id] = now.Add(b.opts.LeaseTimeout)
		res := *job
		return &res, nil
	}
	return nil, nil
}

// dueIDs removes and returns ids whose deadline has passed, oldest first.
func dueIDs(deadlines map[string]time.Time, now time.Time) []string {
	var ids []string
	for id, deadline := range deadlines {
		if !deadline.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return deadlines[ids[i]].Before(deadlines[ids[j]])
	})
	for _, id := range ids {
		delete(deadlines, id)
	}
	return ids
}

func (b *MemoryBroker) Complete(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.active, job.ID)
	delete(b.jobs, job.ID)
	b.removeWaiting(job.ID)
	return nil
}

func (b *MemoryBroker) removeWaiting(id string) {
	wait := b.wait[:0]
	for _, w := range b.wait {
		if w != id {
			wait = append(wait, w)
		}
	}
	b.wait = wait
}

func (b *MemoryBroker) Fail(_ context.Context, job *Job, cause error) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	delete(b.active, job.ID)
	b.removeWaiting(job.ID)
	retrying := job.recordFailure(cause, now)
	if !retrying {
		delete(b.jobs, job.ID)
		res := *job
		b.failed[job.ID] = &res
		return false, nil
	}
	res := *job
	b.jobs[job.ID] = &res
	b.delayed[job.ID] = now.Add(job.NextDelay())
	return true, nil
}

func (b *MemoryBroker) Failed(_ context.Context, limit int) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := make([]*Job, 0, len(b.failed))
	for _, job := range b.failed {
		j := *job
		res = append(res, &j)
	}
	return limitFailed(res, limit), nil
}

func (b *MemoryBroker) Stats(_ context.Context) (*Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return &Stats{
		Waiting: int64(len(b.wait)),
		Delayed: int64(len(b.delayed)),
		Active:  int64(len(b.active)),
		Failed:  int64(len(b.failed)),
	}, nil
}

func (b *MemoryBroker) Close() error {
	return nil
}

// limitFailed orders failed jobs from the most recent and truncates the list.
func limitFailed(jobs []*Job, limit int) []*Job {
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i].FailedAt, jobs[j].FailedAt
		if a == nil || b == nil || a.Equal(*b) {
			return jobs[i].ID < jobs[j].ID
		}
		return a.After(*b)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}
