package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS: jobs, wait, failed. ARGV: id, job.
var enqueueScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

// KEYS: jobs, wait, delayed, active. ARGV: now ms, lease deadline ms.
var claimScript = redis.NewScript(`
local function promote(key)
  local ids = redis.call('ZRANGEBYSCORE', key, '-inf', ARGV[1])
  for _, id in ipairs(ids) do
    redis.call('ZREM', key, id)
    redis.call('RPUSH', KEYS[2], id)
  end
end
promote(KEYS[3])
promote(KEYS[4])
while true do
  local id = redis.call('LPOP', KEYS[2])
  if not id then
    return false
  end
  local job = redis.call('HGET', KEYS[1], id)
  if job and not redis.call('ZSCORE', KEYS[4], id) then
    redis.call('ZADD', KEYS[4], ARGV[2], id)
    return job
  end
end
`)

// RedisBroker stores jobs in a hash and moves their IDs between a wait list,
// a delayed set and an active (leased) set. Multi-key transitions run in Lua.
// A job holding a live lease is never handed out again, even if a stale copy
// of its ID is still on the wait list.
type RedisBroker struct {
	name   string
	opts   Options
	now    func() time.Time
	client *redis.Client

	jobsKey    string
	waitKey    string
	delayedKey string
	activeKey  string
	failedKey  string
}

func NewRedisBrokerFromURL(url, name string, opts Options) (*RedisBroker, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("can't parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err = client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("can't ping redis: %w", err)
	}
	return NewRedisBroker(client, name, opts), nil
}

func NewRedisBroker(client *redis.Client, name string, opts Options) *RedisBroker {
	prefix := "queue:" + name + ":"
	return &RedisBroker{
		name:       name,
		opts:       opts,
		now:        time.Now,
		client:     client,
		jobsKey:    prefix + "jobs",
		waitKey:    prefix + "wait",
		delayedKey: prefix + "delayed",
		activeKey:  prefix + "active",
		failedKey:  prefix + "failed",
	}
}

func (b *RedisBroker) Name() string {
	return b.name
}

func (b *RedisBroker) Enqueue(ctx context.Context, id string, payload []byte) (bool, error) {
	if id == "" {
		return false, ErrEmptyJobID
	}
	raw, err := json.Marshal(b.opts.newJob(id, payload, b.now()))
	if err != nil {
		return false, fmt.Errorf("can't marshal job: %w", err)
	}
	added, err := enqueueScript.Run(ctx, b.client, []string{b.jobsKey, b.waitKey, b.failedKey}, id, raw).Int()
	if err != nil {
		return false, fmt.Errorf("can't enqueue job %s: %w", id, err)
	}
	return added == 1, nil
}

func (b *RedisBroker) Claim(ctx context.Context) (*Job, error) {
	now := b.now()
	keys := []string{b.jobsKey, b.waitKey, b.delayedKey, b.activeKey}
	raw, err := claimScript.Run(ctx, b.client, keys, now.UnixMilli(), now.Add(b.opts.LeaseTimeout).UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't claim job: %w", err)
	}
	job := new(Job)
	if err = json.Unmarshal([]byte(raw), job); err != nil {
		return nil, fmt.Errorf("can't unmarshal job: %w", err)
	}
	return job, nil
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, b.activeKey, job.ID)
		pipe.LRem(ctx, b.waitKey, 0, job.ID)
		pipe.HDel(ctx, b.jobsKey, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't complete job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	now := b.now()
	retrying := job.recordFailure(cause, now)
	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("can't marshal job: %w", err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, b.activeKey, job.ID)
		pipe.LRem(ctx, b.waitKey, 0, job.ID)
		if retrying {
			pipe.HSet(ctx, b.jobsKey, job.ID, raw)
			pipe.ZAdd(ctx, b.delayedKey, redis.Z{
				Score:  float64(now.Add(job.NextDelay()).UnixMilli()),
				Member: job.ID,
			})
		} else {
			pipe.HDel(ctx, b.jobsKey, job.ID)
			pipe.HSet(ctx, b.failedKey, job.ID, raw)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("can't fail job %s: %w", job.ID, err)
	}
	return retrying, nil
}

func (b *RedisBroker) Failed(ctx context.Context, limit int) ([]*Job, error) {
	values, err := b.client.HVals(ctx, b.failedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get failed jobs: %w", err)
	}
	res := make([]*Job, 0, len(values))
	for _, raw := range values {
		job := new(Job)
		if err = json.Unmarshal([]byte(raw), job); err != nil {
			return nil, fmt.Errorf("can't unmarshal job: %w", err)
		}
		res = append(res, job)
	}
	return limitFailed(res, limit), nil
}

func (b *RedisBroker) Stats(ctx context.Context) (*Stats, error) {
	var waiting, delayed, active, failed *redis.IntCmd
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.LLen(ctx, b.waitKey)
		delayed = pipe.ZCard(ctx, b.delayedKey)
		active = pipe.ZCard(ctx, b.activeKey)
		failed = pipe.HLen(ctx, b.failedKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't get queue stats: %w", err)
	}
	return &Stats{
		Waiting: waiting.Val(),
		Delayed: delayed.Val(),
		Active:  active.Val(),
		Failed:  failed.Val(),
	}, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
