package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/relay/pkg/api"
)

// RedisRunStore is a RunStore backed by Redis. It uses a simple key
// structure:
//
//	<prefix>run:<id>          => HASH with the run's fields
//	<prefix>markers:<id>      => SET of node_id|dedupe_key markers
//	<prefix>idx:all           => SET of all run IDs
//	<prefix>idx:status:<s>    => SET of run IDs per status
//
// The pending counter protocol runs as a Lua script, so the decrement,
// increment, zero check, and completion transition are one atomic unit on
// the server.
type RedisRunStore struct {
	client *redis.Client
	prefix string
}

var _ RunStore = (*RedisRunStore)(nil)

// NewRedisRunStore creates a RedisRunStore.
// prefix is optional but recommended (e.g. "relay:").
func NewRedisRunStore(client *redis.Client, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = "relay:"
	}
	return &RedisRunStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisRunStore) keyRun(id string) string {
	return r.prefix + "run:" + id
}

func (r *RedisRunStore) keyMarkers(id string) string {
	return r.prefix + "markers:" + id
}

func (r *RedisRunStore) keyAll() string {
	return r.prefix + "idx:all"
}

func (r *RedisRunStore) keyStatus(status api.Status) string {
	return r.prefix + "idx:status:" + string(status)
}

func (r *RedisRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	var finished int64
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UnixNano()
	}

	if err := r.client.HSet(ctx, r.keyRun(run.ID),
		"automation_id", run.AutomationID,
		"version", run.Version,
		"subject_type", run.SubjectType,
		"subject_id", run.SubjectID,
		"status", string(run.Status),
		"pending", run.Pending,
		"error", run.Error,
		"started_at", run.StartedAt.UnixNano(),
		"finished_at", finished,
	).Err(); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.keyAll(), run.ID)
	pipe.SAdd(ctx, r.keyStatus(run.Status), run.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	fields, err := r.client.HGetAll(ctx, r.keyRun(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrRunNotFound
	}
	return decodeRunHash(id, fields), nil
}

func (r *RedisRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	ids, err := r.client.SMembers(ctx, r.keyAll()).Result()
	if err != nil {
		return nil, err
	}

	var runs []*api.Run
	for _, id := range ids {
		run, err := r.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				continue
			}
			return nil, err
		}
		if filter.AutomationID != "" && run.AutomationID != filter.AutomationID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// redisAdvanceLua applies the counter update and, on a zero crossing, the
// completion transition in one server-side step.
//
// KEYS: run hash, idx:status:RUNNING, idx:status:COMPLETED
// ARGV: delta, finished_at, run id
const redisAdvanceLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return {0, 'missing'}
end
if status ~= 'RUNNING' then
  local pending = tonumber(redis.call('HGET', KEYS[1], 'pending'))
  return {pending, status}
end
local pending = redis.call('HINCRBY', KEYS[1], 'pending', tonumber(ARGV[1]))
if pending < 0 then
  return {pending, 'underflow'}
end
if pending == 0 then
  redis.call('HSET', KEYS[1], 'status', 'COMPLETED', 'finished_at', ARGV[2])
  redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[3])
  return {pending, 'COMPLETED'}
end
return {pending, status}
`

func (r *RedisRunStore) AdvancePending(ctx context.Context, runID string, added int) (int, api.Status, error) {
	res, err := r.client.Eval(ctx, redisAdvanceLua,
		[]string{r.keyRun(runID), r.keyStatus(api.StatusRunning), r.keyStatus(api.StatusCompleted)},
		added-1, time.Now().UnixNano(), runID,
	).Result()
	if err != nil {
		return 0, "", err
	}

	reply, ok := res.([]any)
	if !ok || len(reply) != 2 {
		return 0, "", errors.New("unexpected reply from pending counter script")
	}
	pending64, _ := reply[0].(int64)
	statusStr, _ := reply[1].(string)

	switch statusStr {
	case "missing":
		return 0, "", ErrRunNotFound
	case "underflow":
		return int(pending64), api.StatusRunning, ErrPendingUnderflow
	}
	return int(pending64), api.Status(statusStr), nil
}

// redisFailLua transitions a running run to FAILED.
//
// KEYS: run hash, idx:status:RUNNING, idx:status:FAILED
// ARGV: cause, finished_at, run id
const redisFailLua = `
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
if status ~= 'RUNNING' then
  return 0
end
redis.call('HSET', KEYS[1], 'status', 'FAILED', 'error', ARGV[1], 'finished_at', ARGV[2])
redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[3])
return 1
`

func (r *RedisRunStore) failRun(ctx context.Context, runID, cause string) (bool, error) {
	res, err := r.client.Eval(ctx, redisFailLua,
		[]string{r.keyRun(runID), r.keyStatus(api.StatusRunning), r.keyStatus(api.StatusFailed)},
		cause, time.Now().UnixNano(), runID,
	).Int64()
	if err != nil {
		return false, err
	}
	if res < 0 {
		return false, ErrRunNotFound
	}
	return res == 1, nil
}

func (r *RedisRunStore) FailRun(ctx context.Context, runID string, cause string) error {
	_, err := r.failRun(ctx, runID, cause)
	return err
}

func (r *RedisRunStore) FailAllRunning(ctx context.Context, cause string) (int, error) {
	ids, err := r.client.SMembers(ctx, r.keyStatus(api.StatusRunning)).Result()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		transitioned, err := r.failRun(ctx, id, cause)
		if err != nil && !errors.Is(err, ErrRunNotFound) {
			return count, err
		}
		if transitioned {
			count++
		}
	}
	return count, nil
}

func (r *RedisRunStore) MarkScheduled(ctx context.Context, runID, nodeID, key string) (bool, error) {
	added, err := r.client.SAdd(ctx, r.keyMarkers(runID), nodeID+"|"+key).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func decodeRunHash(id string, fields map[string]string) *api.Run {
	version, _ := strconv.Atoi(fields["version"])
	pending, _ := strconv.Atoi(fields["pending"])
	started, _ := strconv.ParseInt(fields["started_at"], 10, 64)
	finished, _ := strconv.ParseInt(fields["finished_at"], 10, 64)

	run := &api.Run{
		ID:           id,
		AutomationID: fields["automation_id"],
		Version:      version,
		SubjectType:  fields["subject_type"],
		SubjectID:    fields["subject_id"],
		Status:       api.Status(fields["status"]),
		Pending:      pending,
		Error:        fields["error"],
		StartedAt:    time.Unix(0, started),
	}
	if finished != 0 {
		run.FinishedAt = time.Unix(0, finished)
	}
	return run
}
