package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"mytaskpro/internal/model"
)

// Jobs live in two keys: a sorted set of members scored by fire time (unix ms)
// and a hash holding each member's JSON.
var (
	upsertScript = rueidis.NewLuaScript(`
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1`)

	removeScript = rueidis.NewLuaScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
return redis.call('HDEL', KEYS[2], ARGV[1])`)

	// restore refuses to overwrite a job stored since the claim.
	restoreScript = rueidis.NewLuaScript(`
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then return 0 end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1`)

	// claim succeeds only if the stored job still carries the caller's token.
	claimScript = rueidis.NewLuaScript(`
local raw = redis.call('HGET', KEYS[2], ARGV[1])
if not raw then return 0 end
local job = cjson.decode(raw)
if job['token'] ~= ARGV[2] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1`)
)

// RedisJobStore keeps the delivery schedule in Redis.
type RedisJobStore struct {
	client  rueidis.Client
	zsetKey string
	hashKey string
}

func NewRedisJobStore(client rueidis.Client, prefix string) *RedisJobStore {
	if prefix == "" {
		prefix = "mytaskpro"
	}
	// Hash tag keeps both keys in one cluster slot for the scripts.
	tag := "{" + prefix + "}"
	return &RedisJobStore{
		client:  client,
		zsetKey: tag + ":notifications:due",
		hashKey: tag + ":notifications:jobs",
	}
}

func member(key model.NotificationKey) string {
	return fmt.Sprintf("%d:%s", key.TaskID, key.Kind)
}

func parseMember(m string) (model.NotificationKey, error) {
	id, kind, ok := strings.Cut(m, ":")
	if !ok {
		return model.NotificationKey{}, fmt.Errorf("malformed member %q", m)
	}
	taskID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return model.NotificationKey{}, fmt.Errorf("malformed member %q: %w", m, err)
	}
	return model.NotificationKey{TaskID: uint(taskID), Kind: model.NotificationKind(kind)}, nil
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *RedisJobStore) Upsert(ctx context.Context, n model.ScheduledNotification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	keys := []string{s.zsetKey, s.hashKey}
	args := []string{member(n.Key()), score(n.FireAt), string(raw)}
	if err := upsertScript.Exec(ctx, s.client, keys, args).Error(); err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Remove(ctx context.Context, key model.NotificationKey) error {
	keys := []string{s.zsetKey, s.hashKey}
	if err := removeScript.Exec(ctx, s.client, keys, []string{member(key)}).Error(); err != nil {
		return fmt.Errorf("remove notification: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledNotification, error) {
	if limit <= 0 {
		limit = 100
	}
	cmd := s.client.B().Zrangebyscore().Key(s.zsetKey).Min("-inf").Max(score(now)).Limit(0, int64(limit)).Build()
	members, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}

	due := make([]model.ScheduledNotification, 0, len(members))
	for _, m := range members {
		raw, err := s.client.Do(ctx, s.client.B().Hget().Key(s.hashKey).Field(m).Build()).ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				// Removed between the two reads.
				continue
			}
			return nil, fmt.Errorf("load notification %s: %w", m, err)
		}
		n, err := decode(m, raw)
		if err != nil {
			return nil, err
		}
		due = append(due, n)
	}
	return due, nil
}

func (s *RedisJobStore) Claim(ctx context.Context, n model.ScheduledNotification) (bool, error) {
	keys := []string{s.zsetKey, s.hashKey}
	won, err := claimScript.Exec(ctx, s.client, keys, []string{member(n.Key()), n.Token}).AsInt64()
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	return won == 1, nil
}

func (s *RedisJobStore) Restore(ctx context.Context, n model.ScheduledNotification) (bool, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("encode notification: %w", err)
	}
	keys := []string{s.zsetKey, s.hashKey}
	args := []string{member(n.Key()), score(n.FireAt), string(raw)}
	won, err := restoreScript.Exec(ctx, s.client, keys, args).AsInt64()
	if err != nil {
		return false, fmt.Errorf("restore notification: %w", err)
	}
	return won == 1, nil
}

func (s *RedisJobStore) Pending(ctx context.Context, taskID uint) ([]model.ScheduledNotification, error) {
	members := make([]string, 0, len(model.NotificationKinds))
	for _, kind := range model.NotificationKinds {
		members = append(members, member(model.NotificationKey{TaskID: taskID, Kind: kind}))
	}
	values, err := s.client.Do(ctx, s.client.B().Hmget().Key(s.hashKey).Field(members...).Build()).ToArray()
	if err != nil {
		return nil, fmt.Errorf("list task notifications: %w", err)
	}

	var jobs []model.ScheduledNotification
	for i, v := range values {
		if v.IsNil() {
			continue
		}
		raw, err := v.ToString()
		if err != nil {
			return nil, fmt.Errorf("load notification %s: %w", members[i], err)
		}
		n, err := decode(members[i], raw)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, n)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs, nil
}

func decode(m, raw string) (model.ScheduledNotification, error) {
	var n model.ScheduledNotification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return n, fmt.Errorf("decode notification %s: %w", m, err)
	}
	key, err := parseMember(m)
	if err != nil {
		return n, err
	}
	n.TaskID, n.Kind = key.TaskID, key.Kind
	return n, nil
}
