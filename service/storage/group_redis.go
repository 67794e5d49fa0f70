package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// versionField is the reserved hash field holding the group version.
const versionField = "__v"

// KEYS[1] = group hash
// ARGV[1] = expected version (-1 = any)
// ARGV[2..] = field, value pairs; an empty value deletes the field
// returns the new version, or -1 on version mismatch
var luaWriteGroup = redis.NewScript(`
local k      = KEYS[1]
local expect = tonumber(ARGV[1])
local cur    = tonumber(redis.call('HGET', k, '__v') or '0')
if expect >= 0 and cur ~= expect then
  return -1
end
for i = 2, #ARGV, 2 do
  if ARGV[i + 1] == '' then
    redis.call('HDEL', k, ARGV[i])
  else
    redis.call('HSET', k, ARGV[i], ARGV[i + 1])
  end
end
local nv = cur + 1
redis.call('HSET', k, '__v', nv)
return nv
`)

// KEYS[1] = group hash
// ARGV[1] = expected version (-1 = any)
// returns 1 deleted (or absent), -1 on version mismatch
var luaDeleteGroup = redis.NewScript(`
local k      = KEYS[1]
local expect = tonumber(ARGV[1])
local cur    = tonumber(redis.call('HGET', k, '__v') or '0')
if expect >= 0 and cur ~= expect then
  return -1
end
redis.call('DEL', k)
return 1
`)

// RedisGroupStore keeps each group in one hash, "<prefix><id>", with the
// version in the reserved "__v" field. Conditional writes run as Lua so the
// check and the write are atomic.
type RedisGroupStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisGroupStore(rdb redis.UniversalClient, prefix string) *RedisGroupStore {
	if rdb == nil {
		panic("redis client cannot be nil for RedisGroupStore")
	}
	return &RedisGroupStore{rdb: rdb, prefix: prefix}
}

func (s *RedisGroupStore) key(id string) string { return s.prefix + id }

func (s *RedisGroupStore) CreateGroup(ctx context.Context, id string) error {
	if err := s.rdb.HSetNX(ctx, s.key(id), versionField, 0).Err(); err != nil {
		return fmt.Errorf("redis: create group %s: %w", id, err)
	}
	return nil
}

func (s *RedisGroupStore) ReadGroup(ctx context.Context, id string, keys ...string) (*Group, error) {
	if len(keys) == 0 {
		return s.readAll(ctx, id)
	}
	args := make([]string, 0, len(keys)+1)
	args = append(args, versionField)
	args = append(args, keys...)
	vals, err := s.rdb.HMGet(ctx, s.key(id), args...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read group %s: %w", id, err)
	}
	if len(vals) == 0 || vals[0] == nil {
		return nil, ErrGroupNotFound
	}
	ver, err := parseVersion(vals[0])
	if err != nil {
		return nil, fmt.Errorf("redis: group %s: %w", id, err)
	}
	g := &Group{ID: id, Version: ver, Fields: make(map[string]string, len(keys))}
	for i, k := range keys {
		if s, ok := vals[i+1].(string); ok {
			g.Fields[k] = s
		}
	}
	return g, nil
}

func (s *RedisGroupStore) readAll(ctx context.Context, id string) (*Group, error) {
	all, err := s.rdb.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read group %s: %w", id, err)
	}
	raw, ok := all[versionField]
	if !ok {
		return nil, ErrGroupNotFound
	}
	ver, err := parseVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("redis: group %s: %w", id, err)
	}
	delete(all, versionField)
	return &Group{ID: id, Version: ver, Fields: all}, nil
}

func (s *RedisGroupStore) WriteGroup(ctx context.Context, id string, fields map[string]string, expectVersion int64) (int64, error) {
	argv := make([]any, 0, 1+2*len(fields))
	argv = append(argv, expectVersion)
	for k, v := range fields {
		if strings.HasPrefix(k, "__") {
			return 0, fmt.Errorf("redis: field %q is reserved", k)
		}
		argv = append(argv, k, v)
	}
	nv, err := luaWriteGroup.Run(ctx, s.rdb, []string{s.key(id)}, argv...).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: write group %s: %w", id, err)
	}
	if nv < 0 {
		return 0, ErrVersionConflict
	}
	return nv, nil
}

func (s *RedisGroupStore) DeleteGroup(ctx context.Context, id string, expectVersion int64) error {
	rc, err := luaDeleteGroup.Run(ctx, s.rdb, []string{s.key(id)}, expectVersion).Int64()
	if err != nil {
		return fmt.Errorf("redis: delete group %s: %w", id, err)
	}
	if rc < 0 {
		return ErrVersionConflict
	}
	return nil
}

func parseVersion(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("version has type %T", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", s, err)
	}
	return n, nil
}
