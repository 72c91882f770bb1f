package counter

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
)

// recordScript increments all three window counters in one atomic call.
// KEYS[1..3] = minute, hour, day hash keys
// ARGV[1]    = tokens to add
// ARGV[2..4] = TTL in milliseconds per key
//
// The TTL is set only when the key carries none (PTTL < 0), i.e. exactly
// once per window lifetime. Increments never extend the expiry.
const recordScript = `
local tokens = tonumber(ARGV[1])

for i, key in ipairs(KEYS) do
  redis.call("HINCRBY", key, "total_tokens", tokens)
  redis.call("HINCRBY", key, "request_count", 1)
  if redis.call("PTTL", key) < 0 then
    redis.call("PEXPIRE", key, tonumber(ARGV[i + 1]))
  end
end

return 1
`

// RedisStore is the production counter store backed by a shared redis.
type RedisStore struct {
	client redis.Cmdable
	script *redis.Script
	grace  time.Duration
}

// NewRedisStore creates a counter store on an existing redis client.
func NewRedisStore(client redis.Cmdable, grace time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		script: redis.NewScript(recordScript),
		grace:  grace,
	}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Record(ctx context.Context, id directorydomain.ResolvedIdentity, usage TokenUsage) error {
	windows := Windows()
	keys := make([]string, 0, len(windows))
	args := make([]interface{}, 0, len(windows)+1)
	args = append(args, usage.TotalTokens)
	for _, w := range windows {
		keys = append(keys, Key(id, w))
		args = append(args, int64(w.TTL(s.grace)/time.Millisecond))
	}
	return s.script.Run(ctx, s.client, keys, args...).Err()
}

func (s *RedisStore) Aggregate(ctx context.Context, id directorydomain.ResolvedIdentity, w Window) (Aggregate, error) {
	values, err := s.client.HMGet(ctx, Key(id, w), "total_tokens", "request_count").Result()
	if err != nil {
		return Aggregate{}, err
	}
	return decodeAggregate(values), nil
}

func (s *RedisStore) Snapshot(ctx context.Context, id directorydomain.ResolvedIdentity) (Snapshot, error) {
	windows := Windows()
	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, 0, len(windows))
	for _, w := range windows {
		cmds = append(cmds, pipe.HMGet(ctx, Key(id, w), "total_tokens", "request_count"))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	for i, w := range windows {
		agg := decodeAggregate(cmds[i].Val())
		switch w {
		case WindowMinute:
			snap.Minute = agg
		case WindowHour:
			snap.Hour = agg
		case WindowDay:
			snap.Day = agg
		}
	}
	return snap, nil
}

// decodeAggregate maps the HMGET reply to an Aggregate. Missing fields (nil
// values from an absent or expired key) decode to the zero aggregate.
func decodeAggregate(values []interface{}) Aggregate {
	var agg Aggregate
	if len(values) > 0 {
		agg.TotalTokens = castToInt(values[0])
	}
	if len(values) > 1 {
		agg.RequestCount = castToInt(values[1])
	}
	return agg
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
