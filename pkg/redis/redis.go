// Package redis wraps go-redis with a key prefix and the small set of key and
// stream commands the gateway uses for locks, idempotency markers and the
// effect queue.
package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var NilError = goredis.Nil

var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options = goredis.UniversalOptions

// StreamMessage is one stream entry.
type StreamMessage struct {
	ID     string
	Values map[string]any
}

// PendingEntry is a delivered but unacknowledged stream entry.
type PendingEntry struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	Deliveries int64
}

type RedisAdapter interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	DelIfEquals(ctx context.Context, key string, value []byte) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error

	XAdd(ctx context.Context, stream string, values map[string]any, maxLen int64) (string, error)
	XGroupCreate(ctx context.Context, stream, group string) error
	XReadGroup(ctx context.Context, stream, group, consumer string, count int64) ([]StreamMessage, error)
	XAck(ctx context.Context, stream, group string, ids ...string) error
	XLen(ctx context.Context, stream string) (int64, error)
	XPendingSummary(ctx context.Context, stream, group string) (*goredis.XPending, error)
	XPendingIdle(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingEntry, error)
	XClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error)
}

type redisAdapter struct {
	prefix string
	conn   goredis.UniversalClient
	name   string
}

var (
	registryMu sync.Mutex
	registry   = map[string]RedisAdapter{}
)

// NewRedisAdapter connects and pings once per connName. Later calls with the
// same name return the first adapter and ignore their options.
func NewRedisAdapter(connName string, keysPrefix string, opts *goredis.UniversalOptions) (RedisAdapter, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if adapter, ok := registry[connName]; ok {
		return adapter, nil
	}

	c := goredis.NewUniversalClient(opts)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}

	adapter := &redisAdapter{prefix: keysPrefix, conn: c, name: connName}
	registry[connName] = adapter
	return adapter, nil
}

func (r *redisAdapter) key(k string) string {
	return r.prefix + k
}

func (r *redisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.conn.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *redisAdapter) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.conn.SetNX(ctx, r.key(key), value, ttl).Result()
}

func (r *redisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return r.conn.Get(ctx, r.key(key)).Bytes()
}

func (r *redisAdapter) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.conn.Del(ctx, full...).Err()
}

// DelIfEquals removes key only while it still holds value, so a lock
// that expired and was taken by someone else is left alone.
func (r *redisAdapter) DelIfEquals(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.conn, []string{r.key(key)}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *redisAdapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.conn.Exists(ctx, r.key(key)).Result()
	return n > 0, err
}

// IncrWithTTL increments a counter and refreshes its expiry in one MULTI.
func (r *redisAdapter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *goredis.IntCmd
	_, err := r.conn.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, r.key(key))
		p.Expire(ctx, r.key(key), ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *redisAdapter) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx).Err()
}

// XAdd appends an entry, trimming the stream to about maxLen entries when
// maxLen is positive.
func (r *redisAdapter) XAdd(ctx context.Context, stream string, values map[string]any, maxLen int64) (string, error) {
	args := &goredis.XAddArgs{Stream: r.key(stream), ID: "*", Values: values}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return r.conn.XAdd(ctx, args).Result()
}

// XGroupCreate creates the stream and group from the beginning of the
// stream. An existing group is not an error.
func (r *redisAdapter) XGroupCreate(ctx context.Context, stream, group string) error {
	err := r.conn.XGroupCreateMkStream(ctx, r.key(stream), group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// XReadGroup reads up to count entries never delivered to the group. It does
// not block; an empty stream returns NilError.
func (r *redisAdapter) XReadGroup(ctx context.Context, stream, group, consumer string, count int64) ([]StreamMessage, error) {
	streams, err := r.conn.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.key(stream), ">"},
		Count:    count,
		Block:    -1,
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []StreamMessage
	for _, s := range streams {
		out = append(out, toStreamMessages(s.Messages)...)
	}
	return out, nil
}

func (r *redisAdapter) XAck(ctx context.Context, stream, group string, ids ...string) error {
	return r.conn.XAck(ctx, r.key(stream), group, ids...).Err()
}

func (r *redisAdapter) XLen(ctx context.Context, stream string) (int64, error) {
	return r.conn.XLen(ctx, r.key(stream)).Result()
}

func (r *redisAdapter) XPendingSummary(ctx context.Context, stream, group string) (*goredis.XPending, error) {
	return r.conn.XPending(ctx, r.key(stream), group).Result()
}

// XPendingIdle lists up to count pending entries idle for at least minIdle.
func (r *redisAdapter) XPendingIdle(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingEntry, error) {
	pending, err := r.conn.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: r.key(stream),
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []PendingEntry
	for _, p := range pending {
		if p.Idle < minIdle {
			continue
		}
		out = append(out, PendingEntry{ID: p.ID, Consumer: p.Consumer, Idle: p.Idle, Deliveries: p.RetryCount})
	}
	return out, nil
}

func (r *redisAdapter) XClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	messages, err := r.conn.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   r.key(stream),
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return toStreamMessages(messages), nil
}

func toStreamMessages(in []goredis.XMessage) []StreamMessage {
	out := make([]StreamMessage, len(in))
	for i, m := range in {
		out[i] = StreamMessage{ID: m.ID, Values: m.Values}
	}
	return out
}
