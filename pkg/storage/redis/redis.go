// Package redis is a thread.Storer backed by Redis.
//
// Each thread is a hash (<prefix>:thread:<id>) plus a list of JSON messages
// (<prefix>:messages:<id>). A sorted set (<prefix>:threads) scores
// thread ids by their last update in microseconds and backs List. Insert and
// Append run as Lua scripts so each is atomic on the server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/chatgate/pkg/thread"
)

// DefaultPrefix namespaces every key written by the driver.
const DefaultPrefix = "chatgate"

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'threadId', ARGV[1], 'title', ARGV[2], 'createdAt', ARGV[3])
for i = 5, #ARGV do
	redis.call('RPUSH', KEYS[2], ARGV[i])
end
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
return 1
`)

var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
local current = redis.call('ZSCORE', KEYS[3], ARGV[3])
if (not current) or tonumber(current) < tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[3], ARGV[2], ARGV[3])
end
return 1
`)

// Config holds connection settings.
type Config struct {
	URL    string // redis://[:password@]host:port/db
	Prefix string
}

// Driver stores threads in Redis.
type Driver struct {
	client *redis.Client
	prefix string
}

// NewDriver connects to Redis and pings it.
func NewDriver(ctx context.Context, cfg Config) (*Driver, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Driver{client: client, prefix: prefix}, nil
}

// Get reads the hash, the message list and the update score in one
// MULTI/EXEC block.
func (d *Driver) Get(ctx context.Context, id string) (*thread.Thread, error) {
	var (
		fields *redis.MapStringStringCmd
		msgs   *redis.StringSliceCmd
		score  *redis.FloatCmd
	)
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, d.threadKey(id))
		msgs = pipe.LRange(ctx, d.messagesKey(id), 0, -1)
		score = pipe.ZScore(ctx, d.indexKey(), id)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read thread: %w", err)
	}
	if len(fields.Val()) == 0 {
		return nil, thread.ErrNotFound{ThreadID: id}
	}

	t := &thread.Thread{
		ThreadID:  id,
		Title:     fields.Val()["title"],
		UpdatedAt: time.UnixMicro(int64(score.Val())).UTC(),
		Messages:  make([]thread.Message, 0, len(msgs.Val())),
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, fields.Val()["createdAt"]); err != nil {
		return nil, fmt.Errorf("decode createdAt: %w", err)
	}
	for _, raw := range msgs.Val() {
		var m thread.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		t.Messages = append(t.Messages, m)
	}
	return t, nil
}

// Insert creates the thread unless the hash already exists.
func (d *Driver) Insert(ctx context.Context, t *thread.Thread) error {
	if t == nil {
		return fmt.Errorf("cannot insert nil thread")
	}

	args := []any{
		t.ThreadID,
		t.Title,
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.UpdatedAt.UnixMicro(),
	}
	for _, m := range t.Messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		args = append(args, string(data))
	}

	keys := []string{d.threadKey(t.ThreadID), d.messagesKey(t.ThreadID), d.indexKey()}
	created, err := insertScript.Run(ctx, d.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	if created == 0 {
		return thread.ErrAlreadyExists{ThreadID: t.ThreadID}
	}
	return nil
}

// Append pushes the message and raises the update score.
func (d *Driver) Append(ctx context.Context, id string, msg thread.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	keys := []string{d.threadKey(id), d.messagesKey(id), d.indexKey()}
	ok, err := appendScript.Run(ctx, d.client, keys, string(data), msg.Timestamp.UnixMicro(), id).Int()
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if ok == 0 {
		return thread.ErrNotFound{ThreadID: id}
	}
	return nil
}

// List walks the index from the most recent score down.
func (d *Driver) List(ctx context.Context) ([]thread.Summary, error) {
	entries, err := d.client.ZRevRangeWithScores(ctx, d.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	fields := make([]*redis.MapStringStringCmd, len(entries))
	counts := make([]*redis.IntCmd, len(entries))
	_, err = d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, e := range entries {
			id := e.Member.(string)
			fields[i] = pipe.HGetAll(ctx, d.threadKey(id))
			counts[i] = pipe.LLen(ctx, d.messagesKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read threads: %w", err)
	}

	summaries := make([]thread.Summary, 0, len(entries))
	for i, e := range entries {
		f := fields[i].Val()
		if len(f) == 0 {
			// deleted between the two round trips
			continue
		}
		created, err := time.Parse(time.RFC3339Nano, f["createdAt"])
		if err != nil {
			return nil, fmt.Errorf("decode createdAt: %w", err)
		}
		summaries = append(summaries, thread.Summary{
			ThreadID:     e.Member.(string),
			Title:        f["title"],
			MessageCount: int(counts[i].Val()),
			CreatedAt:    created,
			UpdatedAt:    time.UnixMicro(int64(e.Score)).UTC(),
		})
	}
	return summaries, nil
}

// Delete drops the hash, the message list and the index entry together.
func (d *Driver) Delete(ctx context.Context, id string) (int, error) {
	var removed *redis.IntCmd
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, d.threadKey(id))
		pipe.Del(ctx, d.messagesKey(id))
		pipe.ZRem(ctx, d.indexKey(), id)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete thread: %w", err)
	}
	return int(removed.Val()), nil
}

// Close closes the client.
func (d *Driver) Close() error {
	return d.client.Close()
}

func (d *Driver) threadKey(id string) string {
	return d.prefix + ":thread:" + id
}

func (d *Driver) messagesKey(id string) string {
	return d.prefix + ":messages:" + id
}

func (d *Driver) indexKey() string {
	return d.prefix + ":threads"
}
