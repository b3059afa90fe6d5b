// Package rediskv implements the storage contract (storage.Backend) over
// Redis, grounded on the generic type-safe Redis client the retrieved
// corpus's remediation platform ships in pkg/cache/redis: a thin client
// wrapping *redis.Client with an explicit EnsureConnection step, backed
// here by github.com/redis/go-redis/v9. Reconnection backs off with
// github.com/cenkalti/backoff/v4 rather than failing on the first dial
// error.
package rediskv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/internal/qlog"
	"github.com/arqcache/qcache/storage"
	"github.com/arqcache/qcache/tagpath"
)

// Client wraps a *redis.Client with the connection lifecycle the backend
// needs: construct cheaply, then EnsureConnection before first use.
type Client struct {
	rdb *redis.Client
}

// NewClient constructs a Client from redis.Options without dialing yet.
func NewClient(opts *redis.Options) *Client {
	return &Client{rdb: redis.NewClient(opts)}
}

// EnsureConnection pings Redis, retrying with exponential backoff up to
// five times after the first attempt, and stopping early once ctx is done.
func (c *Client) EnsureConnection(ctx context.Context) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		return c.rdb.Ping(ctx).Err()
	}, policy)
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// tagInvalidationPrefix namespaces tag-timestamp keys so they never
// collide with entry keys or the verification stream, inside one shared
// Redis keyspace.
const tagInvalidationPrefix = "qcache:taginv:"

// verificationStreamKey is a capped stream ReportVerification appends to;
// a backend-local choice for observing sampled verification results, not
// part of the storage contract itself.
const verificationStreamKey = "qcache:verify"

// Backend is a storage.Backend over Redis.
type Backend struct {
	client *Client

	// keyPrefix bounds Clear to this backend's own namespace (entry keys
	// of the form "{keyPrefix}:{key}") rather than every key in the
	// connected Redis logical database. It should match the engine's own
	// key prefix (engine.WithPrefix), so qcache and whatever else shares
	// that Redis instance never collide.
	keyPrefix string
}

// New wraps an already-connected Client as a storage.Backend. keyPrefix
// must match the engine's configured key prefix (default "qc") so Clear
// only touches qcache's own keys.
func New(client *Client, keyPrefix string) *Backend {
	return &Backend{client: client, keyPrefix: keyPrefix}
}

var (
	_ storage.Backend              = (*Backend)(nil)
	_ storage.VerificationReporter = (*Backend)(nil)
)

type wireEntry struct {
	Value      json.RawMessage `json:"value"`
	Tags       []string        `json:"tags"`
	CreatedAt  int64           `json:"created_at"`
	ExpiresAt  int64           `json:"expires_at"`
	GraceUntil *int64          `json:"grace_until,omitempty"`
}

// Get implements storage.Backend.
func (b *Backend) Get(ctx context.Context, key string) (entry.Entry, error) {
	raw, err := b.client.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return entry.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return entry.Entry{}, fmt.Errorf("rediskv: get %s: %w", key, err)
	}

	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return entry.Entry{}, fmt.Errorf("rediskv: decode %s: %w", key, err)
	}
	var value any
	if err := json.Unmarshal(w.Value, &value); err != nil {
		return entry.Entry{}, fmt.Errorf("rediskv: decode value %s: %w", key, err)
	}
	tags := make([]tagpath.Path, len(w.Tags))
	for i, s := range w.Tags {
		tags[i] = tagpath.Deserialize(s)
	}
	return entry.Entry{
		Value:      value,
		Tags:       tags,
		CreatedAt:  w.CreatedAt,
		ExpiresAt:  w.ExpiresAt,
		GraceUntil: w.GraceUntil,
	}, nil
}

// Set implements storage.Backend. The Redis-native TTL is derived from
// GraceUntil (falling back to ExpiresAt) per spec §6's MAY clause, so
// expired rows drop out of Redis passively even if qcache never reads
// them again.
func (b *Backend) Set(ctx context.Context, key string, e entry.Entry) error {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return fmt.Errorf("rediskv: encode value for %s: %w", key, err)
	}
	tags := make([]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = tagpath.Serialize(t)
	}
	w := wireEntry{Value: value, Tags: tags, CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt, GraceUntil: e.GraceUntil}
	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("rediskv: encode entry for %s: %w", key, err)
	}

	deadlineMS := e.ExpiresAt
	if e.GraceUntil != nil {
		deadlineMS = *e.GraceUntil
	}
	ttl := time.Duration(deadlineMS-e.CreatedAt) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	if err := b.client.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("rediskv: set %s: %w", key, err)
	}
	return nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("rediskv: delete %s: %w", key, err)
	}
	return nil
}

// GetTagInvalidation implements storage.Backend.
func (b *Backend) GetTagInvalidation(ctx context.Context, serializedTag string) (int64, error) {
	s, err := b.client.rdb.Get(ctx, tagInvalidationPrefix+serializedTag).Result()
	if err == redis.Nil {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("rediskv: get tag invalidation %s: %w", serializedTag, err)
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rediskv: decode tag invalidation %s: %w", serializedTag, err)
	}
	return ms, nil
}

// SetTagInvalidation implements storage.Backend. Timestamps have no TTL:
// the set may grow without bound per spec §3, and this backend never
// ages it.
func (b *Backend) SetTagInvalidation(ctx context.Context, serializedTag string, ms int64) error {
	if err := b.client.rdb.Set(ctx, tagInvalidationPrefix+serializedTag, ms, 0).Err(); err != nil {
		return fmt.Errorf("rediskv: set tag invalidation %s: %w", serializedTag, err)
	}
	return nil
}

// Clear implements storage.Backend by removing only keys under this
// backend's own namespace: entries matching "{keyPrefix}:*", tag
// invalidation timestamps under tagInvalidationPrefix, and the
// verification stream. It never scans or deletes keys outside that
// namespace, so pointing it at a Redis instance shared with other
// applications doesn't wipe unrelated data.
func (b *Backend) Clear(ctx context.Context) error {
	var keys []string
	for _, pattern := range []string{b.keyPrefix + ":*", tagInvalidationPrefix + "*"} {
		iter := b.client.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("rediskv: clear scan %s: %w", pattern, err)
		}
	}
	keys = append(keys, verificationStreamKey)

	if err := b.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rediskv: clear del: %w", err)
	}
	return nil
}

// Disconnect implements storage.Backend.
func (b *Backend) Disconnect(ctx context.Context) error {
	return b.client.Close()
}

// ReportVerification implements storage.VerificationReporter by
// appending a capped entry to a Redis stream. A failed append is
// swallowed by the engine (E-Verification, spec §7) — this method simply
// reports what happened.
func (b *Backend) ReportVerification(ctx context.Context, report storage.VerificationReport) error {
	err := b.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: verificationStreamKey,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"key":         report.Key,
			"is_stale":    report.IsStale,
			"cached_hash": report.CachedHash,
			"fresh_hash":  report.FreshHash,
			"timestamp":   report.Timestamp,
		},
	}).Err()
	if err != nil {
		qlog.Warn("rediskv: report verification for %s: %v", report.Key, err)
		return fmt.Errorf("rediskv: report verification: %w", err)
	}
	return nil
}
