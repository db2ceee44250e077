// Package ledger remembers which jobs were handed to a provider, so a job
// whose status write failed after a successful send is never sent twice.
package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "notifications:dispatched:"

type Entry struct {
	ProviderMessageID string    `json:"providerMessageId"`
	DispatchedAt      time.Time `json:"dispatchedAt"`
}

type Ledger interface {
	Record(ctx context.Context, jobID string, entry Entry) error
	Lookup(ctx context.Context, jobID string) (*Entry, error)
}

type RedisLedger struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLedger(client redis.Cmdable, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func key(jobID string) string {
	return keyPrefix + jobID
}

// Record stores the first successful dispatch of a job. Later records for the
// same job are ignored.
func (l *RedisLedger) Record(ctx context.Context, jobID string, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := l.client.SetNX(ctx, key(jobID), value, l.ttl).Err(); err != nil {
		return fmt.Errorf("ledger record %s: %w", jobID, err)
	}
	return nil
}

// Lookup returns nil, nil when the job has no recorded dispatch.
func (l *RedisLedger) Lookup(ctx context.Context, jobID string) (*Entry, error) {
	raw, err := l.client.Get(ctx, key(jobID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger lookup %s: %w", jobID, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode ledger entry %s: %w", jobID, err)
	}
	return &entry, nil
}

// NoopLedger is used when Redis is not configured. It never reports a hit.
type NoopLedger struct{}

func (NoopLedger) Record(context.Context, string, Entry) error    { return nil }
func (NoopLedger) Lookup(context.Context, string) (*Entry, error) { return nil, nil }
