package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// ==========================
// Core Functionality Tests
// ==========================

func TestRedisLedger_RecordAndLookup(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedisLedger(client, time.Hour)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	entry, err := l.Lookup(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, l.Record(ctx, "job-1", Entry{ProviderMessageID: "wamid.1", DispatchedAt: at}))

	entry, err = l.Lookup(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "wamid.1", entry.ProviderMessageID)
	assert.True(t, at.Equal(entry.DispatchedAt))

	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"job-1"))
}

func TestRedisLedger_FirstRecordWins(t *testing.T) {
	_, client := setupRedis(t)
	l := NewRedisLedger(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "job-2", Entry{ProviderMessageID: "first"}))
	require.NoError(t, l.Record(ctx, "job-2", Entry{ProviderMessageID: "second"}))

	entry, err := l.Lookup(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, "first", entry.ProviderMessageID)
}

func TestRedisLedger_Expiry(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRedisLedger(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "job-3", Entry{ProviderMessageID: "m"}))
	mr.FastForward(2 * time.Minute)

	entry, err := l.Lookup(ctx, "job-3")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

// ==========================
// Error Handling Tests
// ==========================

func TestRedisLedger_Errors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLedger(client, time.Hour)
	ctx := context.Background()

	entry := Entry{ProviderMessageID: "wamid.9", DispatchedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	value, err := json.Marshal(entry)
	require.NoError(t, err)

	mock.ExpectSetNX(keyPrefix+"job-9", value, time.Hour).SetErr(errors.New("READONLY"))
	mock.ExpectGet(keyPrefix + "job-9").SetErr(errors.New("connection reset"))
	mock.ExpectGet(keyPrefix + "job-10").SetVal("not-json")

	err = l.Record(ctx, "job-9", entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")

	_, err = l.Lookup(ctx, "job-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	_, err = l.Lookup(ctx, "job-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode ledger entry")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoopLedger(t *testing.T) {
	var l Ledger = NoopLedger{}
	assert.NoError(t, l.Record(context.Background(), "job", Entry{}))

	entry, err := l.Lookup(context.Background(), "job")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}
