package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/testutil"
)

func newQueue(t *testing.T, minIdle time.Duration) (*StreamQueue, *redis.Client) {
	t.Helper()
	_, rdb := testutil.NewRedis(t)
	q := NewStreamQueue(rdb, config.QueueConfig{
		Stream:  "events:test",
		Group:   "fanout",
		Batch:   10,
		Block:   -1,
		MinIdle: minIdle,
	})
	require.NoError(t, q.EnsureGroup(context.Background()))
	return q, rdb
}

func TestStreamQueue_PublishFetchAck(t *testing.T) {
	q, _ := newQueue(t, 0)
	ctx := context.Background()

	require.NoError(t, q.EnsureGroup(ctx), "group creation is idempotent")
	require.NoError(t, q.PublishPostCreated(ctx, 123))
	require.NoError(t, q.PublishPostCreated(ctx, 124))

	got, err := q.Fetch(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 123, got[0].PostID)
	assert.EqualValues(t, 124, got[1].PostID)
	assert.False(t, got[0].PublishedAt.IsZero())

	require.NoError(t, q.Ack(ctx, got[0].ID, got[1].ID))

	got, err = q.Fetch(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStreamQueue_UnackedIsReclaimed(t *testing.T) {
	q, _ := newQueue(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.PublishPostCreated(ctx, 7))
	first, err := q.Fetch(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// c1 未确认，c2 在空闲超时后认领同一事件
	time.Sleep(5 * time.Millisecond)
	again, err := q.Fetch(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)
	assert.EqualValues(t, 7, again[0].PostID)
}

func TestStreamQueue_MalformedIsAcked(t *testing.T) {
	q, rdb := newQueue(t, 0)
	ctx := context.Background()

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{Stream: "events:test", Values: map[string]any{"post_id": "abc"}}).Err())
	got, err := q.Fetch(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got)

	pending, err := rdb.XPending(ctx, "events:test", "fanout").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestIDTime(t *testing.T) {
	assert.Equal(t, time.UnixMilli(1700000000000), idTime("1700000000000-0"))
	assert.True(t, idTime("bogus").IsZero())
}
