package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/testutil"
)

func TestNotificationRepository_UnreadLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	batch := []*model.Notification{
		{RecipientID: 1, Type: model.NotificationNewPost, Message: "x posted", RelatedPostID: model.Int64Ptr(7)},
		{RecipientID: 1, Type: model.NotificationLike, Message: "y liked", RelatedPostID: model.Int64Ptr(8)},
		{RecipientID: 2, Type: model.NotificationNewPost, Message: "x posted", RelatedPostID: model.Int64Ptr(7)},
	}
	require.NoError(t, repo.CreateBatch(ctx, batch))

	cnt, err := repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cnt)

	require.NoError(t, repo.MarkRead(ctx, batch[0].ID))
	require.NoError(t, repo.MarkRead(ctx, batch[0].ID))
	cnt, err = repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cnt)

	require.NoError(t, repo.MarkAllRead(ctx, 1))
	cnt, err = repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, cnt)

	recipients, err := repo.DeleteByPost(ctx, 7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, recipients)

	list, err := repo.ListByRecipient(ctx, 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationLike, list[0].Type)
	assert.True(t, list[0].IsRead)
}

func TestNotificationRepository_DeleteOlderThan(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	old := &model.Notification{RecipientID: 1, Type: model.NotificationFollow, CreatedAt: now.Add(-31 * 24 * time.Hour)}
	fresh := &model.Notification{RecipientID: 1, Type: model.NotificationFollow, CreatedAt: now.Add(-29 * 24 * time.Hour)}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	removed, err := repo.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = repo.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = repo.GetByID(ctx, fresh.ID)
	assert.NoError(t, err)
}
