package notification

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/graph"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/internal/testutil"
)

type countPush struct {
	recipient int64
	count     int64
}

// recorder 记录推送，并在推送时核对库里的状态
type recorder struct {
	mu      sync.Mutex
	repo    repository.NotificationRepository
	notes   []*model.Notification
	counts  []countPush
	visible []bool // 推送时通知行是否已可见
	actual  []int64
}

func (r *recorder) DeliverNotification(ctx context.Context, n *model.Notification) {
	_, err := r.repo.GetByID(ctx, n.ID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	r.visible = append(r.visible, err == nil)
}

func (r *recorder) DeliverUnreadCount(ctx context.Context, recipientID, count int64) {
	actual, _ := r.repo.CountUnread(ctx, recipientID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, countPush{recipientID, count})
	r.actual = append(r.actual, actual)
}

func (r *recorder) lastCount(recipient int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.counts) - 1; i >= 0; i-- {
		if r.counts[i].recipient == recipient {
			return r.counts[i].count, true
		}
	}
	return 0, false
}

type fixture struct {
	db       *gorm.DB
	repo     repository.NotificationRepository
	follows  repository.FollowRepository
	fans     repository.FanRepository
	rec      *recorder
	engine   *Engine
	profiles []*model.Profile
}

func newFixture(t *testing.T, usernames ...string) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	repo := repository.NewNotificationRepository(db)
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	rec := &recorder{repo: repo}
	e := NewEngine(repo, repository.NewProfileRepository(db), graph.NewSQLReader(follows, fans), rec)
	return &fixture{db: db, repo: repo, follows: follows, fans: fans, rec: rec, engine: e,
		profiles: testutil.SeedProfiles(t, db, usernames...)}
}

func (f *fixture) follow(t *testing.T, follower, followee int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.follows.Create(ctx, follower, followee)
	require.NoError(t, err)
	require.NoError(t, f.fans.Create(ctx, followee, follower))
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Notification{}).Count(&n).Error)
	return n
}

func TestEngine_LikeCreatesExactlyOne(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	a, b := f.profiles[0], f.profiles[1]
	ctx := context.Background()
	p1 := &model.Post{ID: 11, CreatorID: a.ID}

	n, err := f.engine.CreateLike(ctx, b.ID, p1)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, a.ID, n.RecipientID)
	assert.Equal(t, b.ID, *n.SenderID)
	assert.Equal(t, model.NotificationLike, n.Type)
	assert.EqualValues(t, 11, *n.RelatedPostID)
	assert.Nil(t, n.RelatedCommentID)
	assert.False(t, n.IsRead)
	assert.Equal(t, "bob liked your post", n.Message)

	var rows []model.Notification
	require.NoError(t, f.db.Where("recipient_id = ? AND sender_id = ? AND type = ? AND related_post_id = ?",
		a.ID, b.ID, model.NotificationLike, 11).Find(&rows).Error)
	assert.Len(t, rows, 1)
}

func TestEngine_SelfActionsAreSuppressed(t *testing.T) {
	f := newFixture(t, "bob")
	b := f.profiles[0]
	ctx := context.Background()
	own := &model.Post{ID: 2, CreatorID: b.ID}
	c := &model.Comment{ID: 3, PostID: 2, CreatorID: b.ID, Content: "me"}

	calls := []func() (*model.Notification, error){
		func() (*model.Notification, error) { return f.engine.CreateLike(ctx, b.ID, own) },
		func() (*model.Notification, error) { return f.engine.CreateFollow(ctx, b.ID, b.ID) },
		func() (*model.Notification, error) { return f.engine.CreateUnfollow(ctx, b.ID, b.ID) },
		func() (*model.Notification, error) { return f.engine.CreateComment(ctx, b.ID, own, c) },
		func() (*model.Notification, error) { return f.engine.CreateLikeComment(ctx, b.ID, c) },
		func() (*model.Notification, error) { return f.engine.CreateMention(ctx, b.ID, b.ID, c) },
	}
	for _, call := range calls {
		n, err := call()
		assert.True(t, IsSuppressed(n, err))
	}
	assert.Zero(t, f.count(t))
	assert.Empty(t, f.rec.notes)
	assert.Empty(t, f.rec.counts)
}

func TestEngine_MessagesPerType(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	a, b := f.profiles[0], f.profiles[1]
	ctx := context.Background()
	post := &model.Post{ID: 5, CreatorID: a.ID}
	long := strings.Repeat("x", 60)
	comment := &model.Comment{ID: 9, PostID: 5, CreatorID: a.ID, Content: long}

	n, err := f.engine.CreateFollow(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob started following you", n.Message)

	n, err = f.engine.CreateUnfollow(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob unfollowed you", n.Message)

	n, err = f.engine.CreateComment(ctx, b.ID, post, comment)
	require.NoError(t, err)
	assert.Equal(t, "bob commented: "+strings.Repeat("x", 50)+"...", n.Message)
	assert.EqualValues(t, 9, *n.RelatedCommentID)

	n, err = f.engine.CreateLikeComment(ctx, b.ID, comment)
	require.NoError(t, err)
	assert.Equal(t, "bob liked your comment", n.Message)
	assert.EqualValues(t, 5, *n.RelatedPostID)

	n, err = f.engine.CreateMention(ctx, b.ID, a.ID, comment)
	require.NoError(t, err)
	assert.Equal(t, "bob mentioned you in a comment", n.Message)
	assert.Equal(t, model.NotificationMention, n.Type)
}

func TestEngine_UnknownSenderFails(t *testing.T) {
	f := newFixture(t, "alice")
	_, err := f.engine.CreateFollow(context.Background(), 999, f.profiles[0].ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Zero(t, f.count(t))
}

func TestEngine_NewPostFansOutAndSkipsUnknownFollowers(t *testing.T) {
	f := newFixture(t, "author", "f1", "f2")
	author, f1, f2 := f.profiles[0], f.profiles[1], f.profiles[2]
	f.follow(t, f1.ID, author.ID)
	f.follow(t, f2.ID, author.ID)
	f.follow(t, 4040, author.ID) // 没有资料的粉丝

	post := &model.Post{ID: 77, CreatorID: author.ID}
	n, err := f.engine.CreateNewPost(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var rows []model.Notification
	require.NoError(t, f.db.Order("recipient_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.ElementsMatch(t, []int64{f1.ID, f2.ID}, []int64{rows[0].RecipientID, rows[1].RecipientID})
	for _, r := range rows {
		assert.Equal(t, model.NotificationNewPost, r.Type)
		assert.Equal(t, "author posted something new", r.Message)
	}
	assert.Len(t, f.rec.notes, 2)
}

func TestEngine_PushesHappenAfterCommitWithCommittedCount(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	a, b, c := f.profiles[0], f.profiles[1], f.profiles[2]
	ctx := context.Background()
	post := &model.Post{ID: 1, CreatorID: a.ID}

	_, err := f.engine.CreateLike(ctx, b.ID, post)
	require.NoError(t, err)
	_, err = f.engine.CreateLike(ctx, c.ID, post)
	require.NoError(t, err)
	n3, err := f.engine.CreateFollow(ctx, b.ID, a.ID)
	require.NoError(t, err)

	for _, v := range f.rec.visible {
		assert.True(t, v, "notification pushed before it was committed")
	}
	for i, cp := range f.rec.counts {
		assert.Equal(t, f.rec.actual[i], cp.count)
	}
	cnt, _ := f.rec.lastCount(a.ID)
	assert.EqualValues(t, 3, cnt)

	require.NoError(t, f.engine.MarkRead(ctx, a.ID, n3.ID))
	cnt, _ = f.rec.lastCount(a.ID)
	assert.EqualValues(t, 2, cnt)

	require.NoError(t, f.engine.MarkAllRead(ctx, a.ID))
	cnt, _ = f.rec.lastCount(a.ID)
	assert.Zero(t, cnt)
}

func TestEngine_MarkReadIsMonotonicAndOwned(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	a, b := f.profiles[0], f.profiles[1]
	ctx := context.Background()

	n, err := f.engine.CreateFollow(ctx, b.ID, a.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.MarkRead(ctx, b.ID, n.ID), model.ErrForbidden)
	require.NoError(t, f.engine.MarkRead(ctx, a.ID, n.ID))
	pushes := len(f.rec.counts)
	require.NoError(t, f.engine.MarkRead(ctx, a.ID, n.ID))
	assert.Len(t, f.rec.counts, pushes, "re-marking does not push")

	require.NoError(t, f.engine.MarkAllRead(ctx, a.ID))
	got, err := f.repo.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	assert.ErrorIs(t, f.engine.MarkRead(ctx, a.ID, 9999), model.ErrNotFound)
}

func TestEngine_DeletePushesOnlyForUnread(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	a, b := f.profiles[0], f.profiles[1]
	ctx := context.Background()
	post := &model.Post{ID: 1, CreatorID: a.ID}

	read, err := f.engine.CreateFollow(ctx, b.ID, a.ID)
	require.NoError(t, err)
	unread, err := f.engine.CreateLike(ctx, b.ID, post)
	require.NoError(t, err)
	require.NoError(t, f.engine.MarkRead(ctx, a.ID, read.ID))

	assert.ErrorIs(t, f.engine.Delete(ctx, b.ID, unread.ID), model.ErrForbidden)

	pushes := len(f.rec.counts)
	require.NoError(t, f.engine.Delete(ctx, a.ID, read.ID))
	assert.Len(t, f.rec.counts, pushes)

	require.NoError(t, f.engine.Delete(ctx, a.ID, unread.ID))
	assert.Len(t, f.rec.counts, pushes+1)
	cnt, _ := f.rec.lastCount(a.ID)
	assert.Zero(t, cnt)
}

func TestEngine_DeleteForPostAndComment(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	a, b := f.profiles[0], f.profiles[1]
	ctx := context.Background()
	post := &model.Post{ID: 50, CreatorID: a.ID}
	other := &model.Post{ID: 51, CreatorID: a.ID}
	comment := &model.Comment{ID: 60, PostID: 51, CreatorID: a.ID, Content: "hi"}

	_, err := f.engine.CreateLike(ctx, b.ID, post)
	require.NoError(t, err)
	_, err = f.engine.CreateLikeComment(ctx, b.ID, comment)
	require.NoError(t, err)
	_, err = f.engine.CreateLike(ctx, b.ID, other)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteForPost(ctx, 50))
	assert.EqualValues(t, 2, f.count(t))
	cnt, _ := f.rec.lastCount(a.ID)
	assert.EqualValues(t, 2, cnt)

	require.NoError(t, f.engine.DeleteForComment(ctx, 60))
	assert.EqualValues(t, 1, f.count(t))

	// 没有关联通知时不推送
	pushes := len(f.rec.counts)
	require.NoError(t, f.engine.DeleteForPost(ctx, 12345))
	assert.Len(t, f.rec.counts, pushes)
}

func TestEngine_SweepUsesRetention(t *testing.T) {
	f := newFixture(t, "alice")
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	f.engine = NewEngine(f.repo, repository.NewProfileRepository(f.db), nil, nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, f.repo.Create(ctx, &model.Notification{RecipientID: 1, Type: model.NotificationFollow, CreatedAt: now.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, f.repo.Create(ctx, &model.Notification{RecipientID: 1, Type: model.NotificationFollow, CreatedAt: now.Add(-24 * time.Hour)}))

	n, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.EqualValues(t, 1, f.count(t))
}

func TestEngine_ListPaging(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	a, b := f.profiles[0], f.profiles[1]
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		_, err := f.engine.CreateLike(ctx, b.ID, &model.Post{ID: i, CreatorID: a.ID})
		require.NoError(t, err)
	}

	res, err := f.engine.List(ctx, a.ID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.EqualValues(t, 3, res.Total)
	assert.True(t, res.HasMore)

	res, err = f.engine.List(ctx, a.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.False(t, res.HasMore)

	_, err = f.engine.List(ctx, a.ID, 0, 0)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	unread, err := f.engine.UnreadCount(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, unread)
}

type mockDeliverer struct{ mock.Mock }

func (m *mockDeliverer) DeliverNotification(ctx context.Context, n *model.Notification) {
	m.Called(n.RecipientID, n.Type)
}

func (m *mockDeliverer) DeliverUnreadCount(ctx context.Context, recipientID, count int64) {
	m.Called(recipientID, count)
}

func TestEngine_DeliversNotificationThenCount(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.SeedProfiles(t, db, "alice", "bob")
	d := &mockDeliverer{}
	d.On("DeliverNotification", p[0].ID, model.NotificationFollow).Once()
	d.On("DeliverUnreadCount", p[0].ID, int64(1)).Once()

	e := NewEngine(repository.NewNotificationRepository(db), repository.NewProfileRepository(db), nil, d)
	_, err := e.CreateFollow(context.Background(), p[1].ID, p[0].ID)
	require.NoError(t, err)
	d.AssertExpectations(t)
}
