package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/graph"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/notification"
	"github.com/d60-Lab/social-feed/internal/queue"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/internal/testutil"
)

type env struct {
	db         *gorm.DB
	rdb        *redis.Client
	posts      repository.PostRepository
	notes      repository.NotificationRepository
	cache      feed.Cache
	loader     feed.PostLoader
	queue      *queue.StreamQueue
	engine     *notification.Engine
	relations  RelationshipService
	postSvc    *PostService
	engagement *EngagementService
	profiles   []*model.Profile
}

func newEnv(t *testing.T, usernames ...string) *env {
	t.Helper()
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	ctx := context.Background()

	posts := repository.NewPostRepository(db)
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	profiles := repository.NewProfileRepository(db)
	notes := repository.NewNotificationRepository(db)
	comments := repository.NewCommentRepository(db)
	likes := repository.NewLikeRepository(db)

	q := queue.NewStreamQueue(rdb, config.QueueConfig{Stream: "events:post_created", Group: "fanout", Batch: 10, Block: -1})
	require.NoError(t, q.EnsureGroup(ctx))
	cache := feed.NewRedisCache(rdb, feed.CacheOptions{})
	loader := feed.NewPostLoader(posts, rdb, time.Minute)
	engine := notification.NewEngine(notes, profiles, graph.NewSQLReader(follows, fans), nil)

	return &env{
		db: db, rdb: rdb, posts: posts, notes: notes, cache: cache, loader: loader, queue: q, engine: engine,
		relations:  NewRelationshipService(follows, fans, profiles, WithNotifier(engine)),
		postSvc:    NewPostService(posts, q, engine, cache, loader),
		engagement: NewEngagementService(posts, comments, likes, profiles, engine),
		profiles:   testutil.SeedProfiles(t, db, usernames...),
	}
}

func (e *env) notifications(t *testing.T, typ model.NotificationType) []model.Notification {
	t.Helper()
	var rows []model.Notification
	require.NoError(t, e.db.Where("type = ?", typ).Order("id").Find(&rows).Error)
	return rows
}

func TestPostService_PublishEmitsEventAndNotifiesFollowers(t *testing.T) {
	e := newEnv(t, "author", "fan")
	author, fan := e.profiles[0], e.profiles[1]
	ctx := context.Background()
	require.NoError(t, e.relations.Follow(ctx, fan.ID, author.ID))

	post, err := e.postSvc.Publish(ctx, author.ID, "  hello  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", post.Caption)

	batch, err := e.queue.Fetch(ctx, "c")
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, post.ID, batch[0].PostID)

	rows := e.notifications(t, model.NotificationNewPost)
	require.Len(t, rows, 1)
	assert.Equal(t, fan.ID, rows[0].RecipientID)
	assert.Equal(t, post.ID, *rows[0].RelatedPostID)

	_, err = e.postSvc.Publish(ctx, author.ID, " ", "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

type brokenPublisher struct{}

func (brokenPublisher) PublishPostCreated(context.Context, int64) error {
	return errors.New("queue down")
}

func TestPostService_PublishSucceedsWhenQueueFails(t *testing.T) {
	e := newEnv(t, "author")
	svc := NewPostService(e.posts, brokenPublisher{}, e.engine, e.cache, e.loader)

	post, err := svc.Publish(context.Background(), e.profiles[0].ID, "still saved", "")
	require.NoError(t, err)
	_, err = e.posts.GetByID(context.Background(), post.ID)
	assert.NoError(t, err)
}

func TestPostService_DeleteCompensates(t *testing.T) {
	e := newEnv(t, "author", "fan")
	author, fan := e.profiles[0], e.profiles[1]
	ctx := context.Background()
	require.NoError(t, e.relations.Follow(ctx, fan.ID, author.ID))

	post, err := e.postSvc.Publish(ctx, author.ID, "bye soon", "")
	require.NoError(t, err)
	require.NoError(t, e.cache.AppendPostToOwners(ctx, post.ID, []int64{fan.ID, 999}))
	require.NoError(t, e.engagement.LikePost(ctx, fan.ID, post.ID))
	_, err = e.loader.Load(ctx, []int64{post.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, e.postSvc.Delete(ctx, fan.ID, post.ID), model.ErrForbidden)
	require.NoError(t, e.postSvc.Delete(ctx, author.ID, post.ID))

	for _, owner := range []int64{fan.ID, 999} {
		ids, err := e.cache.GetPage(ctx, owner, 10, 0)
		require.NoError(t, err)
		assert.NotContains(t, ids, post.ID)
	}
	var n int64
	require.NoError(t, e.db.Model(&model.Notification{}).Where("related_post_id = ?", post.ID).Count(&n).Error)
	assert.Zero(t, n)
	assert.Zero(t, e.rdb.Exists(ctx, "post:"+itoa(post.ID)).Val())

	assert.ErrorIs(t, e.postSvc.Delete(ctx, author.ID, post.ID), model.ErrNotFound)
}

func TestEngagementService_LikeNotifiesOnceAndNeverSelf(t *testing.T) {
	e := newEnv(t, "alice", "bob")
	a, b := e.profiles[0], e.profiles[1]
	ctx := context.Background()
	p1, err := e.postSvc.Publish(ctx, a.ID, "p1", "")
	require.NoError(t, err)
	p2, err := e.postSvc.Publish(ctx, b.ID, "p2", "")
	require.NoError(t, err)

	require.NoError(t, e.engagement.LikePost(ctx, b.ID, p1.ID))
	require.NoError(t, e.engagement.LikePost(ctx, b.ID, p1.ID))
	require.NoError(t, e.engagement.LikePost(ctx, b.ID, p2.ID))

	rows := e.notifications(t, model.NotificationLike)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].RecipientID)
	assert.Equal(t, b.ID, *rows[0].SenderID)
	assert.Equal(t, p1.ID, *rows[0].RelatedPostID)

	assert.ErrorIs(t, e.engagement.LikePost(ctx, b.ID, 9999), model.ErrNotFound)
}

func TestEngagementService_CommentMentionsAndDelete(t *testing.T) {
	e := newEnv(t, "alice", "bob", "carol")
	a, b, c := e.profiles[0], e.profiles[1], e.profiles[2]
	ctx := context.Background()
	post, err := e.postSvc.Publish(ctx, a.ID, "pic", "")
	require.NoError(t, err)

	comment, err := e.engagement.Comment(ctx, b.ID, post.ID, "nice @carol and @bob and @nobody")
	require.NoError(t, err)

	assert.Len(t, e.notifications(t, model.NotificationComment), 1)
	mentions := e.notifications(t, model.NotificationMention)
	require.Len(t, mentions, 1, "self mention suppressed, unknown user ignored")
	assert.Equal(t, c.ID, mentions[0].RecipientID)

	require.NoError(t, e.engagement.LikeComment(ctx, a.ID, comment.ID))
	require.NoError(t, e.engagement.LikeComment(ctx, a.ID, comment.ID))
	assert.Len(t, e.notifications(t, model.NotificationLikeComment), 1)

	assert.ErrorIs(t, e.engagement.DeleteComment(ctx, c.ID, comment.ID), model.ErrForbidden)
	// 帖子作者可以删除别人的评论
	require.NoError(t, e.engagement.DeleteComment(ctx, a.ID, comment.ID))

	var n int64
	require.NoError(t, e.db.Model(&model.Notification{}).Where("related_comment_id = ?", comment.ID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = e.engagement.Comment(ctx, b.ID, post.ID, "   ")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestRelationshipService_FollowUnfollow(t *testing.T) {
	e := newEnv(t, "alice", "bob")
	a, b := e.profiles[0], e.profiles[1]
	ctx := context.Background()

	assert.ErrorIs(t, e.relations.Follow(ctx, a.ID, a.ID), ErrFollowSelf)
	assert.ErrorIs(t, e.relations.Follow(ctx, a.ID, 999), model.ErrNotFound)

	require.NoError(t, e.relations.Follow(ctx, b.ID, a.ID))
	require.NoError(t, e.relations.Follow(ctx, b.ID, a.ID))
	assert.Len(t, e.notifications(t, model.NotificationFollow), 1)

	fans, err := e.relations.ListFans(ctx, a.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, fans)
	following, err := e.relations.ListFollowing(ctx, b.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, following)

	require.NoError(t, e.relations.Unfollow(ctx, b.ID, a.ID))
	require.NoError(t, e.relations.Unfollow(ctx, b.ID, a.ID))
	assert.Len(t, e.notifications(t, model.NotificationUnfollow), 1)

	fans, err = e.relations.ListFans(ctx, a.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, fans)
}

func TestRelationshipService_AsyncReplicator(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.SeedProfiles(t, db, "alice", "bob")
	fans := repository.NewFanRepository(db)
	rep := NewFanReplicator(fans, 16)
	stop := rep.Start(1)
	svc := NewRelationshipService(repository.NewFollowRepository(db), fans, repository.NewProfileRepository(db), WithReplicator(rep))
	ctx := context.Background()

	require.NoError(t, svc.Follow(ctx, p[1].ID, p[0].ID))
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, stop(stopCtx))

	ids, err := fans.FanIDs(ctx, p[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{p[1].ID}, ids)

	select {
	case <-rep.Metrics():
	default:
		t.Fatal("expected replication latency sample")
	}
}

func TestRelationshipService_RetryRepairsFanAfterFailure(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.SeedProfiles(t, db, "alice", "bob")
	alice, bob := p[0], p[1]
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	setFailures := failFanWrites(t, db, 1)
	notes := repository.NewNotificationRepository(db)
	profiles := repository.NewProfileRepository(db)
	reader := graph.NewSQLReader(follows, fans)
	engine := notification.NewEngine(notes, profiles, reader, nil)
	svc := NewRelationshipService(follows, fans, profiles, WithNotifier(engine))
	ctx := context.Background()

	require.Error(t, svc.Follow(ctx, bob.ID, alice.ID))
	following, err := reader.FollowingOf(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, following, "edge and fan row commit together")

	require.NoError(t, svc.Follow(ctx, bob.ID, alice.ID))

	followers, err := reader.FollowersOf(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, followers)
	n, err := notes.CountUnread(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "follow notification is sent once, by the call that created the edge")

	setFailures(1)
	require.Error(t, svc.Unfollow(ctx, bob.ID, alice.ID))
	followers, err = reader.FollowersOf(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, followers)

	require.NoError(t, svc.Unfollow(ctx, bob.ID, alice.ID))
	followers, err = reader.FollowersOf(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, followers)
	following, err = reader.FollowingOf(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, following)
	assert.Len(t, notificationsOf(t, db, model.NotificationUnfollow), 1)
}

func TestRelationshipService_GraphMirrorErrorsPropagate(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.SeedProfiles(t, db, "alice", "bob")
	alice, bob := p[0], p[1]
	mirror := &edgeMirror{failures: 1}
	svc := NewRelationshipService(repository.NewFollowRepository(db), repository.NewFanRepository(db),
		repository.NewProfileRepository(db), WithGraphMirror(mirror))
	ctx := context.Background()

	require.Error(t, svc.Follow(ctx, bob.ID, alice.ID))
	assert.False(t, mirror.edges[[2]int64{bob.ID, alice.ID}])

	require.NoError(t, svc.Follow(ctx, bob.ID, alice.ID))
	assert.True(t, mirror.edges[[2]int64{bob.ID, alice.ID}])

	mirror.failures = 1
	require.Error(t, svc.Unfollow(ctx, bob.ID, alice.ID))
	require.NoError(t, svc.Unfollow(ctx, bob.ID, alice.ID))
	assert.False(t, mirror.edges[[2]int64{bob.ID, alice.ID}])
}

func notificationsOf(t *testing.T, db *gorm.DB, typ model.NotificationType) []model.Notification {
	t.Helper()
	var rows []model.Notification
	require.NoError(t, db.Where("type = ?", typ).Find(&rows).Error)
	return rows
}
