package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
)

// mapGraph 以 follower -> followees 表示的内存关注图
type mapGraph map[int64][]int64

func (g mapGraph) FollowersOf(_ context.Context, userID int64) ([]int64, error) {
	var out []int64
	for follower, followees := range g {
		for _, f := range followees {
			if f == userID {
				out = append(out, follower)
			}
		}
	}
	return out, nil
}

func (g mapGraph) FollowingOf(_ context.Context, userID int64) ([]int64, error) {
	return g[userID], nil
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// seedPost 以 baseTime+minute 为创建时间写入帖子
func seedPost(t *testing.T, db *gorm.DB, creator int64, minute int) *model.Post {
	t.Helper()
	p := &model.Post{CreatorID: creator, Caption: "p", CreatedAt: baseTime.Add(time.Duration(minute) * time.Minute)}
	require.NoError(t, repository.NewPostRepository(db).Create(context.Background(), p))
	return p
}

func postIDs(posts []*model.Post) []int64 {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
