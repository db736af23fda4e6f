package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/testutil"
)

func BenchmarkFollowWrite_And_FanRedundancy(b *testing.B) {
	db := testutil.NewDB(b)
	followRepo := NewFollowRepository(db)
	fanRepo := NewFanRepository(db)
	ctx := context.Background()

	// 预创建部分用户
	profiles := make([]model.Profile, 1000)
	for i := range profiles {
		profiles[i] = model.Profile{Username: fmt.Sprintf("u%04d", i)}
	}
	if err := db.Create(&profiles).Error; err != nil {
		b.Fatalf("seed profiles: %v", err)
	}

	rnd := rand.New(rand.NewSource(1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		from := profiles[rnd.Intn(len(profiles))].ID
		to := profiles[rnd.Intn(len(profiles))].ID
		if from == to {
			continue
		}
		_, _ = followRepo.Create(ctx, from, to)
		_ = fanRepo.Create(ctx, to, from)
	}
}

func BenchmarkQueryFansAndFollowing(b *testing.B) {
	db := testutil.NewDB(b)
	followRepo := NewFollowRepository(db)
	fanRepo := NewFanRepository(db)
	ctx := context.Background()

	// 构造：u0 有 N 个粉丝，同时 u0 也关注这 N 个用户
	const N = 2000
	u0 := model.Profile{Username: "u0"}
	_ = db.Create(&u0).Error
	for i := 1; i <= N; i++ {
		p := model.Profile{Username: fmt.Sprintf("u%d", i)}
		_ = db.Create(&p).Error
		_, _ = followRepo.Create(ctx, p.ID, u0.ID)
		_ = fanRepo.Create(ctx, u0.ID, p.ID)
		_, _ = followRepo.Create(ctx, u0.ID, p.ID)
		_ = fanRepo.Create(ctx, p.ID, u0.ID)
	}

	b.ResetTimer()
	b.Run("ListFans", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = fanRepo.ListFans(ctx, u0.ID, 0, 50)
		}
	})

	b.Run("ListFollowing", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = followRepo.ListFollowings(ctx, u0.ID, 0, 50)
		}
	})

	b.Run("FanIDs", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = fanRepo.FanIDs(ctx, u0.ID)
		}
	})
}
