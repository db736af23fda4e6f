// timelinebench 压测：粉丝关注（异步冗余表）、发帖扇出落地延迟、推/拉两种时间线读取延迟
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/bootstrap"
	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func report(name string, vs []time.Duration) {
	fmt.Printf("%-28s samples=%d avg=%v p95=%v p99=%v\n", name, len(vs), avg(vs), pct(vs, 0.95), pct(vs, 0.99))
}

// collect 从指标通道收集 want 个样本，超时则返回已收集的部分
func collect(ch <-chan time.Duration, want int, timeout time.Duration) []time.Duration {
	out := make([]time.Duration, 0, want)
	deadline := time.After(timeout)
	for len(out) < want {
		select {
		case d := <-ch:
			out = append(out, d)
		case <-deadline:
			fmt.Printf("timeout waiting for samples: got=%d want=%d\n", len(out), want)
			return out
		}
	}
	return out
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	cfg.Graph.AsyncFans = true

	n := envInt("N", 20000)        // 作者粉丝数
	posts := envInt("POSTS", 100)  // 发帖数
	reads := envInt("READS", 200)  // 每种策略的读取次数
	workers := envInt("WORKERS", cfg.Queue.Workers)
	cfg.Queue.Workers = workers

	app := must(bootstrap.Open(ctx, cfg))
	defer app.Close(ctx)
	must(0, database.Migrate(app.DB))

	// 本地压测可重复执行
	_ = app.DB.Exec("TRUNCATE TABLE notifications, comment_likes, post_likes, comments, posts, fans, follows, profiles RESTART IDENTITY CASCADE").Error
	_ = app.Redis.FlushDB(ctx).Err()

	author := &model.Profile{Username: "author0", DisplayName: "author0"}
	must(0, app.DB.Create(author).Error)
	fans := make([]model.Profile, n)
	for i := range fans {
		id := uuid.NewString()
		fans[i] = model.Profile{Username: "u" + id[:8], DisplayName: id[:8]}
	}
	must(0, app.DB.CreateInBatches(&fans, 1000).Error)

	stopReplicator := app.Replicator.Start(cfg.Graph.FanWorkers)
	follows := make([]time.Duration, 0, n)
	for i := range fans {
		st := time.Now()
		must(0, app.Relations.Follow(ctx, fans[i].ID, author.ID))
		follows = append(follows, time.Since(st))
	}
	lag := collect(app.Replicator.Metrics(), n, 2*time.Minute)
	must(0, stopReplicator(ctx))

	must(0, app.Queue.EnsureGroup(ctx))
	stopWorker := app.Worker.Start()
	publishes := make([]time.Duration, 0, posts)
	for i := 0; i < posts; i++ {
		st := time.Now()
		must(app.PostSvc.Publish(ctx, author.ID, fmt.Sprintf("hello %d", i), ""))
		publishes = append(publishes, time.Since(st))
	}
	landing := collect(app.Worker.Metrics(), posts, 2*time.Minute)
	must(0, stopWorker(ctx))

	loader := feed.NewPostLoader(app.Posts, app.Redis, cfg.Feed.PostCacheTTL)
	push := feed.NewCachedStrategy(app.Cache, loader)
	pull := feed.NewPullEngine(app.Graph, app.Posts)
	readWith := func(s feed.Strategy) []time.Duration {
		out := make([]time.Duration, 0, reads)
		for i := 0; i < reads; i++ {
			st := time.Now()
			must(s.GetFeed(ctx, fans[i%len(fans)].ID, cfg.Feed.DefaultLimit, 0))
			out = append(out, time.Since(st))
		}
		return out
	}

	fmt.Printf("N=%d POSTS=%d WORKERS=%d READS=%d\n", n, posts, workers, reads)
	report("follow latency", follows)
	report("fan replication lag", lag)
	report("publish latency", publishes)
	report("fan-out landing", landing)
	report("feed read (push)", readWith(push))
	report("feed read (pull)", readWith(pull))
}
