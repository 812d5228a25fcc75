package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/codequest/internal/adapters/cache"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

const redisAddrEnv = "CODEQUEST_TEST_REDIS_ADDR"

func TestNop(t *testing.T) {
	convey.Convey("Given the no-op cache", t, func() {
		ctx := context.Background()
		var c cache.Leaderboard = cache.Nop{}

		convey.Convey("Then every lookup misses even after a set", func() {
			convey.So(c.Set(ctx, "java", []model.ScoreEntry{{Score: 1}}), convey.ShouldBeNil)
			got, ok, err := c.Get(ctx, "java")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(got, convey.ShouldBeNil)
			convey.So(c.Invalidate(ctx, "java"), convey.ShouldBeNil)
		})
	})
}

func TestRedis(t *testing.T) {
	addr := os.Getenv(redisAddrEnv)
	if addr == "" {
		t.Skipf("%s not set", redisAddrEnv)
	}

	convey.Convey("Given a redis cache", t, func() {
		ctx := context.Background()
		c, err := cache.NewRedis(ctx, addr, "", 0,
			cache.WithKeyPrefix("codequest-test:"+uuid.NewString()+":"),
			cache.WithTTL(time.Minute))
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = c.Close() }()

		convey.Convey("When nothing was stored", func() {
			_, ok, err := c.Get(ctx, "java")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When a snapshot is stored", func() {
			entries := []model.ScoreEntry{{ID: "a", Username: "alice", Category: "java", Score: 92, Seq: 1}}
			convey.So(c.Set(ctx, "java", entries), convey.ShouldBeNil)

			got, ok, err := c.Get(ctx, "java")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got[0].Username, convey.ShouldEqual, "alice")

			convey.Convey("And invalidated", func() {
				convey.So(c.Invalidate(ctx, "java"), convey.ShouldBeNil)
				_, ok, err := c.Get(ctx, "java")
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeFalse)
			})
		})
	})

	t.Run("unreachable", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := cache.NewRedis(ctx, "127.0.0.1:1", "", 0); err == nil {
			t.Error("expected an error for an unreachable server")
		}
	})
}
