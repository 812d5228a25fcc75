// Package repotest holds the behavioural suite every repository.Store backend must pass.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/codequest/internal/adapters/repository"
	"github.com/okian/codequest/internal/domain/gate"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) repository.Store

// Run exercises progress and ledger semantics against the store returned by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	convey.Convey("Given an empty store", t, func() {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		user := "user-" + uuid.NewString()

		convey.Convey("When progress is read for a user who never played", func() {
			rec, err := store.Get(ctx, user, "java")

			convey.Convey("Then the default record is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.UnlockedLevel, convey.ShouldEqual, 1)
				convey.So(rec.Completed(), convey.ShouldBeEmpty)
				convey.So(rec.Version, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a record is saved and read back", func() {
			rec := model.ProgressFromLevels(4, []int{1, 2, 3})
			convey.So(store.Save(ctx, user, "java", rec), convey.ShouldBeNil)
			got, err := store.Get(ctx, user, "java")

			convey.Convey("Then the stored levels round trip and the version moves", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.UnlockedLevel, convey.ShouldEqual, 4)
				convey.So(got.Completed(), convey.ShouldResemble, []int{1, 2, 3})
				convey.So(got.Version, convey.ShouldEqual, 1)
			})

			convey.Convey("Then other categories are not affected", func() {
				other, err := store.Get(ctx, user, "php")
				convey.So(err, convey.ShouldBeNil)
				convey.So(other.UnlockedLevel, convey.ShouldEqual, 1)
			})

			convey.Convey("And a second save overwrites it", func() {
				convey.So(store.Save(ctx, user, "java", model.ProgressFromLevels(2, []int{1})), convey.ShouldBeNil)
				got, err := store.Get(ctx, user, "java")
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.UnlockedLevel, convey.ShouldEqual, 2)
				convey.So(got.Version, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When compare-and-swap is used", func() {
			ok, err := store.CompareAndSwap(ctx, user, "php", 0, model.ProgressFromLevels(2, []int{1}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)

			convey.Convey("Then a stale version is refused", func() {
				ok, err := store.CompareAndSwap(ctx, user, "php", 0, model.ProgressFromLevels(9, nil))
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeFalse)

				got, _ := store.Get(ctx, user, "php")
				convey.So(got.UnlockedLevel, convey.ShouldEqual, 2)
			})

			convey.Convey("Then the current version is accepted", func() {
				ok, err := store.CompareAndSwap(ctx, user, "php", 1, model.ProgressFromLevels(3, []int{1, 2}))
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeTrue)

				got, _ := store.Get(ctx, user, "php")
				convey.So(got.Version, convey.ShouldEqual, 2)
				convey.So(got.Completed(), convey.ShouldResemble, []int{1, 2})
			})
		})

		convey.Convey("When concurrent completions race through compare-and-swap", func() {
			const levels = 8
			var wg sync.WaitGroup
			for l := 1; l <= levels; l++ {
				wg.Add(1)
				go func(level int) {
					defer wg.Done()
					completeWithRetry(ctx, store, user, "race", level)
				}(l)
			}
			wg.Wait()

			convey.Convey("Then no completion is lost", func() {
				got, err := store.Get(ctx, user, "race")
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(got.Completed()), convey.ShouldEqual, levels)
				convey.So(got.UnlockedLevel, convey.ShouldEqual, levels+1)
			})
		})

		convey.Convey("When scores are appended to a category", func() {
			category := "java-" + uuid.NewString()[:8]
			t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

			first := appendScore(ctx, store, category, "alice", 85, t0)
			second := appendScore(ctx, store, category, "bob", 92, t0.Add(time.Minute))

			convey.Convey("Then each append grows the ledger by exactly one", func() {
				n, err := store.Count(ctx, category)
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 2)
				convey.So(second.Seq, convey.ShouldBeGreaterThan, first.Seq)
			})

			convey.Convey("Then top-N is ordered by score descending", func() {
				top, err := store.TopN(ctx, category, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(top), convey.ShouldEqual, 2)
				convey.So(top[0].Score, convey.ShouldEqual, 92)
				convey.So(top[1].Score, convey.ShouldEqual, 85)
				convey.So(top[1].ID, convey.ShouldEqual, first.ID)
				convey.So(top[1].Username, convey.ShouldEqual, "alice")
				convey.So(top[1].SubmittedAt.Equal(t0), convey.ShouldBeTrue)
			})

			convey.Convey("And equal scores rank the earlier submission first", func() {
				late := appendScore(ctx, store, category, "carol", 92, t0.Add(2*time.Minute))
				early := appendScore(ctx, store, category, "dave", 92, t0.Add(-time.Minute))

				top, err := store.TopN(ctx, category, 3)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ids(top), convey.ShouldResemble, []string{early.ID, second.ID, late.ID})
			})

			convey.Convey("And entries with the same score and time rank by sequence", func() {
				a := appendScore(ctx, store, category, "erin", 99, t0)
				b := appendScore(ctx, store, category, "frank", 99, t0)

				top, err := store.TopN(ctx, category, 2)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ids(top), convey.ShouldResemble, []string{a.ID, b.ID})
			})

			convey.Convey("And repeat submissions by one user are all kept", func() {
				appendScore(ctx, store, category, "alice", 85, t0.Add(time.Hour))
				n, _ := store.Count(ctx, category)
				convey.So(n, convey.ShouldEqual, 3)
			})

			convey.Convey("And prior entries are never mutated", func() {
				for i := 0; i < 5; i++ {
					appendScore(ctx, store, category, fmt.Sprintf("u%d", i), 10*i, t0.Add(time.Duration(i)*time.Second))
				}
				top, err := store.TopN(ctx, category, 100)
				convey.So(err, convey.ShouldBeNil)
				for _, e := range top {
					if e.ID == first.ID {
						convey.So(e.Score, convey.ShouldEqual, 85)
						convey.So(e.UserID, convey.ShouldEqual, "alice")
					}
				}
			})

			convey.Convey("And the limit bounds the result", func() {
				top, err := store.TopN(ctx, category, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(top), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When top-N is asked for an empty category", func() {
			top, err := store.TopN(ctx, "empty-"+uuid.NewString()[:8], 10)

			convey.Convey("Then an empty list is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(top, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When top-N is asked with a non-positive limit", func() {
			_, err := store.TopN(ctx, "java", 0)

			convey.Convey("Then the limit is rejected", func() {
				convey.So(errors.Is(err, repository.ErrInvalidLimit), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the store is pinged", func() {
			convey.So(store.Ping(ctx), convey.ShouldBeNil)
			convey.So(store.Name(), convey.ShouldNotBeEmpty)
		})
	})
}

func completeWithRetry(ctx context.Context, store repository.ProgressStore, user, category string, level int) {
	for {
		rec, err := store.Get(ctx, user, category)
		if err != nil {
			return
		}
		// Levels arrive out of order here, so unlock up to level before completing.
		if rec.UnlockedLevel < level {
			rec.UnlockedLevel = level
		}
		next, err := gate.Complete(rec, level)
		if err != nil {
			return
		}
		ok, err := store.CompareAndSwap(ctx, user, category, rec.Version, next)
		if err != nil || ok {
			return
		}
	}
}

func appendScore(ctx context.Context, store repository.Ledger, category, user string, score int, at time.Time) model.ScoreEntry {
	e, err := store.Append(ctx, model.ScoreEntry{
		ID:          uuid.NewString(),
		UserID:      user,
		Username:    user,
		Category:    category,
		Score:       score,
		SubmittedAt: at,
	})
	convey.So(err, convey.ShouldBeNil)
	return e
}

func ids(entries []model.ScoreEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
