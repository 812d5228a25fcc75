package scoring_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReportedPolicy_Score(t *testing.T) {
	ctx := context.Background()

	Convey("Given a policy with no options", t, func() {
		policy := scoring.NewReportedPolicy()

		Convey("When scoring a reported value", func() {
			score, err := policy.Score(ctx, scoring.Input{UserID: "u1", Category: "java", Reported: 87})

			Convey("Then the value is recorded verbatim", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 87)
			})
		})

		Convey("When the reported value is zero", func() {
			score, err := policy.Score(ctx, scoring.Input{Category: "php"})

			Convey("Then zero is a valid score", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 0)
			})
		})

		Convey("When the reported value is negative", func() {
			_, err := policy.Score(ctx, scoring.Input{Category: "php", Reported: -1})

			Convey("Then it is invalid input", func() {
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When the reported value exceeds the largest storable score", func() {
			_, err := policy.Score(ctx, scoring.Input{Category: "php", Reported: math.MaxInt64})

			Convey("Then it is invalid input rather than a wrapped negative", func() {
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := policy.Score(cctx, scoring.Input{Reported: 10})

			Convey("Then the cancellation is returned", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})

	Convey("Given a policy with weights and a ceiling", t, func() {
		policy := scoring.NewReportedPolicy(
			scoring.WithCategoryWeights(map[string]float64{"java": 1.5, "php": -2}, 0),
			scoring.WithCeiling(100),
		)

		Convey("Then the category weight applies and is capped", func() {
			score, err := policy.Score(ctx, scoring.Input{Category: "java", Reported: 60})
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 90)

			score, err = policy.Score(ctx, scoring.Input{Category: "java", Reported: 99})
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 100)
		})

		Convey("Then non-positive weights are ignored", func() {
			score, err := policy.Score(ctx, scoring.Input{Category: "php", Reported: 70})
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 70)
		})
	})
}

func TestReportedPolicy_ScoreStaysInRange(t *testing.T) {
	ctx := context.Background()

	Convey("Given a policy that doubles java scores", t, func() {
		policy := scoring.NewReportedPolicy(scoring.WithCategoryWeights(map[string]float64{"java": 2}, 1))

		Convey("When the largest storable score is weighted", func() {
			score, err := policy.Score(ctx, scoring.Input{Category: "java", Reported: model.MaxScore})

			Convey("Then the result is clamped to the maximum", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, model.MaxScore)
			})
		})
	})
}
