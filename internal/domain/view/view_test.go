package view_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/internal/domain/view"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuild(t *testing.T) {
	Convey("Given a scored view model", t, func() {
		vm := &model.ViewModel{
			ID:    "abcdef0123456789",
			Score: 82,
			Tier:  model.TierStable,
			Analytics: []model.CategoryShare{
				{Category: "Savings", Amount: decimal.RequireFromString("1234567.5"), Percentage: 42.26},
				{Category: "Rent", Amount: decimal.RequireFromString("900"), Percentage: 130},
			},
			Insights: []model.Insight{{Feature: "income_regularity", Impact: 0.12, Positive: true}},
		}

		Convey("When built with enough history", func() {
			h := model.ScoreHistory{{Score: 60}, {Score: 70}, {Score: 82}}
			d := view.Build(vm, h, 80, 8)

			Convey("Then every surface is populated", func() {
				So(d.ShortID, ShouldEqual, "abcdef01")
				So(d.Source, ShouldEqual, "System Sample")
				So(d.ProcessedAt, ShouldEqual, "-")
				So(d.TopTier, ShouldBeTrue)
				So(d.Gauge.DisplayScore(), ShouldEqual, 82)
				So(d.HasTrend, ShouldBeTrue)
				So(len(d.Trend.Points), ShouldEqual, 3)
				So(d.Cards, ShouldHaveLength, 1)
				So(d.Milestone.Title, ShouldEqual, "Performance Peak")
			})

			Convey("Then categories keep order and are formatted", func() {
				So(d.Categories[0].Amount, ShouldEqual, "₹1,234,567.50")
				So(d.Categories[0].Percent, ShouldEqual, "42.3%")
				So(d.Categories[1].Amount, ShouldEqual, "₹900.00")
				So(d.Categories[1].Width, ShouldEqual, 1.0)
			})
		})

		Convey("When there is a single snapshot", func() {
			d := view.Build(vm, model.ScoreHistory{{Score: 82}}, 80, 8)
			So(d.HasTrend, ShouldBeFalse)
			So(d.TrendNote, ShouldNotBeEmpty)
		})
	})

	Convey("A nil view model has no dashboard", t, func() {
		So(view.Build(nil, nil, 80, 8), ShouldBeNil)
	})
}

func TestHeadline(t *testing.T) {
	Convey("Headlines distinguish empty from failed", t, func() {
		title, text := view.Headline(fetcher.State{Status: fetcher.Empty})
		So(title, ShouldEqual, view.EmptyTitle)
		So(text, ShouldEqual, view.EmptyText)

		title, text = view.Headline(fetcher.State{Status: fetcher.Failed, Message: fetcher.FetchFailedMessage})
		So(title, ShouldEqual, view.FailedTitle)
		So(text, ShouldEqual, fetcher.FetchFailedMessage)

		title, _ = view.Headline(fetcher.State{Status: fetcher.Ready})
		So(title, ShouldBeEmpty)
	})
}

func TestFormatting(t *testing.T) {
	Convey("Formatters", t, func() {
		So(view.Amount(decimal.RequireFromString("-1234.567")), ShouldEqual, "-₹1,234.57")
		So(view.Amount(decimal.Zero), ShouldEqual, "₹0.00")
		So(view.Amount(decimal.RequireFromString("123456")), ShouldEqual, "₹123,456.00")
		So(view.Size(2048), ShouldEqual, "2.00 KB")
		So(view.Date(time.Time{}), ShouldEqual, "-")

		acct := view.AccountOf(model.Profile{UID: "0123456789", Email: "a@b.c"})
		So(acct.InstitutionalID, ShouldEqual, "01234567")
		So(acct.MemberSince, ShouldEqual, "-")
	})
}
