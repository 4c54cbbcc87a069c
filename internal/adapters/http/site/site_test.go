package site_test

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/okian/crediscout/internal/adapters/http/site"
	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func readyState() fetcher.State {
	return fetcher.State{
		Status: fetcher.Ready,
		ViewModel: &model.ViewModel{
			ID:    "abcdef0123456789",
			Score: 64,
			Tier:  model.TierModerate,
			Analytics: []model.CategoryShare{
				{Category: "Groceries", Amount: decimal.RequireFromString("2500"), Percentage: 25},
			},
			Insights: []model.Insight{{Feature: "late_payments", Impact: -0.08}},
		},
		History: model.ScoreHistory{{Score: 50}, {Score: 75}},
	}
}

func TestRenderer(t *testing.T) {
	Convey("Given a renderer", t, func() {
		r, err := site.New()
		So(err, ShouldBeNil)

		Convey("When rendering a ready dashboard", func() {
			profile := &model.Profile{UID: "uid-0123456789", Email: "ada@example.com"}
			page := r.Compose(site.Input{State: readyState(), Profile: profile})
			var buf bytes.Buffer
			So(r.Render(&buf, page), ShouldBeNil)
			html := buf.String()

			Convey("Then the gauge, trend and bars are drawn", func() {
				So(html, ShouldContainSubstring, `r="80"`)
				So(html, ShouldContainSubstring, `viewBox="0 0 100 40"`)
				So(html, ShouldContainSubstring, `points="0,20 100,10"`)
				So(html, ShouldContainSubstring, `width="25.0"`)
				So(html, ShouldContainSubstring, "NODE_ID: abcdef01")
			})

			Convey("Then insights, advice and profile are shown", func() {
				So(html, ShouldContainSubstring, "late_payments")
				So(html, ShouldContainSubstring, "-0.080")
				So(html, ShouldContainSubstring, "Next Milestone")
				So(html, ShouldContainSubstring, "₹2,500.00")
				So(html, ShouldContainSubstring, "Institutional ID: uid-0123")
				So(html, ShouldContainSubstring, "Download Report")
			})
		})

		Convey("When the service reports no data", func() {
			page := r.Compose(site.Input{State: fetcher.State{Status: fetcher.Empty}})
			var buf bytes.Buffer
			So(r.Render(&buf, page), ShouldBeNil)

			Convey("Then the empty state invites an upload", func() {
				So(page.Dashboard, ShouldBeNil)
				So(buf.String(), ShouldContainSubstring, "No Data Found")
				So(buf.String(), ShouldNotContainSubstring, "Download Report")
			})
		})

		Convey("When a refresh failed after a good load", func() {
			st := readyState()
			st.Status = fetcher.Failed
			st.Message = fetcher.FetchFailedMessage
			page := r.Compose(site.Input{State: st})

			Convey("Then the old dashboard stays and the failure is an alert", func() {
				So(page.Dashboard, ShouldNotBeNil)
				So(page.Alert, ShouldEqual, fetcher.FetchFailedMessage)
			})
		})

		Convey("When user content contains markup", func() {
			st := readyState()
			st.ViewModel.Filename = "<script>x</script>.csv"
			var buf bytes.Buffer
			So(r.Render(&buf, r.Compose(site.Input{State: st})), ShouldBeNil)
			So(buf.String(), ShouldNotContainSubstring, "<script>x")
		})
	})

	Convey("Options are applied", t, func() {
		r, err := site.New(site.WithGaugeRadius(50), site.WithTrendWindow(1))
		So(err, ShouldBeNil)
		page := r.Compose(site.Input{State: readyState()})
		So(page.Dashboard.Gauge.Radius, ShouldEqual, 50.0)
		So(page.Dashboard.HasTrend, ShouldBeTrue)
	})
}
