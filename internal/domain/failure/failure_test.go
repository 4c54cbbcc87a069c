package failure_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/crediscout/internal/domain/failure"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKindOf(t *testing.T) {
	Convey("Given classified errors wrapped by callers", t, func() {
		base := errors.New("token expired")
		wrapped := fmt.Errorf("load dashboard: %w", failure.Unauthenticated(base))

		Convey("Then the kind survives wrapping", func() {
			So(failure.KindOf(wrapped), ShouldEqual, failure.KindUnauthenticated)
			So(failure.IsUnauthenticated(wrapped), ShouldBeTrue)
			So(errors.Is(wrapped, base), ShouldBeTrue)
		})

		Convey("Then plain errors are unknown", func() {
			So(failure.KindOf(base), ShouldEqual, failure.KindUnknown)
			So(failure.MessageOf(base, "fallback"), ShouldEqual, "fallback")
		})

		Convey("Then messages are user facing", func() {
			err := failure.Validation("Please upload a valid CSV or PDF file.")
			So(failure.IsValidation(err), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "Please upload a valid CSV or PDF file.")
			So(failure.MessageOf(err, "x"), ShouldEqual, "Please upload a valid CSV or PDF file.")
		})
	})
}

func TestKindString(t *testing.T) {
	Convey("Kinds render as stable labels", t, func() {
		So(failure.KindFetch.String(), ShouldEqual, "fetch")
		So(failure.KindNoData.String(), ShouldEqual, "no_data")
		So(failure.Kind(99).String(), ShouldEqual, "unknown")
		So(failure.New(failure.KindSubmission, "", nil).Error(), ShouldEqual, "submission failure")
	})
}
