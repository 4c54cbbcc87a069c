package scoreapi_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/crediscout/internal/adapters/scoreapi"
	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const dashboardJSON = `{
	"id": "snap-0123456789",
	"uid": "user-1",
	"score": 72.5,
	"tier": "moderate",
	"filename": "march.csv",
	"created_at": "2025-03-01T10:00:00Z",
	"created_at_iso": "2025-03-01T10:00:05.250000+00:00",
	"insights": [
		{"feature": "income_regularity", "impact": 0.12, "positive": true},
		{"feature": "overdrafts", "impact": -0.3, "positive": false}
	],
	"analytics": [
		{"category": "Rent", "amount": 1200.5, "percentage": 45.25},
		{"category": "Food", "amount": "310.10", "percentage": 30}
	]
}`

func serve(status int, body string, check func(r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a scored snapshot", t, func() {
		var auth, path string
		srv := serve(http.StatusOK, dashboardJSON, func(r *http.Request) {
			auth = r.Header.Get("Authorization")
			path = r.URL.Path
		})
		defer srv.Close()

		res, err := scoreapi.NewClient(srv.URL+"/").Snapshot(ctx, "tok")

		Convey("Then the request carries the bearer token", func() {
			So(err, ShouldBeNil)
			So(auth, ShouldEqual, "Bearer tok")
			So(path, ShouldEqual, "/api/dashboard")
		})

		Convey("Then the view model is decoded and normalized", func() {
			So(res.Empty, ShouldBeFalse)
			vm := res.ViewModel
			So(vm.ID, ShouldEqual, "snap-0123456789")
			So(vm.ShortID(), ShouldEqual, "snap-012")
			So(vm.Score, ShouldEqual, 72.5)
			So(vm.Tier, ShouldEqual, model.TierModerate)
			So(vm.SourceLabel(), ShouldEqual, "march.csv")
			So(vm.CreatedAt.Equal(time.Date(2025, 3, 1, 10, 0, 5, 250_000_000, time.UTC)), ShouldBeTrue)
		})

		Convey("Then sequences keep their order", func() {
			vm := res.ViewModel
			So(len(vm.Insights), ShouldEqual, 2)
			So(vm.Insights[1].Feature, ShouldEqual, "overdrafts")
			So(vm.Insights[1].Positive, ShouldBeFalse)
			So(vm.Analytics[0].Amount.StringFixed(2), ShouldEqual, "1200.50")
			So(vm.Analytics[1].Amount.StringFixed(2), ShouldEqual, "310.10")
			So(vm.Analytics[0].Percentage, ShouldEqual, 45.25)
		})
	})

	Convey("Given the explicit empty answer", t, func() {
		srv := serve(http.StatusOK, `{"message":"No scores found","data":null}`, nil)
		defer srv.Close()

		res, err := scoreapi.NewClient(srv.URL).Snapshot(ctx, "tok")

		Convey("Then it is reported as empty, not as an error", func() {
			So(err, ShouldBeNil)
			So(res.Empty, ShouldBeTrue)
			So(res.ViewModel, ShouldBeNil)
		})
	})

	Convey("Given a firestore-style timestamp", t, func() {
		srv := serve(http.StatusOK, `{"id":"a","score":10,"tier":"RISKY","created_at":{"seconds":1700000000}}`, nil)
		defer srv.Close()

		res, err := scoreapi.NewClient(srv.URL).Snapshot(ctx, "tok")
		So(err, ShouldBeNil)
		So(res.ViewModel.CreatedAt.Unix(), ShouldEqual, int64(1700000000))
		So(res.ViewModel.SourceLabel(), ShouldEqual, "System Sample")
	})

	Convey("Given malformed payloads", t, func() {
		cases := []string{
			`{"score": 50, "tier": "STABLE"}`,
			`{"id": "x", "tier": "STABLE"}`,
			`{"id": "x", "score": 50}`,
			`{"id": "x", "score": 50, "tier": "STABLE", "insights": [{"feature": "f"}]}`,
			`{"id": "x", "score": 50, "tier": "STABLE", "analytics": [{"category": "c", "amount": 1}]}`,
			`not json`,
		}
		for _, body := range cases {
			srv := serve(http.StatusOK, body, nil)
			_, err := scoreapi.NewClient(srv.URL).Snapshot(ctx, "tok")
			srv.Close()
			So(errors.Is(err, scoreapi.ErrInvalidPayload), ShouldBeTrue)
		}
	})

	Convey("Given an expired token", t, func() {
		for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
			srv := serve(status, `{"detail":"Invalid token"}`, nil)
			_, err := scoreapi.NewClient(srv.URL).Snapshot(ctx, "tok")
			srv.Close()

			So(failure.IsUnauthenticated(err), ShouldBeTrue)
			So(scoreapi.Detail(err), ShouldEqual, "Invalid token")
		}
	})

	Convey("Given a server error", t, func() {
		srv := serve(http.StatusInternalServerError, `{"detail":"boom"}`, nil)
		defer srv.Close()

		_, err := scoreapi.NewClient(srv.URL).Snapshot(ctx, "tok")

		Convey("Then the status and detail are surfaced", func() {
			var se *scoreapi.StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.StatusCode, ShouldEqual, http.StatusInternalServerError)
			So(se.Detail, ShouldEqual, "boom")
			So(failure.IsUnauthenticated(err), ShouldBeFalse)
		})
	})

	Convey("Given no token", t, func() {
		called := false
		srv := serve(http.StatusOK, dashboardJSON, func(*http.Request) { called = true })
		defer srv.Close()

		_, err := scoreapi.NewClient(srv.URL).Snapshot(ctx, "")
		So(failure.IsUnauthenticated(err), ShouldBeTrue)
		So(called, ShouldBeFalse)
	})
}

func TestHistory(t *testing.T) {
	Convey("Given a score history", t, func() {
		srv := serve(http.StatusOK, `[
			{"id":"a","score":40,"created_at":"2025-01-01T00:00:00Z"},
			{"id":"b","score":55.5,"created_at":"2025-02-01T00:00:00"}
		]`, nil)
		defer srv.Close()

		res, err := scoreapi.NewClient(srv.URL).History(context.Background(), "tok")

		So(err, ShouldBeNil)
		So(res, ShouldNotBeEmpty)
		So(res.Scores(), ShouldResemble, []float64{40, 55.5})
		So(res[1].Timestamp.Month(), ShouldEqual, time.February)
	})

	Convey("Given an empty history", t, func() {
		srv := serve(http.StatusOK, `[]`, nil)
		defer srv.Close()

		res, err := scoreapi.NewClient(srv.URL).History(context.Background(), "tok")
		So(err, ShouldBeNil)
		So(res, ShouldBeEmpty)
	})
}

func TestCertificate(t *testing.T) {
	Convey("Given a certificate", t, func() {
		var path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 body"))
		}))
		defer srv.Close()
		client := scoreapi.NewClient(srv.URL)

		Convey("Then the bytes are returned as-is", func() {
			data, err := client.Certificate(context.Background(), "tok", "snap-1")
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "%PDF-1.4 body")
			So(path, ShouldEqual, "/api/certificate/snap-1")
		})

		Convey("Then an empty id is rejected locally", func() {
			_, err := client.Certificate(context.Background(), "tok", " ")
			So(errors.Is(err, scoreapi.ErrMissingSnapshotID), ShouldBeTrue)
		})

		Convey("Then an oversized body is refused", func() {
			small := scoreapi.NewClient(srv.URL, scoreapi.WithBodyLimits(0, 4))
			_, err := small.Certificate(context.Background(), "tok", "snap-1")
			So(errors.Is(err, scoreapi.ErrResponseTooLarge), ShouldBeTrue)
		})
	})
}

func TestUpload(t *testing.T) {
	Convey("Given an upload endpoint", t, func() {
		var field, name, content string
		var declared, received int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			declared, received = r.ContentLength, int64(len(raw))
			r.Body = io.NopCloser(bytes.NewReader(raw))
			f, hdr, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			field, name, content = "file", hdr.Filename, string(data)
			_, _ = io.WriteString(w, `{"id":"new-snap","score":81,"tier":"STABLE"}`)
		}))
		defer srv.Close()

		var seen []int
		payload := strings.Repeat("date,amount\n2025-01-01,12.50\n", 2000)
		receipt, err := scoreapi.NewClient(srv.URL).Upload(context.Background(), "tok", "statement.csv",
			int64(len(payload)), strings.NewReader(payload), func(p int) { seen = append(seen, p) })

		Convey("Then the file arrives as the multipart field", func() {
			So(err, ShouldBeNil)
			So(field, ShouldEqual, "file")
			So(name, ShouldEqual, "statement.csv")
			So(content, ShouldEqual, payload)
			So(receipt.ID, ShouldEqual, "new-snap")
			So(receipt.Tier, ShouldEqual, model.TierStable)
		})

		Convey("Then progress is monotonic and ends at 100", func() {
			So(len(seen), ShouldBeGreaterThan, 0)
			for i := 1; i < len(seen); i++ {
				So(seen[i], ShouldBeGreaterThanOrEqualTo, seen[i-1])
			}
			So(seen[len(seen)-1], ShouldEqual, 100)
		})

		Convey("Then the body is streamed with its exact length", func() {
			So(declared, ShouldEqual, received)
			So(received, ShouldBeGreaterThan, int64(len(payload)))
		})

		Convey("When the file size is unknown", func() {
			seen = nil
			_, err := scoreapi.NewClient(srv.URL).Upload(context.Background(), "tok", "statement.csv",
				-1, strings.NewReader(payload), func(p int) { seen = append(seen, p) })

			Convey("Then the body is sent without a declared length", func() {
				So(err, ShouldBeNil)
				So(declared, ShouldEqual, -1)
				So(content, ShouldEqual, payload)
				So(seen, ShouldResemble, []int{100})
			})
		})
	})

	Convey("Given the service rejects the file", t, func() {
		srv := serve(http.StatusBadRequest, `{"detail":"Only CSV and PDF statements are supported."}`, nil)
		defer srv.Close()

		_, err := scoreapi.NewClient(srv.URL).Upload(context.Background(), "tok", "x.csv", 1, strings.NewReader("a"), nil)

		Convey("Then the upstream detail is preserved verbatim", func() {
			So(scoreapi.Detail(err), ShouldEqual, "Only CSV and PDF statements are supported.")
		})
	})
}
