package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/crediscout/internal/adapters/http/api"
	"github.com/okian/crediscout/internal/adapters/http/site"
	"github.com/okian/crediscout/internal/domain/action"
	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDeps implements api.Dependencies.
type mockDeps struct {
	state     fetcher.State
	task      model.UploadTask
	refreshes int
	report    string
	reportErr error
	submitted []string
	bodies    []string
	submitErr error
	notices   *api.Notices
}

func (m *mockDeps) State() fetcher.State { return m.state }

func (m *mockDeps) Profile() (model.Profile, bool) {
	return model.Profile{UID: "uid-0123456789", Email: "ada@example.com"}, true
}

func (m *mockDeps) Task() model.UploadTask { return m.task }

func (m *mockDeps) Refresh(context.Context) fetcher.State {
	m.refreshes++
	return m.state
}

func (m *mockDeps) DownloadReport(ctx context.Context) (string, error) {
	if m.reportErr != nil {
		m.notices.Alert(ctx, action.ReportFailedMessage)
		return "", m.reportErr
	}
	return m.report, nil
}

func (m *mockDeps) Submit(_ context.Context, f action.File) (model.UploadTask, error) {
	if err := action.Admit(f.Name); err != nil {
		m.task = model.UploadTask{FileName: f.Name, Phase: model.PhaseIdle, Message: action.RejectMessage}
		return m.task, err
	}
	rc, err := f.Open()
	if err != nil {
		return model.UploadTask{}, err
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	m.submitted = append(m.submitted, f.Name)
	m.bodies = append(m.bodies, string(data))
	if m.submitErr != nil {
		m.task = model.UploadTask{FileName: f.Name, Phase: model.PhaseFailed, Message: action.UploadFailedMessage}
		return m.task, m.submitErr
	}
	m.task = model.UploadTask{FileName: f.Name, Phase: model.PhaseDone, Progress: 100}
	return m.task, nil
}

func newServer(deps *mockDeps) http.Handler {
	renderer, err := site.New()
	So(err, ShouldBeNil)
	notices := api.NewNotices()
	deps.notices = notices
	srv := api.NewServer(deps, renderer, api.WithNotices(notices))
	mux := http.NewServeMux()
	srv.Register(context.Background(), mux)
	return mux
}

func multipartBody(name, content string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", name)
	_, _ = part.Write([]byte(content))
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func readyState() fetcher.State {
	return fetcher.State{
		Status:     fetcher.Ready,
		Generation: 3,
		ViewModel:  &model.ViewModel{ID: "snap-42", Score: 71, Tier: model.TierModerate},
		History:    model.ScoreHistory{{Score: 60}, {Score: 71}},
	}
}

func TestSiteRoutes(t *testing.T) {
	Convey("Given the site server", t, func() {
		deps := &mockDeps{state: readyState()}
		h := newServer(deps)

		Convey("When the dashboard is requested", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			Convey("Then it renders as HTML", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, "NODE_ID: snap-42")
				So(w.Body.String(), ShouldContainSubstring, "ada@example.com")
			})
		})

		Convey("When an unknown path is requested", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the state is requested", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state", nil))

			Convey("Then the committed snapshot is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["status"], ShouldEqual, "ready")
				So(body["generation"], ShouldEqual, 3.0)
				snap := body["snapshot"].(map[string]any)
				So(snap["id"], ShouldEqual, "snap-42")
				So(body["history"], ShouldResemble, []any{60.0, 71.0})
			})
		})

		Convey("When a refresh is posted", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/refresh", nil))

			Convey("Then the fetcher reruns and the browser returns to the dashboard", func() {
				So(deps.refreshes, ShouldEqual, 1)
				So(w.Code, ShouldEqual, http.StatusSeeOther)
				So(w.Header().Get("Location"), ShouldEqual, "/")
			})
		})

		Convey("When a refresh is requested with GET", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/refresh", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(deps.refreshes, ShouldEqual, 0)
		})

		Convey("When the certificate is downloaded", func() {
			dir := t.TempDir()
			deps.report = filepath.Join(dir, action.ReportFileName("snap-42"))
			So(os.WriteFile(deps.report, []byte("%PDF-1.4"), 0o644), ShouldBeNil)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/report", nil))

			Convey("Then it is served as an attachment", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "crediscout_certificate_snap-42.pdf")
				So(w.Body.String(), ShouldEqual, "%PDF-1.4")
			})
		})

		Convey("When the certificate download fails", func() {
			deps.reportErr = failure.Submission(action.ReportFailedMessage, io.ErrUnexpectedEOF)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/report", nil))

			Convey("Then the next page shows the alert once", func() {
				So(w.Code, ShouldEqual, http.StatusSeeOther)

				first := httptest.NewRecorder()
				h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
				So(first.Body.String(), ShouldContainSubstring, action.ReportFailedMessage)

				second := httptest.NewRecorder()
				h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
				So(second.Body.String(), ShouldNotContainSubstring, action.ReportFailedMessage)
			})

			Convey("Then JSON clients get a bad gateway", func() {
				req := httptest.NewRequest(http.MethodGet, "/report", nil)
				req.Header.Set("Accept", "application/json")
				jw := httptest.NewRecorder()
				h.ServeHTTP(jw, req)
				So(jw.Code, ShouldEqual, http.StatusBadGateway)
				So(jw.Body.String(), ShouldContainSubstring, action.ReportFailedMessage)
			})
		})

		Convey("When a CSV statement is uploaded", func() {
			body, ct := multipartBody("statement.csv", "date,amount\n")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Accept", "application/json")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then the file is submitted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.submitted, ShouldResemble, []string{"statement.csv"})
				So(deps.bodies, ShouldResemble, []string{"date,amount\n"})
				So(w.Body.String(), ShouldContainSubstring, `"phase":"done"`)
			})
		})

		Convey("When a text file is uploaded", func() {
			body, ct := multipartBody("statement.txt", "hello")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Accept", "application/json")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then it is rejected without a submission", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.submitted, ShouldBeEmpty)
				So(w.Body.String(), ShouldContainSubstring, action.RejectMessage)
			})
		})

		Convey("When a text file is uploaded from the browser form", func() {
			body, ct := multipartBody("statement.txt", "hello")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then the page is answered in place with the rejection", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, action.RejectMessage)
				So(deps.submitted, ShouldBeEmpty)
			})

			Convey("Then no alert is left for the next page", func() {
				So(deps.notices.PopAlert(), ShouldBeEmpty)
			})
		})

		Convey("When the upload form has no file", func() {
			req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, action.NoFileMessage)
			So(deps.submitted, ShouldBeEmpty)
			So(deps.notices.PopAlert(), ShouldBeEmpty)
		})

		Convey("When health and metrics are scraped", func() {
			hw := httptest.NewRecorder()
			h.ServeHTTP(hw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(hw.Code, ShouldEqual, http.StatusOK)
			So(hw.Body.String(), ShouldContainSubstring, `"ok"`)

			mw := httptest.NewRecorder()
			h.ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(mw.Code, ShouldEqual, http.StatusOK)
			So(mw.Body.String(), ShouldContainSubstring, "crediscout_client_http_requests_total")
		})
	})
}

func TestNotices(t *testing.T) {
	Convey("Notices keep the last route and pop alerts once", t, func() {
		n := api.NewNotices()
		So(n.Route(), ShouldEqual, model.RouteDashboard)
		n.Navigate(context.Background(), model.RouteSignIn)
		So(n.Route(), ShouldEqual, model.RouteSignIn)
		n.Alert(context.Background(), "boom")
		So(n.PopAlert(), ShouldEqual, "boom")
		So(n.PopAlert(), ShouldBeEmpty)
	})
}
