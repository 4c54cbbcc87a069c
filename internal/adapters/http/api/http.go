// Package api declares the local site routes and their handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crediscout/internal/adapters/http/site"
	"github.com/okian/crediscout/internal/domain/action"
	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/pkg/logger"
)

// DefaultMaxUploadBytes bounds the multipart body accepted by POST /upload.
const DefaultMaxUploadBytes = 32 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the client service.
type Dependencies interface {
	State() fetcher.State
	Profile() (model.Profile, bool)
	Task() model.UploadTask

	Refresh(ctx context.Context) fetcher.State
	DownloadReport(ctx context.Context) (string, error)
	Submit(ctx context.Context, f action.File) (model.UploadTask, error)
}

// Server wires HTTP routes for the local site.
type Server struct {
	deps      Dependencies
	renderer  *site.Renderer
	notices   *Notices
	health    *HealthHandler
	logger    logger.Logger
	maxUpload int64
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithNotices shares the alert and navigation sink given to the service.
func WithNotices(n *Notices) Option {
	return func(s *Server) {
		if n != nil {
			s.notices = n
		}
	}
}

// WithLogger sets a custom logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxUploadBytes bounds the upload request body.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// NewServer creates the site server.
func NewServer(deps Dependencies, renderer *site.Renderer, opts ...Option) *Server {
	s := &Server{
		deps:      deps,
		renderer:  renderer,
		notices:   NewNotices(),
		health:    NewHealthHandler(),
		logger:    logger.Discard(),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.health.HandleMetrics)
	mux.HandleFunc("/state", MetricsMiddleware(s.handleState, "state"))
	mux.HandleFunc("/refresh", MetricsMiddleware(s.handleRefresh, "refresh"))
	mux.HandleFunc("/report", MetricsMiddleware(s.handleReport, "report"))
	mux.HandleFunc("/upload", MetricsMiddleware(s.handleUpload, "upload"))
	mux.HandleFunc("/", MetricsMiddleware(s.handleIndex, "index"))
}

// handleIndex handles GET / and renders the dashboard.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	s.renderPage(w, r, http.StatusOK)
}

// renderPage writes the dashboard with status, consuming any pending alert.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int) {
	in := site.Input{
		State:          s.deps.State(),
		Task:           s.deps.Task(),
		Alert:          s.notices.PopAlert(),
		SignInRequired: s.notices.Route() == model.RouteSignIn,
	}
	if p, ok := s.deps.Profile(); ok {
		in.Profile = &p
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.renderer.Render(w, s.renderer.Compose(in)); err != nil {
		s.logger.Error(r.Context(), "failed to render dashboard", logger.Error(err))
	}
}

// stateResponse is the JSON shape of GET /state.
type stateResponse struct {
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
	Snapshot   *snapshot `json:"snapshot,omitempty"`
	History    []float64 `json:"history,omitempty"`
	Upload     uploadDTO `json:"upload"`
}

type snapshot struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Tier  string  `json:"tier"`
}

type uploadDTO struct {
	ID       string `json:"id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Phase    string `json:"phase"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// handleState handles GET /state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(s.deps.State(), s.deps.Task()))
}

func newStateResponse(st fetcher.State, task model.UploadTask) stateResponse {
	resp := stateResponse{
		Status:     st.Status.String(),
		Message:    st.Message,
		Generation: st.Generation,
		UpdatedAt:  st.UpdatedAt,
		Upload:     newUploadDTO(task),
	}
	if vm := st.ViewModel; vm != nil {
		resp.Snapshot = &snapshot{ID: vm.ID, Score: vm.Score, Tier: string(vm.Tier)}
		resp.History = st.History.Scores()
	}
	return resp
}

func newUploadDTO(task model.UploadTask) uploadDTO {
	dto := uploadDTO{
		FileName: task.FileName,
		Phase:    string(task.Phase),
		Progress: task.Progress,
		Message:  task.Message,
	}
	if task.ID != uuid.Nil {
		dto.ID = task.ID.String()
	}
	return dto
}

// handleRefresh handles POST /refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	st := s.deps.Refresh(r.Context())
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, newStateResponse(st, s.deps.Task()))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleReport handles GET /report. The certificate is saved to the
// download directory and then served as an attachment.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	path, err := s.deps.DownloadReport(r.Context())
	if err != nil {
		if wantsJSON(r) {
			writeError(w, statusFor(err), codeFor(err), errors.New(failure.MessageOf(err, action.ReportFailedMessage)))
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

// handleUpload handles POST /upload with a multipart "file" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.logger.Warn(r.Context(), "unreadable upload form", logger.Error(err))
		s.respondUpload(w, r, model.UploadTask{Phase: model.PhaseIdle, Message: action.NoFileMessage},
			failure.Validation(action.NoFileMessage))
		return
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			s.logger.Warn(r.Context(), "failed to close upload part", logger.Error(cerr))
		}
	}()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	task, err := s.deps.Submit(r.Context(), formFile(header, file))
	s.respondUpload(w, r, task, err)
}

// respondUpload answers JSON clients with the task. Browsers are redirected
// to the dashboard, except that a rejected file is answered in place with
// 400 and the rejection shown on the page.
func (s *Server) respondUpload(w http.ResponseWriter, r *http.Request, task model.UploadTask, err error) {
	if wantsJSON(r) {
		status := http.StatusOK
		if err != nil {
			status = statusFor(err)
		}
		writeJSON(w, status, newUploadDTO(task))
		return
	}
	if failure.IsValidation(err) {
		msg := task.Message
		if msg == "" {
			msg = failure.MessageOf(err, action.RejectMessage)
		}
		// The upload section already prints the stored task's message.
		if s.deps.Task().Message != msg {
			s.notices.Alert(r.Context(), msg)
		}
		s.renderPage(w, r, http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// formFile exposes an already-open multipart part as an action.File.
func formFile(h *multipart.FileHeader, f multipart.File) action.File {
	return action.File{
		Name: h.Filename,
		Size: h.Size,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(f), nil },
	}
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps a classified failure to an HTTP status.
func statusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindUnauthenticated:
		return http.StatusUnauthorized
	case failure.KindIndeterminate:
		return http.StatusServiceUnavailable
	case failure.KindSubmission, failure.KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	return failure.KindOf(err).String()
}
