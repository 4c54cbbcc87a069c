// Package action runs the user-triggered side effects layered on the
// fetcher: manual refresh, certificate download and statement upload.
// Each action resolves its own failures into state and never affects the
// committed view model except through the fetcher.
package action

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/pkg/logger"
	"github.com/okian/crediscout/pkg/metrics"
)

// User-facing messages.
const (
	ReportFailedMessage = "Failed to download certificate."
	NoSnapshotMessage   = "There is no scored snapshot to certify yet."
)

const (
	// DefaultVerifyDelay is the pause after a finished upload that lets the
	// upstream store catch up before the dashboard reloads.
	DefaultVerifyDelay = 2 * time.Second

	reportFilePattern = "crediscout_certificate_%s.pdf"
	reportFileMode    = 0o644
)

// Loader is the part of the fetcher the orchestrator drives.
type Loader interface {
	Load(ctx context.Context) (fetcher.State, bool)
	State() fetcher.State
}

// TokenSource issues bearer credentials. *session.Gate satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ReportSource retrieves the certificate for a snapshot.
type ReportSource interface {
	Certificate(ctx context.Context, token, id string) ([]byte, error)
}

// Submitter sends a statement file to the scoring service. size is the
// length of r, or negative when unknown.
type Submitter interface {
	Upload(ctx context.Context, token, name string, size int64, r io.Reader, progress func(percent int)) (model.UploadReceipt, error)
}

// Navigator moves the client to another surface.
type Navigator interface {
	Navigate(ctx context.Context, route model.Route)
}

// Alerter raises a transient user-facing notice.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// Orchestrator performs user actions.
type Orchestrator struct {
	loader    Loader
	tokens    TokenSource
	reports   ReportSource
	submitter Submitter
	navigator Navigator
	alerter   Alerter
	logger    logger.Logger

	downloadDir string
	verifyDelay time.Duration
	newID       func() uuid.UUID
	onTask      func(model.UploadTask)

	mu       sync.Mutex
	task     model.UploadTask
	selected *File
}

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithDownloadDir sets where certificates are saved.
func WithDownloadDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.downloadDir = dir
		}
	}
}

// WithVerifyDelay sets the pause between a finished transfer and completion.
func WithVerifyDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.verifyDelay = d
		}
	}
}

// WithNavigator sets the navigation sink.
func WithNavigator(n Navigator) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.navigator = n
		}
	}
}

// WithAlerter sets the alert sink.
func WithAlerter(a Alerter) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.alerter = a
		}
	}
}

// WithTaskObserver receives every upload task transition.
func WithTaskObserver(fn func(model.UploadTask)) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.onTask = fn
		}
	}
}

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator.
func New(loader Loader, tokens TokenSource, reports ReportSource, submitter Submitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loader:      loader,
		tokens:      tokens,
		reports:     reports,
		submitter:   submitter,
		navigator:   nopNavigator{},
		alerter:     nopAlerter{},
		logger:      logger.Discard(),
		downloadDir: ".",
		verifyDelay: DefaultVerifyDelay,
		newID:       uuid.New,
		onTask:      func(model.UploadTask) {},
		task:        model.UploadTask{Phase: model.PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Refresh re-runs the fetcher. Calling it while a load is in flight is safe:
// the newer call supersedes the older one.
func (o *Orchestrator) Refresh(ctx context.Context) fetcher.State {
	st, _ := o.loader.Load(ctx)
	return st
}

// ReportFileName is the deterministic local name of the certificate for id.
func ReportFileName(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, id)
	return fmt.Sprintf(reportFilePattern, safe)
}

// DownloadReport fetches the certificate for the current snapshot and saves
// it in the download directory. On failure an alert is raised and no file,
// partial or otherwise, is left behind.
func (o *Orchestrator) DownloadReport(ctx context.Context) (string, error) {
	path, err := o.downloadReport(ctx)
	if err != nil {
		metrics.RecordReportDownload("failed")
		metrics.RecordError("report", failure.KindOf(err).String())
		o.logger.Warn(ctx, "certificate download failed", logger.Error(err))
		o.alerter.Alert(ctx, failure.MessageOf(err, ReportFailedMessage))
		return "", err
	}
	metrics.RecordReportDownload("saved")
	o.logger.Info(ctx, "certificate saved", logger.String("path", path))
	return path, nil
}

func (o *Orchestrator) downloadReport(ctx context.Context) (string, error) {
	vm := o.loader.State().ViewModel
	if vm == nil || vm.ID == "" {
		return "", failure.Submission(NoSnapshotMessage, nil)
	}

	token, err := o.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	data, err := o.reports.Certificate(ctx, token, vm.ID)
	if err != nil {
		if failure.IsUnauthenticated(err) {
			return "", err
		}
		return "", failure.Submission(ReportFailedMessage, err)
	}

	path := filepath.Join(o.downloadDir, ReportFileName(vm.ID))
	if err := writeFileAtomic(path, data); err != nil {
		return "", failure.Submission(ReportFailedMessage, err)
	}
	return path, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpPath := tmp.Name()
	writeErr := func() error {
		if _, err := tmp.Write(data); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := tmp.Chmod(reportFileMode); err != nil {
			_ = tmp.Close()
			return err
		}
		return tmp.Close()
	}()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", writeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize report: %w", err)
	}
	return nil
}

type nopNavigator struct{}

func (nopNavigator) Navigate(context.Context, model.Route) {}

type nopAlerter struct{}

func (nopAlerter) Alert(context.Context, string) {}
