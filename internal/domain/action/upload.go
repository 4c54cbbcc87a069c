package action

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/pkg/logger"
	"github.com/okian/crediscout/pkg/metrics"
)

// Upload messages.
const (
	RejectMessage       = "Please upload a valid CSV or PDF file."
	UploadFailedMessage = "Upload failed. Please try again."
	NoFileMessage       = "Select a statement file to upload."
	BusyMessage         = "An upload is already in progress."
)

const fullProgress = 100

// acceptedSuffixes are matched case-sensitively against the file name.
var acceptedSuffixes = []string{".csv", ".pdf"}

// File is a statement chosen by the user. Open is called once per upload.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Admit is the local admission check applied before any network call, to
// picked and dropped files alike.
func Admit(name string) error {
	for _, suffix := range acceptedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return nil
		}
	}
	return failure.Validation(RejectMessage)
}

// Task returns the current upload task.
func (o *Orchestrator) Task() model.UploadTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.task
}

// Select admits f and makes it the pending file. A rejected file clears the
// selection and leaves the rejection message on the task.
func (o *Orchestrator) Select(f File) error {
	o.mu.Lock()
	if busy(o.task.Phase) {
		o.mu.Unlock()
		return failure.Validation(BusyMessage)
	}
	if err := Admit(f.Name); err != nil {
		o.selected = nil
		o.task = model.UploadTask{Phase: model.PhaseIdle, FileName: f.Name, Message: RejectMessage}
		task := o.task
		o.mu.Unlock()
		metrics.RecordAdmissionRejection()
		o.onTask(task)
		return err
	}
	sel := f
	o.selected = &sel
	o.task = model.UploadTask{Phase: model.PhaseIdle, FileName: f.Name, Size: f.Size}
	task := o.task
	o.mu.Unlock()
	o.onTask(task)
	return nil
}

// Clear drops the pending file unless an upload is running.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	if busy(o.task.Phase) {
		o.mu.Unlock()
		return
	}
	o.selected = nil
	o.task = model.UploadTask{Phase: model.PhaseIdle}
	task := o.task
	o.mu.Unlock()
	o.onTask(task)
}

// Submit selects f and uploads it.
func (o *Orchestrator) Submit(ctx context.Context, f File) (model.UploadTask, error) {
	if err := o.Select(f); err != nil {
		return o.Task(), err
	}
	return o.Upload(ctx)
}

// Upload sends the pending file. Progress only grows while transferring;
// after the transfer the task waits in the verifying phase, then completes,
// navigates to the dashboard and reloads it. Any failure resets progress to
// zero and keeps the upstream detail when one was given.
func (o *Orchestrator) Upload(ctx context.Context) (model.UploadTask, error) {
	o.mu.Lock()
	if busy(o.task.Phase) {
		task := o.task
		o.mu.Unlock()
		return task, failure.Validation(BusyMessage)
	}
	f := o.selected
	if f == nil {
		task := o.task
		o.mu.Unlock()
		return task, failure.Validation(NoFileMessage)
	}
	id := o.newID()
	o.task = model.UploadTask{ID: id, FileName: f.Name, Size: f.Size, Phase: model.PhaseUploading}
	task := o.task
	o.mu.Unlock()
	o.onTask(task)

	o.logger.Info(ctx, "uploading statement",
		logger.String("task", id.String()),
		logger.String("file", f.Name),
		logger.Int64("size", f.Size),
	)

	receipt, err := o.transfer(ctx, id, f)
	if err != nil {
		return o.fail(ctx, id, err)
	}

	o.update(id, func(t *model.UploadTask) {
		t.Progress = fullProgress
		t.Phase = model.PhaseVerifying
	})

	select {
	case <-ctx.Done():
		return o.fail(ctx, id, ctx.Err())
	case <-time.After(o.verifyDelay):
	}

	done := o.update(id, func(t *model.UploadTask) { t.Phase = model.PhaseDone })
	o.mu.Lock()
	o.selected = nil
	o.mu.Unlock()

	metrics.RecordUpload(string(model.PhaseDone))
	o.logger.Info(ctx, "statement scored",
		logger.String("task", id.String()),
		logger.String("snapshot", receipt.ID),
		logger.String("tier", string(receipt.Tier)),
	)

	o.navigator.Navigate(ctx, model.RouteDashboard)
	o.loader.Load(ctx)
	return done, nil
}

func (o *Orchestrator) transfer(ctx context.Context, id uuid.UUID, f *File) (model.UploadReceipt, error) {
	token, err := o.tokens.Token(ctx)
	if err != nil {
		return model.UploadReceipt{}, err
	}
	if f.Open == nil {
		return model.UploadReceipt{}, failure.Validation(NoFileMessage)
	}
	rc, err := f.Open()
	if err != nil {
		return model.UploadReceipt{}, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			o.logger.Warn(ctx, "failed to close statement", logger.Error(cerr))
		}
	}()

	metrics.RecordUploadBytes(f.Size)
	return o.submitter.Upload(ctx, token, f.Name, f.Size, rc, func(pct int) {
		o.update(id, func(t *model.UploadTask) {
			if t.Phase == model.PhaseUploading && pct > t.Progress {
				t.Progress = min(pct, fullProgress)
			}
		})
	})
}

func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, err error) (model.UploadTask, error) {
	msg := failure.DetailOf(err)
	if msg == "" {
		msg = UploadFailedMessage
	}
	task := o.update(id, func(t *model.UploadTask) {
		t.Phase = model.PhaseFailed
		t.Progress = 0
		t.Message = msg
	})

	metrics.RecordUpload(string(model.PhaseFailed))
	metrics.RecordError("upload", failure.KindOf(err).String())
	o.logger.Warn(ctx, "statement upload failed", logger.String("task", id.String()), logger.Error(err))

	if failure.IsUnauthenticated(err) {
		o.navigator.Navigate(ctx, model.RouteSignIn)
		return task, err
	}
	return task, failure.Submission(msg, err)
}

// update mutates the task if it is still task id and reports the change.
func (o *Orchestrator) update(id uuid.UUID, fn func(*model.UploadTask)) model.UploadTask {
	o.mu.Lock()
	if o.task.ID != id {
		task := o.task
		o.mu.Unlock()
		return task
	}
	before := o.task
	fn(&o.task)
	task := o.task
	o.mu.Unlock()
	if task != before {
		o.onTask(task)
	}
	return task
}

func busy(p model.UploadPhase) bool {
	return p == model.PhaseUploading || p == model.PhaseVerifying
}
