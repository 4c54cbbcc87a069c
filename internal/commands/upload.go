package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	service "github.com/okian/crediscout/internal/app"
	"github.com/okian/crediscout/internal/domain/action"
	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/model"
)

func newUploadCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <statement.csv|statement.pdf>",
		Short: "Upload a bank statement for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]
			name := filepath.Base(path)

			// Rejected files never reach the network.
			if err := action.Admit(name); err != nil {
				return errors.New(action.RejectMessage)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("read statement: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("read statement: %s is a directory", path)
			}

			svc, err := rt.session(ctx, service.WithTaskObserver(func(t model.UploadTask) {
				renderTask(rt.Err, t)
			}))
			if err != nil {
				return err
			}
			defer svc.Stop()

			task, err := svc.Submit(ctx, action.File{
				Name: name,
				Size: info.Size(),
				Open: func() (io.ReadCloser, error) { return os.Open(path) },
			})
			if err != nil {
				return fmt.Errorf("%s: %w", task.Message, ErrShown)
			}

			st := svc.State()
			fmt.Fprintf(rt.Out, "%s %s\n", green("Uploaded"), task.FileName)
			if vm := st.ViewModel; vm != nil {
				fmt.Fprintf(rt.Out, "%s %.0f (%s)\n", bold("Score:"), vm.Score, tierColor(vm.Tier)(string(vm.Tier)))
			}
			return nil
		},
	}
}

func newReportCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Download the credit certificate of the latest snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := rt.session(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			svc.Await(ctx)
			path, err := svc.DownloadReport(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", failure.MessageOf(err, action.ReportFailedMessage), ErrShown)
			}
			fmt.Fprintf(rt.Out, "%s %s\n", green("Saved"), path)
			return nil
		},
	}
}
