package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/view"
)

func newDashboardCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the latest credit readiness score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withDashboard(cmd.Context(), func(st fetcher.State, d *view.Dashboard) {
				renderDashboard(rt.Out, d, st.History.Scores(), rt.Config.TrendWindow)
			})
		},
	}
}

func newAnalyticsCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show the spending breakdown and recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withDashboard(cmd.Context(), func(_ fetcher.State, d *view.Dashboard) {
				renderAnalytics(rt.Out, d)
			})
		},
	}
}

// withDashboard signs in, waits for the automatic load and hands a ready
// dashboard to fn. An empty account prints the upload invitation instead.
func (rt *Runtime) withDashboard(ctx context.Context, fn func(fetcher.State, *view.Dashboard)) error {
	svc, err := rt.session(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()

	st := svc.Await(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	return rt.present(rt.Out, st, fn)
}

func (rt *Runtime) present(w io.Writer, st fetcher.State, fn func(fetcher.State, *view.Dashboard)) error {
	switch st.Status {
	case fetcher.Ready:
		fn(st, view.Build(st.ViewModel, st.History, rt.Config.GaugeRadius, rt.Config.TrendWindow))
		return nil
	case fetcher.Empty:
		title, text := view.Headline(st)
		fmt.Fprintln(w, bold(title))
		fmt.Fprintln(w, text)
		return nil
	case fetcher.Failed:
		if failure.IsUnauthenticated(st.Err) {
			return st.Err
		}
		if st.Message == "" {
			return errors.New(fetcher.FetchFailedMessage)
		}
		return errors.New(st.Message)
	default:
		return fmt.Errorf("dashboard did not load (state %s)", st.Status)
	}
}
