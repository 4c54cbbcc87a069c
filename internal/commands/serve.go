package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/crediscout/internal/adapters/http/api"
	"github.com/okian/crediscout/internal/adapters/http/site"
	"github.com/okian/crediscout/internal/adapters/http/swagger"
	service "github.com/okian/crediscout/internal/app"
	"github.com/okian/crediscout/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	writeSlack        = 10 * time.Second
)

func newServeCommand(rt *Runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard as a local web page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				rt.Config.Addr = addr
			}
			ln, err := net.Listen("tcp", rt.Config.Addr)
			if err != nil {
				return fmt.Errorf("%w: %v", api.ErrServe, err)
			}
			return rt.serve(cmd.Context(), ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// serve runs the local site on ln until ctx ends.
func (rt *Runtime) serve(ctx context.Context, ln net.Listener) error {
	log := logger.Named("site")
	notices := api.NewNotices()

	svc, err := rt.session(ctx,
		service.WithNavigator(notices),
		service.WithAlerter(notices),
	)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer svc.Stop()

	renderer, err := site.New(
		site.WithGaugeRadius(rt.Config.GaugeRadius),
		site.WithTrendWindow(rt.Config.TrendWindow),
	)
	if err != nil {
		_ = ln.Close()
		return err
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, renderer,
		api.WithNotices(notices),
		api.WithLogger(log),
	).Register(ctx, mux)

	// An upload holds its request open through the transfer and the
	// verification pause.
	srv := &http.Server{
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      2*rt.Config.RequestTimeout() + rt.Config.VerifyDelay() + writeSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", ln.Addr().String()))
		fmt.Fprintf(rt.Out, "%s http://%s/\n", green("Dashboard available at"), ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %v", api.ErrServe, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%w: %v", api.ErrShutdown, err)
		}
		log.Info(context.Background(), "server stopped")
		return nil
	})
	return g.Wait()
}
