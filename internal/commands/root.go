// Package commands implements the crediscout command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/crediscout/internal/adapters/identity"
	"github.com/okian/crediscout/internal/adapters/scoreapi"
	service "github.com/okian/crediscout/internal/app"
	"github.com/okian/crediscout/internal/config"
	"github.com/okian/crediscout/pkg/logger"
)

var (
	// ErrMissingCredentials is returned when no email or password was supplied.
	ErrMissingCredentials = errors.New("email and password are required: pass --email/--password or set CREDISCOUT_EMAIL/CREDISCOUT_PASSWORD")

	// ErrShown marks a failure the terminal has already printed.
	ErrShown = errors.New("failure already shown")
)

// Runtime carries what commands share. Nil collaborators are built from
// Config on first use.
type Runtime struct {
	Out io.Writer
	Err io.Writer

	Config   *config.Config
	Backend  service.Backend
	Provider service.Provider
}

// NewRuntime returns a runtime writing to the process streams.
func NewRuntime() *Runtime {
	return &Runtime{Out: os.Stdout, Err: os.Stderr}
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(rt *Runtime) *cobra.Command {
	var email, password string

	rootCmd := &cobra.Command{
		Use:   "crediscout",
		Short: "Credit readiness dashboard client",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.init(cmd.Context()); err != nil {
				return err
			}
			if email != "" {
				rt.Config.Email = email
			}
			if password != "" {
				rt.Config.Password = password
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&email, "email", "", "account email (overrides config)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "account password (overrides config)")

	rootCmd.AddCommand(
		newLoginCommand(rt),
		newRegisterCommand(rt),
		newProfileCommand(rt),
		newDashboardCommand(rt),
		newAnalyticsCommand(rt),
		newUploadCommand(rt),
		newReportCommand(rt),
		newServeCommand(rt),
	)

	return rootCmd
}

func (rt *Runtime) init(ctx context.Context) error {
	if rt.Out == nil {
		rt.Out = os.Stdout
	}
	if rt.Err == nil {
		rt.Err = os.Stderr
	}
	if rt.Config == nil {
		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}
		rt.Config = cfg
	}
	if err := logger.SetLevelString(rt.Config.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", rt.Config.LogLevel))
		_ = logger.SetLevelString("info")
	}
	return nil
}

func (rt *Runtime) backend() service.Backend {
	if rt.Backend == nil {
		rt.Backend = scoreapi.NewClient(rt.Config.APIURL,
			scoreapi.WithTimeout(rt.Config.RequestTimeout()),
			scoreapi.WithLogger(logger.Named("scoreapi")),
		)
	}
	return rt.Backend
}

func (rt *Runtime) provider() service.Provider {
	if rt.Provider == nil {
		rt.Provider = service.IdentityProvider(identity.NewClient(
			rt.Config.AuthURL, rt.Config.TokenURL, rt.Config.AuthAPIKey,
			identity.WithTimeout(rt.Config.RequestTimeout()),
			identity.WithLogger(logger.Named("identity")),
		))
	}
	return rt.Provider
}

// newService builds a started client service with terminal sinks unless
// opts replace them.
func (rt *Runtime) newService(ctx context.Context, opts ...service.Option) (*service.Service, error) {
	term := newTerminal(rt.Err)
	base := []service.Option{
		service.WithLogger(logger.Get()),
		service.WithNavigator(term),
		service.WithAlerter(term),
		service.WithDownloadDir(rt.Config.DownloadDir),
		service.WithVerifyDelay(rt.Config.VerifyDelay()),
	}
	svc := service.New(rt.backend(), rt.provider(), append(base, opts...)...)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start client: %w", err)
	}
	return svc, nil
}

// session starts a service and signs in with the configured credentials.
// The caller must Stop the returned service.
func (rt *Runtime) session(ctx context.Context, opts ...service.Option) (*service.Service, error) {
	if rt.Config.Email == "" || rt.Config.Password == "" {
		return nil, ErrMissingCredentials
	}
	svc, err := rt.newService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := svc.SignIn(ctx, rt.Config.Email, rt.Config.Password); err != nil {
		svc.Stop()
		return nil, authError(err)
	}
	return svc, nil
}

// authError surfaces the identity service's user-facing text when present.
func authError(err error) error {
	var ae *identity.AuthError
	if errors.As(err, &ae) && ae.Message != "" {
		return errors.New(ae.Message)
	}
	return err
}
