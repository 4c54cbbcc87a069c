package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/crediscout/internal/domain/view"
)

func newLoginCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and print the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.session(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			p, _ := svc.Profile()
			fmt.Fprintf(rt.Out, "%s %s\n", green("Signed in as"), p.Email)
			return nil
		},
	}
}

func newRegisterCommand(rt *Runtime) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with the configured email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.Config.Email == "" || rt.Config.Password == "" {
				return ErrMissingCredentials
			}
			svc, err := rt.newService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			p, err := svc.Register(cmd.Context(), rt.Config.Email, rt.Config.Password, name)
			if err != nil {
				return authError(err)
			}
			fmt.Fprintf(rt.Out, "%s %s\n", green("Registered"), p.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name for the new account")
	return cmd
}

func newProfileCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.session(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			p, _ := svc.Profile()
			renderAccount(rt.Out, view.AccountOf(p))
			return nil
		},
	}
}
