package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/sanbridge/internal/config"
	dserrors "github.com/systmms/sanbridge/internal/errors"
)

func NewLoginCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <array>",
		Short: "Check that sanbridge can log in to an array",
		Long: `Log in to an array, print the storage device it resolved to, open an
authenticated session and log out again.

Examples:
  sanbridge login vsp01
  sanbridge login vplex01 --debug`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeArrayNames(cfg),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			ctx := cmd.Context()
			name := args[0]

			a, cleanup, err := openArray(ctx, cfg, name)
			if err != nil {
				return err
			}
			defer cleanup()

			ok, err := a.Login(ctx)
			if err != nil {
				return dserrors.ArrayError(a.Vendor, "login", err)
			}
			defer logout(a, cfg.Logger)
			if !ok {
				return dserrors.ArrayError(a.Vendor, "login", fmt.Errorf("no storage device matched %s", name))
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Logged in to %s (%s)\n", name, a.Vendor)
			if dev, ok := a.Session.Device(); ok {
				_, _ = fmt.Fprintf(out, "  Storage device: %s\n", dev.StorageDeviceID)
				_, _ = fmt.Fprintf(out, "  Model:          %s\n", dev.Model)
				_, _ = fmt.Fprintf(out, "  Serial number:  %s\n", dev.SerialNumber)
			}

			if err := a.Check(ctx); err != nil {
				return dserrors.ArrayError(a.Vendor, "read "+a.CheckResource(), err)
			}
			_, _ = fmt.Fprintf(out, "  Session:        open (read %s)\n", a.CheckResource())
			return nil
		},
	}

	return cmd
}

