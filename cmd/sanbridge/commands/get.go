package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/sanbridge/internal/arrays"
	"github.com/systmms/sanbridge/internal/config"
	dserrors "github.com/systmms/sanbridge/internal/errors"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <array> [resource] [args...]",
		Short: "Read a resource from an array",
		Long: `Log in to an array, read one resource and print it as JSON.

Without a resource the array's resources are listed.

Examples:
  sanbridge get vsp01                     # List VSP resources
  sanbridge get vsp01 pools
  sanbridge get vsp01 volumes 0 300
  sanbridge get vplex01 virtual-volumes cluster-1`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeArrayNames(cfg),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			ctx := cmd.Context()

			a, cleanup, err := openArray(ctx, cfg, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				return listResources(cmd, a)
			}

			ok, err := a.Login(ctx)
			if err != nil {
				return dserrors.ArrayError(a.Vendor, "login", err)
			}
			defer logout(a, cfg.Logger)
			if !ok {
				return dserrors.ArrayError(a.Vendor, "login", fmt.Errorf("no storage device matched %s", a.Name))
			}

			payload, err := a.Fetch(ctx, args[1], args[2:])
			if err != nil {
				return dserrors.ArrayError(a.Vendor, "get "+args[1], err)
			}
			return printJSON(out, payload)
		},
	}

	return cmd
}

func listResources(cmd *cobra.Command, a *arrays.Array) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "RESOURCE\tDESCRIPTION\n")
	for _, r := range a.Resources() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", r.Usage(), r.Description)
	}
	return w.Flush()
}
