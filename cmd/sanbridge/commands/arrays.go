package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/sanbridge/internal/arrays"
	"github.com/systmms/sanbridge/internal/config"
	"github.com/systmms/sanbridge/internal/credentials"
)

func NewArraysCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arrays",
		Short: "List configured arrays",
		Long: `Display the arrays in the configuration with their vendor protocol and
where each password is read from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			registry := arrays.NewRegistry()
			sources := credentials.NewRegistry()
			out := cmd.OutOrStdout()

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "NAME\tVENDOR\tADDRESS\tUSER\tPASSWORD\tSTATUS\n")
			for _, name := range cfg.ArrayNames() {
				ac, _ := cfg.GetArray(name)

				status := "configured"
				switch {
				case !registry.IsSupported(ac.Vendor):
					status = "unsupported vendor"
				case !sources.IsSupported(ac.Password.Source):
					status = "unsupported password source"
				}

				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					name, ac.Vendor, ac.TransportConfig().BaseURL(), ac.Username, ac.Password.Source, status)
			}
			return w.Flush()
		},
	}

	return cmd
}
