package cmd

import (
	"fmt"
	"strings"

	"github.com/childhealth/handbookscan/internal/handbookapi"
	"github.com/childhealth/handbookscan/internal/patients"
	"github.com/spf13/cobra"
)

func newPatientsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Patient directory tools",
	}

	search := &cobra.Command{
		Use:   "search <id-or-name>",
		Short: "Search patients by national ID or name",
		Example: `  handbookscan patients search A123456789
  handbookscan patients search 陳`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := handbookapi.NewClient(opts.cfg.ServerURL, opts.cfg.HTTPTimeout)
			outcome := patients.NewResolver(client).Lookup(cmd.Context(), strings.Join(args, " "))

			out := cmd.OutOrStdout()
			if outcome.Status == patients.Failed {
				return fmt.Errorf("%s: %w", outcome.Message(), outcome.Err)
			}
			fmt.Fprintln(out, outcome.Message())
			for _, p := range outcome.Patients {
				fmt.Fprintf(out, "%s  %s  %s  %s\n", p.ID, p.Name, p.SexLabel(), p.BirthDate)
			}
			return nil
		},
	}

	cmd.AddCommand(search)
	return cmd
}
