package cmd

import (
	"fmt"
	"strconv"

	"github.com/childhealth/handbookscan/internal/handbookapi"
	"github.com/childhealth/handbookscan/internal/poller"
	"github.com/childhealth/handbookscan/internal/terminal"
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the OCR progress of a scan session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}

			client := handbookapi.NewClient(opts.cfg.ServerURL, opts.cfg.HTTPTimeout)
			snapshot, err := client.SessionStatus(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			tick := poller.Evaluate(snapshot, nil, nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "工作階段 %d  %s  病患 %s\n", snapshot.SessionID, snapshot.Status, snapshot.PatientID)
			fmt.Fprintln(out, terminal.ProgressText(tick.Progress))
			terminal.RenderQueue(out, snapshot.Pages, 0)
			return nil
		},
	}
	return cmd
}
