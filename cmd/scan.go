package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/childhealth/handbookscan/internal/handbookapi"
	"github.com/childhealth/handbookscan/internal/session"
	"github.com/childhealth/handbookscan/internal/terminal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var summaryPath string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan and review a child health handbook interactively",
		Long: `Runs one scan session against the handbook server.

The session walks through staff login, insurance card identification and
page review. Pages are polled until OCR finishes and presented one at a time
for confirmation, correction or rejection. Type "help" at the prompt for the
list of commands.`,
		Example: `  # Scan against a local server
  handbookscan scan

  # Save the session summary
  handbookscan scan --summary ./session.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg

			shell := terminal.NewShell(cmd.InOrStdin(), cmd.OutOrStdout())
			ctrl := session.NewController(
				handbookapi.NewClient(cfg.ServerURL, cfg.HTTPTimeout),
				session.WithListener(shell),
				session.WithLogger(slog.Default()),
				session.WithPollInterval(cfg.PollInterval),
				session.WithPageWaitAttempts(cfg.PageWaitAttempts),
				session.WithCompletionPolicy(cfg.CompletionPolicy),
			)

			summary, err := shell.Run(cmd.Context(), ctrl)
			if err != nil {
				return err
			}
			if summaryPath == "" {
				return nil
			}

			data, err := yaml.Marshal(summary)
			if err != nil {
				return fmt.Errorf("failed to encode summary: %w", err)
			}
			if err := os.WriteFile(summaryPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write summary: %w", err)
			}
			slog.Info("Session summary written", "path", summaryPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&summaryPath, "summary", "", "Write the session summary as YAML to this path")

	return cmd
}
