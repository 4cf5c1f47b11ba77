package cmd

import (
	"log/slog"
	"os"

	"github.com/childhealth/handbookscan/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions carries the configuration shared by every subcommand
type rootOptions struct {
	verbose   bool
	serverURL string
	cfg       *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "handbookscan",
		Short: "Digitize child health handbook pages with OCR and staff review",
		Long: `handbookscan turns photographs of paper child health handbook pages into
structured records.

Staff scan the insurance card and handbook pages, a vision LLM classifies and
extracts each page, and every extraction is reviewed and corrected before it
is committed to the patient's record.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			logLevel := slog.LevelInfo
			if opts.verbose {
				logLevel = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

			opts.cfg = config.Load()
			if opts.serverURL != "" {
				opts.cfg.ServerURL = opts.serverURL
			}
			return opts.cfg.Validate()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "Handbook server URL (default $HANDBOOK_SERVER_URL or http://localhost:8888)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newPatientsCmd(opts))
	cmd.AddCommand(newRecordsCmd(opts))

	return cmd
}
