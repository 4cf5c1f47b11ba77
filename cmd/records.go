package cmd

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/childhealth/handbookscan/internal/export"
	"github.com/childhealth/handbookscan/internal/handbookapi"
	"github.com/spf13/cobra"
)

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Committed handbook records",
	}

	var outputDir string
	exportCmd := &cobra.Command{
		Use:   "export <mpersonid>",
		Short: "Export a patient's handbook records to Parquet",
		Long: `Fetches every confirmed 家長紀錄事項 and 衛教指導紀錄 record for a patient
and writes them as Parquet tables: checklist answers, parent self-assessment
and doctor guidance.`,
		Example: `  handbookscan records export A123456789 --output ./exports`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := handbookapi.NewClient(opts.cfg.ServerURL, opts.cfg.HTTPTimeout)
			records, err := client.PatientRecords(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if records.Patient.ID == "" {
				records.Patient.ID = args[0]
			}

			result, err := export.Write(outputDir, records)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Files) == 0 {
				fmt.Fprintf(out, "No records for %s\n", args[0])
				return nil
			}
			paths := make([]string, 0, len(result.Files))
			for path := range result.Files {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				fmt.Fprintf(out, "%s (%d rows)\n", path, result.Files[path])
			}
			slog.Info("Records exported", "mpersonid", args[0], "files", len(paths))
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory for the Parquet files")

	cmd.AddCommand(exportCmd)
	return cmd
}
