package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/childhealth/handbookscan/internal/config"
	"github.com/childhealth/handbookscan/internal/handlers"
	"github.com/childhealth/handbookscan/internal/ocr"
	"github.com/childhealth/handbookscan/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port     string
		provider string
		model    string
		patients string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the handbook scan server",
		Long: `Starts the handbook scan API on the specified port.

Uploaded pages are classified and extracted in the background by a vision
LLM (Ollama, OpenAI or Gemini). Sessions, pages and committed records are kept
in memory; the patient directory is loaded from a YAML file.`,
		Example: `  # Start server on default port 8888 with Ollama
  handbookscan serve --patients ./patients.yaml

  # Use Gemini for OCR
  handbookscan serve --provider gemini --model gemini-1.5-flash`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if provider == "" {
				provider = cfg.OCRProvider
			}
			if model == "" {
				model = cfg.OCRModel
				if provider != cfg.OCRProvider {
					model = config.DefaultModel(provider)
				}
			}
			if patients == "" {
				patients = cfg.PatientsFile
			}

			vision, err := ocr.NewProvider(provider)
			if err != nil {
				return err
			}

			store := storage.New()
			if patients != "" {
				n, err := store.LoadPatients(patients)
				if err != nil {
					return err
				}
				slog.Info("Patient directory loaded", "path", patients, "patients", n)
			}

			queue := ocr.NewQueue(
				ocr.NewService(vision, model, slog.Default()),
				store,
				slog.Default(),
				ocr.WithWorkers(cfg.OCRWorkers),
				ocr.WithProcessTimeout(cfg.OCRTimeout),
			)

			mux := http.NewServeMux()
			handlers.New(store, queue, handlers.WithMaxUpload(cfg.MaxUploadBytes)).Register(mux)

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Handbook server available", "addr", addr, "url", "http://localhost"+addr, "provider", provider, "model", model)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				queue.Shutdown(shutdownCtx)
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				queue.Shutdown(context.Background())
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&provider, "provider", "", "OCR provider: ollama, openai or gemini (default $OCR_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "Vision model (default depends on provider)")
	cmd.Flags().StringVar(&patients, "patients", "", "YAML patient directory (default $HANDBOOK_PATIENTS_FILE)")

	return cmd
}
