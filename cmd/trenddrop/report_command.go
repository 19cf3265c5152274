package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trenddrop/internal/adapters/report"
	"trenddrop/internal/adapters/storage"
	"trenddrop/internal/domain"
	"trenddrop/internal/usecase/reports"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:       "report [weekly|master|sample]",
		Short:     "Собрать отчётный пакет: недельный, мастер или бесплатный сэмпл",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"weekly", "master", "sample"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.ensureConfig()
			defer ctx.close()

			mode := "weekly"
			if len(args) > 0 {
				mode = args[0]
			}

			repoAdapter, err := ctx.repo()
			if err != nil {
				return err
			}

			uploader := storage.NewUploader(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, cfg.Storage.Bucket, ctx.logger)
			svc := reports.NewService(repoAdapter, repoAdapter, report.NewPDFWriter(""), uploader,
				domain.ClockFunc(time.Now), reports.Config{
					OutDir:   cfg.Reports.OutDir,
					LockFile: cfg.Reports.LockFile,
					TopN:     cfg.Reports.TopN,
					MaxPull:  cfg.Reports.MaxPull,
				}, ctx.logger)

			var artifacts domain.ReportArtifacts
			switch mode {
			case "master":
				artifacts, err = svc.GenerateMaster(cmd.Context())
			case "sample":
				artifacts, err = svc.GenerateSample(cmd.Context())
			default:
				artifacts, err = svc.GenerateWeekly(cmd.Context(), provider)
			}
			if err != nil {
				return err
			}

			fmt.Printf("PDF: %s\n", artifacts.PDFPath)
			fmt.Printf("CSV: %s\n", artifacts.CSVPath)
			if artifacts.ZipPath != "" {
				fmt.Printf("ZIP: %s\n", artifacts.ZipPath)
			}
			if artifacts.PDFURL != "" {
				fmt.Printf("Публичная ссылка: %s\n", artifacts.PDFURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "ebay", "маркетплейс недельного пакета: ebay, amazon, aliexpress")

	return cmd
}
