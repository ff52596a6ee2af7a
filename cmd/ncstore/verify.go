package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/ncstore/internal/database"
	"github.com/bigkaa/ncstore/internal/repository"
	"github.com/bigkaa/ncstore/internal/service"
	"github.com/bigkaa/ncstore/internal/storage/filestore"
)

// errIntegrity — найдены проблемы целостности (код выхода 1).
var errIntegrity = errors.New("проверка целостности не пройдена")

func newVerifyCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Проверить файлы ревизий: наличие, размер и SHA-256",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			files, err := filestore.New(cfg.DataDir)
			if err != nil {
				return err
			}

			report, err := service.NewIntegrityService(repository.NewStore(pool), files, workers, logger).Verify(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "%s\t%s\trevision=%s\tprogram=%s\texpected=%s\tactual=%s\n",
					issue.Type, issue.StoragePath, issue.RevisionID, issue.ProgramID, issue.Expected, issue.Actual)
			}
			fmt.Fprintf(out, "проверено ревизий: %d, проблем: %d, время: %s\n",
				report.Checked, len(report.Issues), report.Duration)

			if !report.OK() {
				logger.Error("Найдены проблемы целостности", slog.Int("issues", len(report.Issues)))
				return errIntegrity
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "число параллельных проверок файлов")
	return cmd
}
