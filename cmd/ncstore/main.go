// Точка входа ncstore — хранилище управляющих программ ЧПУ с ревизиями
// и workflow согласования.
// Команды: serve (HTTP API), migrate (миграции БД), verify (проверка файлов ревизий).
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/ncstore/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Ошибка выполнения команды", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ncstore",
		Short:         "Хранилище NC-программ с ревизиями и workflow согласования",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newVerifyCmd())
	return root
}

// loadConfig — общая загрузка конфигурации и логгера для всех команд.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.SetupLogger(cfg), nil
}
