// Package command は管理用CLI（authctl）のコマンドを定義します。
package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/logging"
)

type configKey struct{}

type loggerKey struct{}

// RootCommand はサブコマンドを登録したルートコマンドを返します。
func RootCommand() *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:          "authctl [command] [flags]",
		Short:        "authgate の管理コマンド",
		Version:      version(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if databaseURL != "" {
				cfg.DatabaseURL = databaseURL
			}
			logger, err := logging.New(cfg.LogLevel, cfg.GinMode)
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if logger, ok := cmd.Context().Value(loggerKey{}).(*zap.Logger); ok {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(
		&databaseURL,
		"database-url", "",
		"DATABASE_URL を上書きする接続先",
	)

	cmd.AddCommand(
		userCommand(),
		migrateCommand(),
	)

	return cmd
}
