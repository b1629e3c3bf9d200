package command

import (
	"github.com/spf13/cobra"
)

// migrateCommand はユーザーDBのマイグレーションだけを適用して終了します。
func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "データベースのマイグレーションを適用する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// users.Open が起動時と同じ手順でマイグレーションを適用する
			logger, db, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("migrations applied")
			return db.Close()
		},
	}
}
