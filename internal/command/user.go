package command

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/authgate/internal/auth"
	"github.com/yourusername/authgate/internal/users"
)

func userCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "ユーザー管理",
	}
	cmd.AddCommand(
		userCreateCommand(),
		userDeleteCommand(),
	)
	return cmd
}

func userCreateCommand() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "ユーザーを作成する",
		Long: "指定したユーザー名とパスワードでユーザーを作成します。パスワードは\n" +
			"標準入力または対話プロンプトから受け取ります。",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (runErr error) {
			logger, db, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					runErr = errors.Join(runErr, err)
				}
			}()

			name := args[0]
			role = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(role)), auth.AuthorityPrefix)
			if role == "" {
				return errors.New("role must not be empty")
			}

			passwd, err := prompt(cmd.InOrStdin(), cmd.ErrOrStderr(), "password: ", true)
			if err != nil {
				return err
			}
			if len(passwd) == 0 {
				return errors.New("password must not be empty")
			}
			hash, err := auth.HashPassword(passwd)
			if err != nil {
				return err
			}

			user, err := store.Create(cmd.Context(), &users.User{
				Username:     name,
				PasswordHash: string(hash),
				Role:         role,
			})
			if errors.Is(err, users.ErrAlreadyExists) {
				return fmt.Errorf("user %q already exists", name)
			} else if err != nil {
				return err
			}

			logger.Info("created user",
				zap.String("name", user.Username),
				zap.String("role", user.Role),
				zap.Int64("id", user.ID),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", users.DefaultRole, "付与するロール（ROLE_ 接頭辞なし）")
	return cmd
}

func userDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "ユーザーを削除する",
		Long: "ユーザーを削除します。ログイン中のセッションは期限切れまで残ります。" +
			"この操作は取り消せません。",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (runErr error) {
			logger, db, store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					runErr = errors.Join(runErr, err)
				}
			}()

			name := args[0]
			logger = logger.With(zap.String("name", name))
			if !yes {
				resp, err := prompt(cmd.InOrStdin(), cmd.ErrOrStderr(), "Are you sure you want to delete this user? [y|N] ", false)
				if err != nil || !bytes.Equal(bytes.TrimSpace(resp), []byte{'y'}) {
					logger.Info("aborted user deletion")
					return err
				}
			}
			if err := store.Delete(cmd.Context(), name); errors.Is(err, users.ErrNotFound) {
				return fmt.Errorf("user %q not found", name)
			} else if err != nil {
				return err
			}
			logger.Info("user deleted")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "確認プロンプトを省略する")
	return cmd
}
