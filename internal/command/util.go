package command

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/users"
)

// prompt は端末のときだけプロンプトを表示し、1行読み取ります。
// mask が true かつ端末の場合はエコーせずに読み取ります。
func prompt(in io.Reader, errOut io.Writer, message string, mask bool) ([]byte, error) {
	f, isFile := in.(*os.File)
	tty := isFile && term.IsTerminal(int(f.Fd()))
	if tty {
		if _, err := io.WriteString(errOut, message); err != nil {
			return nil, err
		}
	}
	if mask && tty {
		line, err := term.ReadPassword(int(f.Fd()))
		_, _ = io.WriteString(errOut, "\n")
		return line, err
	}
	return readLine(in)
}

// readLine は改行までを1バイトずつ読みます。後続の入力を読み過ぎないようバッファリングしません。
func readLine(in io.Reader) ([]byte, error) {
	var buf [1]byte
	var ret []byte

	for {
		n, err := in.Read(buf[:])
		if n > 0 {
			switch buf[0] {
			case '\b':
				if len(ret) > 0 {
					ret = ret[:len(ret)-1]
				}
			case '\n':
				return ret, nil
			case '\r':
				// CRLF の CR は捨てる
			default:
				ret = append(ret, buf[0])
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(ret) > 0 {
				return ret, nil
			}
			return ret, err
		}
	}
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown-dev"
	}
	ver := "unknown"
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			ver = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if dirty {
		ver += "-dev"
	}
	return ver
}

// openStore は PersistentPreRunE で積んだ設定からユーザーDBを開きます。
func openStore(ctx context.Context) (*zap.Logger, *sql.DB, *users.SQLStore, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok {
		return nil, nil, nil, errors.New("configuration resolution failed")
	}
	logger, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok {
		logger = zap.NewNop()
	}
	db, dialect, err := users.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return logger, db, users.NewSQLStore(db, dialect), nil
}
