package harness

import (
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/encodeous/tint"
	"github.com/encodeous/trustmesh/state"
	slogmulti "github.com/samber/slog-multi"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the console logger for a scenario, mirrored to cfg.LogPath when set.
// The returned closer releases the log file.
func NewLogger(cfg *state.SimCfg, level slog.Level) (*slog.Logger, io.Closer, error) {
	return newLogger(os.Stderr, cfg, level)
}

func newLogger(console io.Writer, cfg *state.SimCfg, level slog.Level) (*slog.Logger, io.Closer, error) {
	var closer io.Closer = nopCloser{}
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers, tint.NewHandler(console, &tint.Options{
		Level:        level,
		AddSource:    false,
		CustomPrefix: cfg.Name,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == "time" {
				return slog.Attr{}
			}
			return attr
		},
	}))

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		closer = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{
			Level: level,
		}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}
