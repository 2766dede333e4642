package logger

import (
	"bytes"
	stdlog "log"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// NewStdLogger returns a standard library logger which forwards each line to
// the zerolog logger at warn level. It is used for http.Server.ErrorLog, which
// is where net/http reports per-connection failures such as TLS handshake errors.
func NewStdLogger(logger zerolog.Logger) *stdlog.Logger {
	return stdlog.New(&errorLogWriter{logger: logger}, "", 0)
}

type errorLogWriter struct {
	logger zerolog.Logger
}

func (w *errorLogWriter) Write(p []byte) (int, error) {
	w.logger.Warn().Str("component", "http").Msg(string(bytes.TrimRight(p, "\r\n")))
	return len(p), nil
}
