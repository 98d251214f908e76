package whatsapp

import (
	"fmt"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// zeroLogger routes whatsmeow's printf-style logging into zerolog.
type zeroLogger struct {
	log zerolog.Logger
}

func newWALogger(log zerolog.Logger) waLog.Logger {
	return zeroLogger{log: log}
}

func (l zeroLogger) Warnf(msg string, args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprintf(msg, args...))
}

func (l zeroLogger) Errorf(msg string, args ...interface{}) {
	l.log.Error().Msg(fmt.Sprintf(msg, args...))
}

func (l zeroLogger) Infof(msg string, args ...interface{}) {
	l.log.Info().Msg(fmt.Sprintf(msg, args...))
}

func (l zeroLogger) Debugf(msg string, args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprintf(msg, args...))
}

func (l zeroLogger) Sub(module string) waLog.Logger {
	return zeroLogger{log: l.log.With().Str("module", module).Logger()}
}
