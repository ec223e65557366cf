package badger

import (
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLogger routes Badger's printf-style logs into zap under a "badger" component field.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*badgerLogger)(nil)

func newBadgerLogger(logger *zap.Logger) *badgerLogger {
	return &badgerLogger{sugar: logger.With(zap.String("component", "badger")).Sugar()}
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.sugar.Errorf(strings.TrimRight(format, "\n"), args...)
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.sugar.Warnf(strings.TrimRight(format, "\n"), args...)
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.sugar.Debugf(strings.TrimRight(format, "\n"), args...)
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.sugar.Debugf(strings.TrimRight(format, "\n"), args...)
}
