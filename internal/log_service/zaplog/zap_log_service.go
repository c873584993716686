package zaplog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AnishMulay/ravenfs/internal/log_service"
)

// ZapLogService forwards events to a sugared zap logger, flattening
// LogEvent.Metadata into key/value pairs.
type ZapLogService struct {
	logger *zap.SugaredLogger
}

func NewZapLogService(logger *zap.Logger, nodeID string) *ZapLogService {
	return &ZapLogService{
		logger: logger.Named(nodeID).Sugar(),
	}
}

// NewProductionLogService builds a stderr logger at the given level.
// Console encoding is used when json is false.
func NewProductionLogService(nodeID, level string, json bool) (*ZapLogService, error) {
	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogService(logger, nodeID), nil
}

// NewNopLogService discards everything.
func NewNopLogService() *ZapLogService {
	return NewZapLogService(zap.NewNop(), "nop")
}

func toZapLevel(level string) zapcore.Level {
	switch log_service.GetLevelValue(level) {
	case log_service.DebugLevelValue:
		return zapcore.DebugLevel
	case log_service.WarnLevelValue:
		return zapcore.WarnLevel
	case log_service.ErrorLevelValue:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func keysAndValues(event log_service.LogEvent) []any {
	kv := make([]any, 0, len(event.Metadata)*2)
	for k, v := range event.Metadata {
		kv = append(kv, k, v)
	}
	return kv
}

func (z *ZapLogService) Debug(event log_service.LogEvent) {
	z.logger.Debugw(event.Message, keysAndValues(event)...)
}

func (z *ZapLogService) Info(event log_service.LogEvent) {
	z.logger.Infow(event.Message, keysAndValues(event)...)
}

func (z *ZapLogService) Warn(event log_service.LogEvent) {
	z.logger.Warnw(event.Message, keysAndValues(event)...)
}

func (z *ZapLogService) Error(event log_service.LogEvent) {
	z.logger.Errorw(event.Message, keysAndValues(event)...)
}

func (z *ZapLogService) Sync() error {
	return z.logger.Sync()
}

var _ log_service.LogService = (*ZapLogService)(nil)
