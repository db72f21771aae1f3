package logger

import (
	"go.uber.org/zap"

	"github.com/aihub/media-engine/internal/interfaces"
)

// ZapLogger 将zap适配为LoggerInterface
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger 创建Logger适配器
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = GetLogger()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

// NewNopLogger 创建空日志器（测试用）
func NewNopLogger() *ZapLogger {
	return &ZapLogger{sugar: zap.NewNop().Sugar()}
}

func (z *ZapLogger) Debug(msg string, fields ...interface{}) {
	z.sugar.Debugw(msg, fields...)
}

func (z *ZapLogger) Info(msg string, fields ...interface{}) {
	z.sugar.Infow(msg, fields...)
}

func (z *ZapLogger) Warn(msg string, fields ...interface{}) {
	z.sugar.Warnw(msg, fields...)
}

func (z *ZapLogger) Error(msg string, fields ...interface{}) {
	z.sugar.Errorw(msg, fields...)
}

func (z *ZapLogger) Fatal(msg string, fields ...interface{}) {
	z.sugar.Fatalw(msg, fields...)
}

func (z *ZapLogger) With(fields ...interface{}) interfaces.LoggerInterface {
	return &ZapLogger{sugar: z.sugar.With(fields...)}
}

func (z *ZapLogger) WithError(err error) interfaces.LoggerInterface {
	return &ZapLogger{sugar: z.sugar.With("error", err)}
}
