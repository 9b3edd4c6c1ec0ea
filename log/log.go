package log

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger atomic.Pointer[zap.Logger]
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	logger.Store(build(false))
}

func build(dev bool) *zap.Logger {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = level
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// 初始化全局日志，levelName为debug/info/warn/error，dev为true时输出开发格式
func Init(levelName string, dev bool) (err error) {
	if levelName != "" {
		if err = level.UnmarshalText([]byte(levelName)); err != nil {
			return
		}
	}
	logger.Store(build(dev))
	return
}

// 替换全局日志（测试中可传入zaptest/observer生成的logger）
func Replace(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.WithOptions(zap.AddCallerSkip(1)))
}

func L() *zap.Logger {
	return logger.Load()
}

func Debug(msg string, fields ...zap.Field) {
	logger.Load().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	logger.Load().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	logger.Load().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	logger.Load().Error(msg, fields...)
}

func Sync() error {
	return logger.Load().Sync()
}
