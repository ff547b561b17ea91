package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = zap.NewNop()
var log = base.Sugar()

// Init 로거 초기화. env가 production이면 JSON 출력.
func Init(env, level string) {
	var zapConfig zap.Config

	if env == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(level))

	built, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}

	base = built
	log = built.Sugar()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// L 구조화 로거. 서비스 계층에 주입할 때 사용.
func L() *zap.Logger {
	return base
}

// Named 하위 컴포넌트용 로거
func Named(name string) *zap.Logger {
	return base.Named(name)
}

// Sync 로거 플러시
func Sync() {
	_ = base.Sync()
}

// Debug 디버그 로그
func Debug(msg string, keysAndValues ...interface{}) {
	log.Debugw(msg, keysAndValues...)
}

// Info 정보 로그
func Info(msg string, keysAndValues ...interface{}) {
	log.Infow(msg, keysAndValues...)
}

// Warn 경고 로그
func Warn(msg string, keysAndValues ...interface{}) {
	log.Warnw(msg, keysAndValues...)
}

// Error 에러 로그
func Error(msg string, keysAndValues ...interface{}) {
	log.Errorw(msg, keysAndValues...)
}

// Fatal 치명적 에러 로그 (프로그램 종료)
func Fatal(msg string, keysAndValues ...interface{}) {
	log.Fatalw(msg, keysAndValues...)
}
