package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOption 日志初始化参数
type LogOption struct {
	Format   string // "console" 或 "json"
	LogDir   string // 日志目录，为空时只输出到 stdout
	Level    string // debug / info / warn / error
	Compress bool   // 是否压缩轮转后的旧日志
}

const (
	logFileName   = "txlog.log"
	maxSizeMB     = 512
	maxBackups    = 20
	maxAgeDays    = 7
	defaultFormat = "console"
)

var (
	current atomic.Pointer[zap.Logger]
	sugar   atomic.Pointer[zap.SugaredLogger]
)

func init() {
	SetLogger(zap.NewNop())
}

// Init 根据 LogOption 构建全局 zap logger：stdout + 可选的 lumberjack 轮转文件
func Init(opt LogOption) error {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(opt.Level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opt.Level, err)
	}

	encoder := newEncoder(opt.Format)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if opt.LogDir != "" {
		if err := os.MkdirAll(opt.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log dir %s: %w", opt.LogDir, err)
		}
		rotate := &lumberjack.Logger{
			Filename:   filepath.Join(opt.LogDir, logFileName),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   opt.Compress,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotate), level))
	}

	SetLogger(zap.New(zapcore.NewTee(cores...), zap.AddCaller()))
	return nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "" {
		format = defaultFormat
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// SetLogger 替换全局 logger（测试中注入 observer 使用）
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
	sugar.Store(l.WithOptions(zap.AddCallerSkip(1)).Sugar())
}

// L 返回全局 logger
func L() *zap.Logger {
	return current.Load()
}

func Sync() {
	_ = L().Sync()
}

func Debugf(format string, args ...any) {
	sugar.Load().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	sugar.Load().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	sugar.Load().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	sugar.Load().Errorf(format, args...)
}
