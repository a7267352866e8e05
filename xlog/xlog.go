package xlog

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Dir        string `toml:"dir" yaml:"dir"`                 // 日志目录, 空表示不写文件
	Name       string `toml:"name" yaml:"name"`               // 文件名, 默认进程名
	Level      string `toml:"level" yaml:"level"`             // debug/info/warn/error
	Console    bool   `toml:"console" yaml:"console"`         // 是否打印到控制台
	MaxSize    int    `toml:"max_size" yaml:"max_size"`       // 单个文件最大尺寸, 单位M
	MaxAge     int    `toml:"max_age" yaml:"max_age"`         // 文件最多保存多少天
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"` // 最多保存多少个备份
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Console:    true,
		MaxSize:    64,
		MaxAge:     14,
		MaxBackups: 2,
	}
}

var (
	mu     sync.RWMutex
	logger = newConsoleLogger(zapcore.InfoLevel)
	sugar  = logger.Sugar()
	hook   *lumberjack.Logger
)

func newConsoleLogger(lvl zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig()),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	return cfg
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "@timestamp",
		LevelKey:       "loglevel",
		CallerKey:      "caller",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,  // 小写编码器
		EncodeTime:     zapcore.RFC3339TimeEncoder,     // RFC3339 时间格式
		EncodeDuration: zapcore.SecondsDurationEncoder, //
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Init 按配置重建全局logger. 控制台和文件可以同时开
func Init(cfg Config) error {
	lvl := parseLevel(cfg.Level)
	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig()),
			zapcore.Lock(os.Stderr),
			lvl,
		))
	}
	var newHook *lumberjack.Logger
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0744); err != nil {
			return err
		}
		name := cfg.Name
		if name == "" {
			name = filepath.Base(os.Args[0])
		}
		newHook = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, name+".log"),
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig()),
			zapcore.AddSync(newHook),
			lvl,
		))
	}
	SetLogger(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)))

	mu.Lock()
	old := hook
	hook = newHook
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// SetLogger 替换全局logger. l需要带上 AddCallerSkip(1) 才能拿到正确的调用位置
func SetLogger(l *zap.Logger) {
	mu.Lock()
	logger = l
	sugar = l.Sugar()
	mu.Unlock()
}

// Logger 返回底层zap logger, 给需要结构化字段的地方用
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func get() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	return s
}

func Debug(v ...interface{}) {
	get().Debug(v...)
}

func Debugf(format string, v ...interface{}) {
	get().Debugf(format, v...)
}

func Info(v ...interface{}) {
	get().Info(v...)
}

func InfoF(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Warn(v ...interface{}) {
	get().Warn(v...)
}

func Warnf(format string, v ...interface{}) {
	get().Warnf(format, v...)
}

func Error(v ...interface{}) {
	get().Error(v...)
}

func Errorf(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

// ErrorfSkip 多跳过skip层调用栈, 用于封装过的打印函数
func ErrorfSkip(skip int, format string, v ...interface{}) {
	get().Desugar().WithOptions(zap.AddCallerSkip(skip)).Sugar().Errorf(format, v...)
}

func Sync() error {
	return Logger().Sync()
}

// Close 刷新并关闭文件
func Close() {
	_ = Sync()
	mu.Lock()
	h := hook
	hook = nil
	mu.Unlock()
	if h != nil {
		_ = h.Close()
	}
}
