package utils

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level        string `json:"level" yaml:"level"`
	Format       string `json:"format" yaml:"format"`
	FileLocation string `json:"file_location" yaml:"file_location"`
	MaxSize      int    `json:"max_size" yaml:"max_size"`
	MaxBackups   int    `json:"max_backups" yaml:"max_backups"`
	MaxAge       int    `json:"max_age" yaml:"max_age"`
	Compress     bool   `json:"compress" yaml:"compress"`
	Quiet        bool   `json:"quiet" yaml:"quiet"`
}

type Logger struct {
	*logrus.Logger
	config   LogConfig
	mu       sync.Mutex
	fileSink io.WriteCloser
}

// NewLogger builds a logrus logger writing to the console and, when a file
// location is configured, to a rotating file.
func NewLogger(config LogConfig, service, version string) (*Logger, error) {
	l := &Logger{
		Logger: logrus.New(),
		config: normalizeLogConfig(config),
	}

	level, err := logrus.ParseLevel(l.config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if l.config.Quiet && level > logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	l.SetLevel(level)

	switch l.config.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "15:04:05",
			FullTimestamp:   true,
		})
	}

	if err := l.setOutput(); err != nil {
		return nil, err
	}

	if l.config.Level == "debug" || l.config.Level == "trace" {
		l.AddHook(&CallerHook{})
	}
	l.AddHook(&ServiceHook{Service: service, Version: version})

	return l, nil
}

func normalizeLogConfig(c LogConfig) LogConfig {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if c.Level == "" {
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = "text"
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 50
	}
	return c
}

func (l *Logger) setOutput() error {
	writers := []io.Writer{os.Stderr}

	if l.config.FileLocation != "" {
		if err := os.MkdirAll(filepath.Dir(l.config.FileLocation), 0o755); err != nil {
			return err
		}
		lj := &lumberjack.Logger{
			Filename:   l.config.FileLocation,
			MaxSize:    l.config.MaxSize,
			MaxBackups: maxInt(0, l.config.MaxBackups),
			MaxAge:     maxInt(0, l.config.MaxAge),
			Compress:   l.config.Compress,
		}
		l.fileSink = lj
		writers = append(writers, lj)
		if tf, ok := l.Formatter.(*logrus.TextFormatter); ok {
			tf.DisableColors = true
		}
	}

	l.SetOutput(io.MultiWriter(writers...))
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileSink != nil {
		return l.fileSink.Close()
	}
	return nil
}

type CallerHook struct{}

func (h *CallerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *CallerHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["caller"]; ok {
		return nil
	}
	for i := 4; i < 30; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fnName := ""
		if fn := runtime.FuncForPC(pc); fn != nil {
			fnName = fn.Name()
		}
		if strings.Contains(file, "/sirupsen/logrus") || strings.Contains(file, "/pkg/utils/logger.go") {
			continue
		}
		entry.Data["caller"] = filepath.Base(file) + ":" + strconv.Itoa(line) + " " + shortFunc(fnName)
		break
	}
	return nil
}

func shortFunc(full string) string {
	if idx := strings.LastIndex(full, "/"); idx >= 0 && idx+1 < len(full) {
		return full[idx+1:]
	}
	return full
}

type ServiceHook struct {
	Service string
	Version string
}

func (h *ServiceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *ServiceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.Service
	if h.Version != "" {
		entry.Data["version"] = h.Version
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
