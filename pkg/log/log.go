// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	sugar  *zap.SugaredLogger
)

func init() {
	// stdout logger until NewLog is called with the real configuration
	l := zap.New(wrapCoreWithTrace(zapcore.NewCore(getEncoder(), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)),
		zap.AddCallerSkip(1), zap.AddCaller())
	logger = l
	sugar = l.Sugar()
}

// ProviderSet is the Wire provider set for the log package.
var ProviderSet = wire.NewSet(ProvideLogger)

// ProvideLogger builds the process logger from configuration.
func ProvideLogger(conf *Conf) (*Logger, error) {
	zapLogger, err := NewLog(conf)
	if err != nil {
		return nil, err
	}
	return &Logger{Log: zapLogger.Sugar()}, nil
}

// Conf holds logging configuration.
type Conf struct {
	Output     string `mapstructure:"output"`
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	Level      string `mapstructure:"level"`
	KeepHours  int    `mapstructure:"keepHours"`
	RotateSize int    `mapstructure:"rotateSize"` // MB
	RotateNum  int    `mapstructure:"rotateNum"`
}

// SetDefaults returns the default configuration.
func SetDefaults() *Conf {
	return &Conf{
		Output:     "stdout",
		Path:       "./logs",
		Filename:   "orchestrator.log",
		Level:      "INFO",
		KeepHours:  7,
		RotateSize: 100,
		RotateNum:  10,
	}
}

// Validate checks the configuration and fills rotation defaults for file output.
func (c *Conf) Validate() error {
	if c.Output == "file" {
		if c.Path == "" {
			return fmt.Errorf("log path is required when output is 'file'")
		}
		if c.RotateSize <= 0 {
			c.RotateSize = 100
		}
		if c.RotateNum <= 0 {
			c.RotateNum = 10
		}
		if c.KeepHours <= 0 {
			c.KeepHours = 7
		}
	}
	return nil
}

type Logger struct {
	Log *zap.SugaredLogger
}

// NewLog initializes the global logger and returns it.
func NewLog(conf *Conf) (*zap.Logger, error) {
	if conf == nil {
		conf = SetDefaults()
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}

	var writeSyncer zapcore.WriteSyncer
	switch conf.Output {
	case "file":
		writeSyncer = getFileLogWriter(conf)
	default:
		writeSyncer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(getEncoder(), writeSyncer, parseLogLevel(conf.Level))
	core = wrapCoreWithTrace(core)

	newLogger := zap.New(core, zap.AddCallerSkip(1), zap.AddCaller())

	mu.Lock()
	logger = newLogger
	sugar = newLogger.Sugar()
	mu.Unlock()

	newLogger.Sugar().Debugw("log initialized",
		"output", conf.Output,
		"level", conf.Level,
	)

	return newLogger, nil
}

// MustInit initializes the global logger and panics on failure.
func MustInit(conf *Conf) {
	if _, err := NewLog(conf); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
}

// GetLogger returns the global sugared logger.
func GetLogger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewDevelopmentEncoderConfig()

	encoderConfig.TimeKey = "time"
	encoderConfig.LevelKey = "level"
	encoderConfig.NameKey = "logger"
	encoderConfig.CallerKey = "caller"
	encoderConfig.MessageKey = "msg"
	encoderConfig.StacktraceKey = "stacktrace"
	encoderConfig.LineEnding = zapcore.DefaultLineEnding
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = customTimeEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeName = zapcore.FullNameEncoder

	return zapcore.NewConsoleEncoder(encoderConfig)
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

// parseLogLevel converts a case-insensitive level name, defaulting to INFO.
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
