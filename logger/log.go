// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spirit-labs/streamflow/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lock     sync.Mutex
	level    = zapcore.InfoLevel
	encoding = "console"
	global   atomic.Pointer[zap.SugaredLogger]
	named    = map[string]*Logger{}
)

// DebugEnabled is set when the global logger is configured. Callers check it before building expensive debug
// lines.
var DebugEnabled = false

func init() {
	Initialise(zapcore.InfoLevel, "console")
}

type Config struct {
	Format string `help:"Format to write log lines in" enum:"console,json" default:"console"`
	Level  string `help:"Lowest log level that will be emitted" enum:"debug,info,warn,error" default:"info"`
}

func (cfg *Config) Configure() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return errors.WithStack(err)
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format != "console" && format != "json" {
		return errors.New("log-format must be one of 'console' or 'json'")
	}
	Initialise(lvl, format)
	return nil
}

// Initialise replaces the global logger. Named loggers are rebuilt with the new encoding, and with the new level
// unless they were given their own.
func Initialise(lvl zapcore.Level, enc string) {
	lock.Lock()
	defer lock.Unlock()
	level, encoding = lvl, enc
	global.Store(newZapLogger(lvl, enc).Sugar())
	DebugEnabled = lvl.Enabled(zapcore.DebugLevel)
	for _, l := range named {
		l.rebuild()
	}
}

func newZapLogger(lvl zapcore.Level, enc string) *zap.Logger {
	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: enc,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			MessageKey:     "M",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     timeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeName:     zapcore.FullNameEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stdout"},
		DisableCaller:     true,
		DisableStacktrace: true,
	}
	l, err := cfg.Build()
	if err != nil {
		// only reachable with an encoding Configure rejects
		return zap.NewNop()
	}
	return l
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.999999"))
}

// Logger tags its lines with the name of the component writing them.
type Logger struct {
	name  string
	level *zapcore.Level
	log   atomic.Pointer[zap.SugaredLogger]
}

// GetLogger returns the logger of a component, at the global level.
func GetLogger(name string) *Logger {
	return getLogger(name, nil)
}

// GetLoggerWithLevel returns the logger of a component at its own level. A logger which already exists keeps
// the level it was created with.
func GetLoggerWithLevel(name string, lvl zapcore.Level) *Logger {
	return getLogger(name, &lvl)
}

func getLogger(name string, lvl *zapcore.Level) *Logger {
	lock.Lock()
	defer lock.Unlock()
	if l, ok := named[name]; ok {
		return l
	}
	l := &Logger{name: name, level: lvl}
	l.rebuild()
	named[name] = l
	return l
}

// rebuild must be called with lock held.
func (l *Logger) rebuild() {
	lvl := level
	if l.level != nil {
		lvl = *l.level
	}
	l.log.Store(newZapLogger(lvl, encoding).Named(l.name).Sugar())
}

func (l *Logger) Name() string {
	return l.name
}

// Enabled reports whether lines at lvl are written.
func (l *Logger) Enabled(lvl zapcore.Level) bool {
	return l.log.Load().Desugar().Core().Enabled(lvl)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log.Load().Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log.Load().Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log.Load().Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log.Load().Errorf(format, args...)
}

func Info(args ...interface{}) {
	global.Load().Info(args...)
}

func Infof(format string, args ...interface{}) {
	global.Load().Infof(format, args...)
}

func Debug(args ...interface{}) {
	if DebugEnabled {
		global.Load().Debug(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if DebugEnabled {
		global.Load().Debugf(format, args...)
	}
}

func Warn(args ...interface{}) {
	global.Load().Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	global.Load().Warnf(format, args...)
}

func Error(args ...interface{}) {
	global.Load().Error(args...)
}

func Errorf(format string, args ...interface{}) {
	global.Load().Errorf(format, args...)
}

func Fatal(args ...interface{}) {
	global.Load().Fatal(args...)
}

func Fatalf(format string, args ...interface{}) {
	global.Load().Fatalf(format, args...)
}
