// Copyright 2020 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the leveled logger used throughout the CMP engine.
// Severities follow RFC 5424 (the set the CMP log-callback contract names):
// EMERG, ALERT, CRIT, ERROR, WARN, NOTE, INFO, DEBUG. Errors and warnings go
// to stderr by default, info/debug to stdout.
package log

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	Emerg Level = iota
	Alert
	Crit
	Error
	Warn
	Note
	Info
	Debug
)

func (l Level) zapLevel() zapcore.Level {
	switch {
	case l <= Error:
		return zapcore.ErrorLevel
	case l == Warn:
		return zapcore.WarnLevel
	case l == Note:
		return zapcore.InfoLevel
	case l == Info:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func ParseLevel(s string) Level {
	switch s {
	case "emerg":
		return Emerg
	case "alert":
		return Alert
	case "crit":
		return Crit
	case "error":
		return Error
	case "warn":
		return Warn
	case "note":
		return Note
	case "info":
		return Info
	case "debug":
		return Debug
	default:
		return Info
	}
}

// Callback is the external log-callback contract: (file, line, severity,
// message). A Context can be built around a Callback so application code
// retains full control of where CMP diagnostics end up.
type Callback func(file string, line int, severity Level, message string)

// ConsoleConfig configures the console (stderr/stdout) sink.
type ConsoleConfig struct {
	Level string
}

// Config mirrors a zap-backed leveled logger setup.
type Config struct {
	Console  ConsoleConfig
	Callback Callback
}

// Logger is the handle application and library code log through.
type Logger struct {
	zap *zap.SugaredLogger
	cb  Callback
	lvl Level
}

var root *Logger = New(Config{Console: ConsoleConfig{Level: "info"}})

// Setup (re)configures the process-wide root logger.
func Setup(cfg Config) {
	root = New(cfg)
}

// Root returns the process-wide logger.
func Root() *Logger { return root }

// New builds a standalone Logger; used by tests that want isolation from
// the process-wide root.
func New(cfg Config) *Logger {
	lvl := ParseLevel(cfg.Console.Level)
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	stdout := zapcore.Lock(zapcore.AddSync(os.Stdout))
	stderr := zapcore.Lock(zapcore.AddSync(os.Stderr))
	enc := zapcore.NewConsoleEncoder(encoderCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(enc, stderr, errorAndAbove(lvl)),
		zapcore.NewCore(enc, stdout, infoAndBelow(lvl)),
	)
	return &Logger{
		zap: zap.New(core).Sugar(),
		cb:  cfg.Callback,
		lvl: lvl,
	}
}

func errorAndAbove(min Level) zap.LevelEnablerFunc {
	return func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel && l.Enabled(min.zapLevel())
	}
}

func infoAndBelow(min Level) zap.LevelEnablerFunc {
	return func(l zapcore.Level) bool {
		return l < zapcore.WarnLevel && l.Enabled(min.zapLevel())
	}
}

func (l *Logger) log(sev Level, msg string, kv ...interface{}) {
	if l == nil {
		return
	}
	if l.cb != nil {
		l.cb("", 0, sev, fmt.Sprintf(msg, kv...))
	}
	switch {
	case sev <= Error:
		l.zap.Errorw(msg, kv...)
	case sev == Warn:
		l.zap.Warnw(msg, kv...)
	case sev == Note || sev == Info:
		l.zap.Infow(msg, kv...)
	default:
		l.zap.Debugw(msg, kv...)
	}
}

func (l *Logger) Error(msg string, kv ...interface{}) { l.log(Error, msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(Warn, msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(Info, msg, kv...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(Debug, msg, kv...) }

func Error(msg string, kv ...interface{}) { root.Error(msg, kv...) }
func Warn(msg string, kv ...interface{})  { root.Warn(msg, kv...) }
func Info(msg string, kv ...interface{})  { root.Info(msg, kv...) }
func Debug(msg string, kv ...interface{}) { root.Debug(msg, kv...) }

type ctxKey struct{}

// CtxWith attaches a logger to ctx, returning the derived context.
func CtxWith(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx returns the logger attached to ctx, or the root logger.
func FromCtx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return root
}
