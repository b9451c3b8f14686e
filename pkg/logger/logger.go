// Package logger builds the process-wide zap logger and hands out named,
// sugared children so components log with key/value pairs.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	mu   sync.Mutex
	root *zap.Logger
)

func New() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = level
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.LevelKey = "level"

	return config.Build()
}

// SetLevel changes the level of every logger handed out so far.
func SetLevel(text string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(text)); err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// Replace swaps the root logger, mostly for tests.
func Replace(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}

func Named(name string) (*zap.SugaredLogger, error) {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		l, err := New()
		if err != nil {
			return nil, err
		}
		root = l
	}
	return root.Named(name).Sugar(), nil
}

func MustNamed(name string) *zap.SugaredLogger {
	l, err := Named(name)
	if err != nil {
		panic(err)
	}
	return l
}

func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
}
