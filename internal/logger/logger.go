// Package logger holds the process wide logrus logger so library packages and
// the command share one configuration.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log = newLogger(os.Stderr, logrus.InfoLevel)
)

// Options configures Setup.
type Options struct {
	// Level is parsed with logrus.ParseLevel, info when invalid.
	Level string
	// Dir receives one log file per day when set.
	Dir string
	// Terminal also writes to stdout.
	Terminal bool
}

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetOutput(w)
	l.SetLevel(level)
	return l
}

// Setup replaces the default logger. It returns the daily log file, if any,
// so the caller can close it on exit.
func Setup(opts Options) (*logrus.Logger, io.Closer, error) {
	var (
		writers []io.Writer
		closer  io.Closer
	)
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
			return nil, nil, err
		}
		filename := filepath.Join(opts.Dir, time.Now().Format("2006-01-02.log"))
		file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, file)
		closer = file
	}
	if opts.Terminal || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l := newLogger(ansicolor.NewAnsiColorWriter(io.MultiWriter(writers...)), level)

	mu.Lock()
	log = l
	mu.Unlock()
	return l, closer, nil
}

// L returns the current logger.
func L() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Discard silences the logger, used by tests.
func Discard() {
	mu.Lock()
	log = newLogger(io.Discard, logrus.PanicLevel)
	mu.Unlock()
}
