package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process-wide log output.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	outMu    sync.RWMutex
	outExtra io.Writer
	outLevel string
)

// Setup applies o to every logger created afterwards. When File is set,
// entries are also written to a rotating file. The returned closer releases
// the file.
func Setup(o Options) io.Closer {
	outMu.Lock()
	defer outMu.Unlock()
	outLevel = o.Level
	if o.File == "" {
		outExtra = nil
		return nopCloser{}
	}
	lj := &lumberjack.Logger{
		Filename:   o.File,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
	}
	outExtra = lj
	return lj
}

func output(console io.Writer) (io.Writer, string) {
	outMu.RLock()
	defer outMu.RUnlock()
	level := outLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if outExtra == nil {
		return console, level
	}
	return zerolog.MultiLevelWriter(console, outExtra), level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
