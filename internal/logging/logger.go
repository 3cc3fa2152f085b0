// Package logging sets up the process-wide structured logger: logrus with
// a nested formatter for field-nested console output and daily-rotated
// file output.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

var (
	std     = logrus.New()
	initMu  sync.Mutex
	didInit bool
)

// Config controls log level, console/file output, and rotation.
type Config struct {
	Level      string // debug|info|warn|error
	ToConsole  bool
	ToFile     bool
	FilePath   string // rotation pattern base, e.g. "./logs/voiceagent.log"
	MaxAgeDays int
}

func init() {
	std.SetFormatter(&formatter.Formatter{
		TimestampFormat: time.RFC3339,
		HideKeys:        true,
		FieldsOrder:     []string{"guild", "channel", "component"},
	})
	std.SetOutput(os.Stdout)
	std.SetLevel(logrus.InfoLevel)
}

// Init configures the shared logger. Safe to call once at process startup;
// subsequent calls are no-ops.
func Init(cfg Config) error {
	initMu.Lock()
	defer initMu.Unlock()
	if didInit {
		return nil
	}
	didInit = true

	if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
		std.SetLevel(lvl)
	}

	var writers []io.Writer
	if cfg.ToConsole || !cfg.ToFile {
		writers = append(writers, os.Stdout)
	}
	if cfg.ToFile && cfg.FilePath != "" {
		maxAge := time.Duration(cfg.MaxAgeDays) * 24 * time.Hour
		if maxAge <= 0 {
			maxAge = 7 * 24 * time.Hour
		}
		rl, err := rotatelogs.New(
			cfg.FilePath+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.FilePath),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return err
		}
		writers = append(writers, rl)
	}
	if len(writers) == 1 {
		std.SetOutput(writers[0])
	} else if len(writers) > 1 {
		std.SetOutput(io.MultiWriter(writers...))
	}
	return nil
}

// For returns a logger scoped to a component, carrying structured fields
// (e.g. guild/channel id) through the rest of its call chain.
func For(component string) *logrus.Entry {
	return std.WithField("component", component)
}

// L is the raw shared logger, for callers that don't need a component scope.
func L() *logrus.Logger { return std }
