// Package logging builds the application logger: console plus a
// size-rotated log file, mirroring the hosts where the agent runs unattended
// for months.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	rotateMaxSizeMB  = 5
	rotateMaxBackups = 5
	rotateMaxAgeDays = 30
)

// Options selects the log destination and verbosity.
type Options struct {
	// File is the rotated log file path; empty disables file output.
	File string
	// Level is a logrus level name; invalid or empty falls back to info.
	Level string
	// Console mirrors log output to stdout.
	Console bool
}

// New constructs the process-wide logger.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	var outputs []io.Writer
	if opts.Console {
		outputs = append(outputs, os.Stdout)
	}
	if opts.File != "" {
		outputs = append(outputs, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    rotateMaxSizeMB,
			MaxBackups: rotateMaxBackups,
			MaxAge:     rotateMaxAgeDays,
			LocalTime:  true,
		})
	}
	switch len(outputs) {
	case 0:
		log.SetOutput(os.Stdout)
	case 1:
		log.SetOutput(outputs[0])
	default:
		log.SetOutput(io.MultiWriter(outputs...))
	}

	return log
}
