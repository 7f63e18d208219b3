// Package logging builds the structured logger every binary in this
// repo uses, with file-redirect and per-component fields in place of
// the standard library's bare log.Println.
package logging

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New builds a *logrus.Logger writing to logPath if non-empty (opened
// append-or-create) or to stderr otherwise. The returned closer closes
// the opened file, and is a no-op when logPath is empty; callers defer
// it.
func New(logPath string) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)

	if logPath == "" {
		return logger, func() error { return nil }, nil
	}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "logging: open log file %s", logPath)
	}
	logger.SetOutput(f)

	return logger, f.Close, nil
}

// Entry returns a *logrus.Entry carrying the component field, the unit
// every call site logs through so every line is taggable by endpoint.
func Entry(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
