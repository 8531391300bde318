// Package logging configures the process logger.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"

	"phenodx/internal/config"
)

// New builds a logger from the logging config. Unknown levels fall back to
// info rather than failing startup.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
