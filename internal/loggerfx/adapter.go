package loggerfx

import (
	"log"

	"github.com/sirupsen/logrus"
)

// DefaultLoggerAdapter is a stdlib logger for components which require one,
// e.g. http.Server.ErrorLog. Its output goes to logrus at error level.
func DefaultLoggerAdapter(logger *logrus.Logger) *log.Logger {
	return log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0)
}
