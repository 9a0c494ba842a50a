package config

import (
	"os"

	"github.com/mpapenbr/racestrategy-service-go/log"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger according to LogFormat, LogLevel and
// LogFilter and installs it as default logger.
func SetupLogger() error {
	var logger *log.Logger
	switch LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			ParseLogLevel(LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if LogFilter != "" {
		filtered, err := logger.WithFilter(LogFilter)
		if err != nil {
			return err
		}
		logger = filtered
	}
	log.ResetDefault(logger)
	return nil
}
