package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"log"
	"os"
	"strings"
)

// --------------------------------------------------------------------------
// Logger (dragonboat logger.ILogger)
// --------------------------------------------------------------------------

// kilnLogger writes leveled lines "LEVEL | package | message" to LogOutput
type kilnLogger struct {
	name  string
	level logger.LogLevel
	out   *log.Logger
}

var levelNames = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

func (l *kilnLogger) SetLevel(level logger.LogLevel) { l.level = level }

func (l *kilnLogger) Debugf(format string, args ...any)   { l.logf(logger.DEBUG, format, args...) }
func (l *kilnLogger) Infof(format string, args ...any)    { l.logf(logger.INFO, format, args...) }
func (l *kilnLogger) Warningf(format string, args ...any) { l.logf(logger.WARNING, format, args...) }
func (l *kilnLogger) Errorf(format string, args ...any)   { l.logf(logger.ERROR, format, args...) }

// Panicf logs at CRITICAL (regardless of the level) and panics
func (l *kilnLogger) Panicf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	l.out.Printf("%-5s | %-10s | %s", levelNames[logger.CRITICAL], l.name, message)
	panic(message)
}

func (l *kilnLogger) logf(level logger.LogLevel, format string, args ...any) {
	if level > l.level {
		return
	}
	l.out.Printf("%-5s | %-10s | %s", levelNames[level], l.name, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// LogOutput is the destination of every logger created by CreateLogger.
// Commands printing machine readable output to stdout redirect it to stderr.
var LogOutput io.Writer = os.Stdout

// CreateLogger implements the logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	return &kilnLogger{
		name:  pkgName,
		level: logger.INFO,
		out:   log.New(LogOutput, "", log.Ldate|log.Ltime),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// LoggerNames lists the named loggers of the module.
var LoggerNames = []string{"store", "relational", "migrate", "cmd"}

// InitLoggers installs the custom factory and sets the level of every named logger.
func InitLoggers(level string) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)
	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(logLevel)
	}
	return nil
}
