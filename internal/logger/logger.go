// Package logger is the process-wide structured logger
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/labmate/labmate/internal/constants"
)

var log = logrus.New()

// Fields is a set of structured log fields
type Fields = map[string]interface{}

// InitializeAndConfigure sets up the logger with the JSON formatter on stderr
// and the level from LOG_LEVEL. Stdout is left to command output.
func InitializeAndConfigure() {
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stderr)
	configureLogLevel(os.Getenv(constants.EnvLogLevel))
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetLevel parses and applies a level, keeping the current one when invalid
func SetLevel(levelStr string) {
	configureLogLevel(levelStr)
}

func configureLogLevel(levelStr string) {
	log.SetLevel(logrus.InfoLevel)

	if levelStr == "" {
		return
	}

	level, err := logrus.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info'", levelStr)
		return
	}

	log.SetLevel(level)
	log.Debugf("Log level set to '%s'", level)
}

//Logrus has seven logging levels: Trace, Debug, Info, Warning, Error, Fatal and Panic.

// Trace logs a message at the Trace level
func Trace(args ...interface{}) {
	log.Trace(args...)
}

// Debug logs a message at the debug level
func Debug(args ...interface{}) {
	log.Debug(args...)
}

// Info logs a message at the Info level
func Info(args ...interface{}) {
	log.Info(args...)
}

// Warn logs a message at the Warn level
func Warn(args ...interface{}) {
	log.Warn(args...)
}

// Error logs a message at the Error level
func Error(args ...interface{}) {
	log.Error(args...)
}

// Fatal logs a message at the Fatal level
func Fatal(args ...interface{}) {
	log.Fatal(args...)
}

// Panic logs a message at the Panic level
func Panic(args ...interface{}) {
	log.Panic(args...)
}

// Formatted Logs
//

// Tracef logs a message at the TraceF level
func Tracef(format string, args ...interface{}) {
	log.Tracef(format, args...)
}

// Debugf logs a message at the Debugf level
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Infof logs a message at the Infof level
func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Warnf logs a message at the Warnf level
func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Errorf logs a message at the Errorf level
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Fatalf logs a message at the Fatalf level
func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// Panicf logs a message at the Panicf level
func Panicf(format string, args ...interface{}) {
	log.Panicf(format, args...)
}

// Log levels with fields

// InfoWithFields logs a message at the info level with additional fields
func InfoWithFields(msg string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Info(msg)
}

// DebugWithFields logs a message at the debug level with additional fields
func DebugWithFields(msg string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Debug(msg)
}

// WarnWithFields logs a message at the warn level with additional fields
func WarnWithFields(msg string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Warn(msg)
}

// ErrorWithFields logs a message at the error level with additional fields
func ErrorWithFields(msg string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Error(msg)
}

// FatalWithFields logs a message at the fatal level with additional fields
func FatalWithFields(msg string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Fatal(msg)
}

// PanicWithFields logs a message at the panic level with additional fields
func PanicWithFields(msg string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Panic(msg)
}

// TraceWithFields logs a message at the trace level with additional fields
func TraceWithFields(msg string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Trace(msg)
}
