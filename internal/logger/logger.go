package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	// Debug flag to control debug logging
	debugEnabled = false

	mu          sync.RWMutex
	out         io.Writer = os.Stdout
	errOut      io.Writer = os.Stderr
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
)

func init() {
	setup()
}

// Init initializes the logger
func Init(debug bool) {
	mu.Lock()
	debugEnabled = debug
	mu.Unlock()

	setup()

	if debug {
		Debug("Debug logging enabled")
	}
}

// SetOutput redirects all levels to w. It survives later Init calls.
func SetOutput(w io.Writer) {
	mu.Lock()
	out, errOut = w, w
	mu.Unlock()
	setup()
}

func setup() {
	mu.Lock()
	defer mu.Unlock()
	debugLogger = log.New(out, tag(color.FgCyan, "DEBUG"), log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger = log.New(out, tag(color.FgGreen, "INFO"), log.Ldate|log.Ltime)
	warnLogger = log.New(errOut, tag(color.FgYellow, "WARN"), log.Ldate|log.Ltime)
	errorLogger = log.New(errOut, tag(color.FgRed, "ERROR"), log.Ldate|log.Ltime|log.Lshortfile)
}

// tag renders a level prefix; fatih/color drops the escapes when stdout is not a TTY.
func tag(attr color.Attribute, level string) string {
	return color.New(attr, color.Bold).Sprint(level) + ": "
}

func output(depth int, l **log.Logger, format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	(*l).Output(depth, fmt.Sprintf(format, v...))
}

// Debug logs a debug message if debug mode is enabled
func Debug(format string, v ...interface{}) {
	if IsDebugEnabled() {
		output(3, &debugLogger, format, v...)
	}
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	output(3, &infoLogger, format, v...)
}

// Warn logs a warning
func Warn(format string, v ...interface{}) {
	output(3, &warnLogger, format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	output(3, &errorLogger, format, v...)
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugEnabled
}

// ParseLevel maps a LOG_LEVEL value onto the debug switch.
func ParseLevel(level string) bool {
	return strings.EqualFold(strings.TrimSpace(level), "debug")
}
