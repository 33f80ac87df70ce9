package persist

import (
	"log"
	"os"

	"github.com/amjuarez/bytecoin-sub006/build"
)

// Logger wraps the standard library logger with STARTUP/SHUTDOWN framing
// and Severe/Critical severity helpers.
type Logger struct {
	*log.Logger
	verbose bool
}

// NewLogger returns a Logger that writes through w, stamping a STARTUP
// line immediately. Callers are expected to call Close (or otherwise log a
// SHUTDOWN line) when they are done, so that log files have a clear
// lifetime marker on both ends.
func NewLogger(w *os.File, appName string, verbose bool) *Logger {
	l := &Logger{
		Logger:  log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		verbose: verbose,
	}
	l.Println("STARTUP: " + appName + " logging started")
	return l
}

// FileLogger is a Logger backed by an on-disk file, closed via Close.
type FileLogger struct {
	*Logger
	file *os.File
}

// NewFileLogger creates a logger that logs to logFilename, creating the
// file (and any SHUTDOWN-terminated previous contents untouched) if it
// does not already exist.
func NewFileLogger(appName string, logFilename string, verbose bool) (*FileLogger, error) {
	logFile, err := os.OpenFile(logFilename, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		Logger: NewLogger(logFile, appName, verbose),
		file:   logFile,
	}, nil
}

// Debugln logs only when the logger was created in verbose mode.
func (l *Logger) Debugln(v ...interface{}) {
	if l.verbose {
		l.Println(v...)
	}
}

// Severe logs a recoverable-but-unexpected condition. Mirrors build.Severe
// so that logged invariant violations are visible both on stderr (via
// build.Severe, in DEBUG builds as a panic) and in the persistent log.
func (l *Logger) Severe(v ...interface{}) {
	l.Println(append([]interface{}{"SEVERE:"}, v...)...)
	build.Severe(v...)
}

// Critical logs then panics; used for conditions that should be
// impossible to reach regardless of build type.
func (l *Logger) Critical(v ...interface{}) {
	l.Println(append([]interface{}{"CRITICAL:"}, v...)...)
	panic("CRITICAL: " + (log.Logger{}).Prefix() + fmtJoin(v))
}

func fmtJoin(v []interface{}) string {
	s := ""
	for i, x := range v {
		if i > 0 {
			s += " "
		}
		if str, ok := x.(string); ok {
			s += str
		} else {
			s += "?"
		}
	}
	return s
}

// Close writes a SHUTDOWN line and closes the underlying file.
func (fl *FileLogger) Close() error {
	fl.Println("SHUTDOWN: logging has terminated")
	return fl.file.Close()
}
