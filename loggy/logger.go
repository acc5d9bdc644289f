package loggy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var ECHO bool = false
var SILENT bool = false
var LogFolder string = "./logs/"
var MinLevel Level = LevelDebug

// Rotation settings consumed at logger creation. Changing them later only
// affects loggers not yet handed out.
var MaxSizeMB int = 10
var MaxBackups int = 5
var MaxAgeDays int = 28
var Compress bool = false

// Worker id 0 is the main goroutine; ingest workers log under their own
// ids so interleaved scans stay readable.
type Logger struct {
	sink io.Writer
	id   int
	app  string
}

var loggers = make(map[int]*Logger)
var loggersMu sync.Mutex
var app string

// Get returns the logger for a worker id, creating it on first use. The
// ingest pool calls this from every worker at once, so the registry is
// locked.
func Get(id int) *Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	l, ok := loggers[id]
	if !ok {
		l = NewLogger(id, app)
		loggers[id] = l
	}
	return l
}

func NewLogger(id int, app string) *Logger {

	if app == "" {
		app = "rt11m8"
	}

	os.MkdirAll(LogFolder, 0755)

	l := &Logger{
		id:  id,
		app: app,
		sink: &lumberjack.Logger{
			Filename:   filepath.Join(LogFolder, fmt.Sprintf("%s_%d.log", app, id)),
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
			MaxAge:     MaxAgeDays,
			Compress:   Compress,
		},
	}

	return l
}

func ts() string {
	t := time.Now()
	return fmt.Sprintf(
		"%.4d/%.2d/%.2d %.2d:%.2d:%.2d",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
	)
}

var designatorLevel = map[string]Level{
	"DEBUG": LevelDebug,
	"INFO ": LevelInfo,
	"WARN ": LevelWarn,
	"ERROR": LevelError,
}

func (l *Logger) llogf(format string, designator string, v ...interface{}) {

	if designatorLevel[designator] < MinLevel {
		return
	}

	format = ts() + " " + designator + " :: " + format

	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}

	line := fmt.Sprintf(format, v...)

	if !SILENT {
		l.sink.Write([]byte(line))
	}

	if ECHO {
		os.Stderr.WriteString(line)
	}

}

func (l *Logger) llog(designator string, v ...interface{}) {

	if designatorLevel[designator] < MinLevel {
		return
	}

	line := ts() + " " + designator + " :: "
	for _, vv := range v {
		line += fmt.Sprintf("%v ", vv)
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	if !SILENT {
		l.sink.Write([]byte(line))
	}

	if ECHO {
		os.Stderr.WriteString(line)
	}
}

func (l *Logger) Logf(format string, v ...interface{}) {
	l.llogf(format, "INFO ", v...)
}

func (l *Logger) Log(v ...interface{}) {
	l.llog("INFO ", v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.llogf(format, "WARN ", v...)
}

func (l *Logger) Warn(v ...interface{}) {
	l.llog("WARN ", v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.llogf(format, "ERROR", v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.llog("ERROR", v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.llogf(format, "DEBUG", v...)
}

func (l *Logger) Debug(v ...interface{}) {
	l.llog("DEBUG", v...)
}
