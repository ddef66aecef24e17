// Package log provides the leveled, structured logger used across every
// command in this module. It is a trimmed adaptation of Gravwell's
// ingest/log package: the RFC5424 key/value field style and level
// discipline are kept, the indexer-relay and raw-mode facilities are not
// needed here and have been dropped.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

var levelNames = map[Level]string{
	OFF:      `OFF`,
	DEBUG:    `DEBUG`,
	INFO:     `INFO`,
	WARN:     `WARN`,
	ERROR:    `ERROR`,
	CRITICAL: `CRITICAL`,
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return `UNKNOWN`
}

func (l Level) Valid() bool {
	return l >= OFF && l <= CRITICAL
}

func LevelFromString(s string) (Level, error) {
	for lvl, name := range levelNames {
		if name == s {
			return lvl, nil
		}
	}
	return OFF, fmt.Errorf("invalid log level %q", s)
}

var ErrNotOpen = errors.New("logger is not open")

// KV builds a structured key/value field for a log call.
func KV(name string, value interface{}) rfc5424.SDParam {
	var v string
	switch x := value.(type) {
	case string:
		v = x
	default:
		v = fmt.Sprintf("%v", value)
	}
	return rfc5424.SDParam{Name: name, Value: v}
}

// KVErr is shorthand for KV("error", err).
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

// Logger is a small multi-writer, leveled logger. Every call is rendered
// as "TIMESTAMP LEVEL appname: msg key=value key=value" (the appname part
// only when one is set) and fanned out to all writers.
type Logger struct {
	mtx     sync.Mutex
	wtrs    []io.WriteCloser
	lvl     Level
	appname string
	hot     bool
}

func New(wtr io.WriteCloser) *Logger {
	return &Logger{
		wtrs: []io.WriteCloser{wtr},
		lvl:  INFO,
		hot:  true,
	}
}

func NewDiscard() *Logger {
	return New(discardCloser{})
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }

func (l *Logger) SetAppname(name string) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.appname = name
}

func (l *Logger) AddWriter(wtr io.WriteCloser) error {
	if wtr == nil {
		return errors.New("nil writer")
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.hot {
		return ErrNotOpen
	}
	l.wtrs = append(l.wtrs, wtr)
	return nil
}

func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	return l.SetLevel(lvl)
}

func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return fmt.Errorf("invalid log level %d", lvl)
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.lvl = lvl
	return nil
}

func (l *Logger) Close() (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.hot = false
	for _, w := range l.wtrs {
		if cerr := w.Close(); cerr != nil {
			err = cerr
		}
	}
	return
}

func (l *Logger) output(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if lvl < l.lvl || !l.hot {
		return
	}
	line := render(time.Now(), l.appname, lvl, msg, sds)
	for _, w := range l.wtrs {
		w.Write(line)
	}
}

func render(ts time.Time, appname string, lvl Level, msg string, sds []rfc5424.SDParam) []byte {
	b := []byte(fmt.Sprintf("%s %-8s", ts.Format(time.RFC3339), lvl))
	if appname != `` {
		b = append(b, []byte(fmt.Sprintf(" %s:", appname))...)
	}
	b = append(b, []byte(" "+msg)...)
	for _, sd := range sds {
		b = append(b, []byte(fmt.Sprintf(" %s=%s", sd.Name, sd.Value))...)
	}
	return append(b, '\n')
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) { l.output(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)  { l.output(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)  { l.output(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) { l.output(ERROR, msg, sds...) }

// Fatal logs at CRITICAL and terminates the process, for the
// startup-fatal error class (§7), such as unreadable model or feature
// files. No command checks broker reachability at startup.
func (l *Logger) Fatal(msg string, sds ...rfc5424.SDParam) {
	l.output(CRITICAL, msg, sds...)
	os.Exit(1)
}

func (l *Logger) FatalCode(code int, msg string, sds ...rfc5424.SDParam) {
	l.output(CRITICAL, msg, sds...)
	os.Exit(code)
}
