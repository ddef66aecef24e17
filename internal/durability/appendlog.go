package durability

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
)

// appendLog is a line-flushed JSON-lines append log, adapted from
// ingest/entryWriter.go's buffered-writer-plus-explicit-flush discipline.
// Every write is followed by a Flush (and, if flushEach is set, an
// fsync) so a killed process loses at most the entry mid-write.
type appendLog struct {
	mtx       sync.Mutex
	f         *os.File
	w         *bufio.Writer
	enc       *json.Encoder
	flushEach bool
}

func newAppendLog(path string, flushEach bool) (*appendLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)
	return &appendLog{
		f:         f,
		w:         w,
		enc:       json.NewEncoder(w),
		flushEach: flushEach,
	}, nil
}

func (l *appendLog) WriteJSON(v interface{}) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.enc.Encode(v); err != nil {
		return err
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	if l.flushEach {
		return l.f.Sync()
	}
	return nil
}

func (l *appendLog) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
