package logging

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter wraps an io.Writer and adds a prefix to each complete line.
// It is also used to tag the output of child processes (compiler, built
// binary) when that output is forwarded to the terminal.
type PrefixWriter struct {
	mu     sync.Mutex
	prefix []byte
	writer io.Writer
	buffer bytes.Buffer
}

// NewPrefixWriter creates a new PrefixWriter.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{
		prefix: []byte(prefix),
		writer: w,
	}
}

// Write buffers p and emits every complete line with the prefix. A trailing
// partial line stays buffered until more data or Flush arrives.
func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.buffer.Write(p)
	for {
		idx := bytes.IndexByte(pw.buffer.Bytes(), '\n')
		if idx < 0 {
			break
		}
		if err := pw.emit(pw.buffer.Next(idx + 1)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any buffered partial line, prefixed and newline-terminated.
func (pw *PrefixWriter) Flush() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.buffer.Len() == 0 {
		return nil
	}
	line := append([]byte(nil), pw.buffer.Next(pw.buffer.Len())...)
	return pw.emit(append(line, '\n'))
}

func (pw *PrefixWriter) emit(line []byte) error {
	out := make([]byte, 0, len(pw.prefix)+len(line))
	out = append(out, pw.prefix...)
	out = append(out, line...)
	_, err := pw.writer.Write(out)
	return err
}
