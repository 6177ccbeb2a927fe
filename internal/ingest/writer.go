package ingest

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"testlab/internal/db"
	"testlab/internal/testlab"
)

// Writer produces the JSONL export format the Importer reads. Runners use
// it to record results and events while a match is played.
type Writer struct {
	mu sync.Mutex

	file  *os.File
	gz    *gzip.Writer
	buf   *bufio.Writer
	lines int
}

// Create opens path for writing, gzip-compressed when it ends in .gz
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := &Writer{file: file}
	var dst io.Writer = file
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(file)
		dst = w.gz
	}
	w.buf = bufio.NewWriterSize(dst, 64*1024)
	return w, nil
}

// WriteResult appends a result line
func (w *Writer) WriteResult(r db.MatchResult) error {
	return w.writeLine(resultLine(r))
}

// WriteEvent appends an event line
func (w *Writer) WriteEvent(ev testlab.MatchEvent) error {
	return w.writeLine(eventLine(ev))
}

func (w *Writer) writeLine(l Line) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal line: %w", err)
	}
	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	w.lines++
	return nil
}

// Lines returns how many lines were written
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Close flushes and closes the file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	err := w.file.Close()
	w.file = nil
	return err
}
