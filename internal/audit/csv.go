package audit

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"orderbridge/internal/model"
)

// CSVWriter appends entries to one CSV file per IST trading date. The
// header row is written once when the file is created.
type CSVWriter struct {
	dir string

	mu sync.Mutex
}

func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create csv dir: %w", err)
	}
	return &CSVWriter{dir: dir}, nil
}

func (w *CSVWriter) Append(e Entry) error {
	e.normalize()

	w.mu.Lock()
	defer w.mu.Unlock()

	day := e.ReceivedAt.In(model.IST).Format("2006-01-02")
	path := filepath.Join(w.dir, "signals_"+day+".csv")

	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open csv: %w", err)
	}
	defer f.Close()

	rows := []*Entry{&e}
	if newFile {
		err = gocsv.MarshalFile(&rows, f)
	} else {
		err = gocsv.MarshalWithoutHeaders(&rows, f)
	}
	if err != nil {
		return fmt.Errorf("audit: write csv: %w", err)
	}
	return nil
}

// Recorder fans one entry out to the journal and the daily CSV. Either
// sink may be nil. CSV failures are logged, not propagated; the journal
// is the authoritative trail.
type Recorder struct {
	Journal *Journal
	CSV     *CSVWriter
}

func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r.CSV != nil {
		if err := r.CSV.Append(e); err != nil {
			log.Printf("[audit] %v", err)
		}
	}
	if r.Journal != nil {
		return r.Journal.Write(ctx, e)
	}
	return nil
}
