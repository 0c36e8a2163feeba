package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pario-ai/leasegate/internal/clock"
	"github.com/pario-ai/leasegate/pkg/models"
)

// JSONLWriter appends events to one JSON-lines file per UTC day, named
// leasegate-audit-YYYY-MM-DD.jsonl.
type JSONLWriter struct {
	dir   string
	clock clock.Clock
	mu    sync.Mutex
}

// NewJSONLWriter creates dir if needed and returns a writer into it.
func NewJSONLWriter(dir string, c clock.Clock) (*JSONLWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &JSONLWriter{dir: dir, clock: clock.OrReal(c)}, nil
}

// FileFor returns the path events for the given day are written to.
func (w *JSONLWriter) FileFor(day string) string {
	return filepath.Join(w.dir, "leasegate-audit-"+day+".jsonl")
}

// Write appends ev as one line.
func (w *JSONLWriter) Write(ctx context.Context, ev models.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	path := w.FileFor(w.clock.Now().UTC().Format("2006-01-02"))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append audit event: %w", err)
	}
	return f.Close()
}
