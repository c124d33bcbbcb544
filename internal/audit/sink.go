package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755
)

// FileSink mirrors records to a JSONL file, one record per line. The
// in-memory Log stays authoritative.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink that appends to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the mirror file path.
func (s *FileSink) Path() string {
	return s.path
}

// Write appends one record as one JSON line.
func (s *FileSink) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	encoded = append(encoded, '\n')

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}
