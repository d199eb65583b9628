// Package artifacts stores confirmation documents and diagnostic dumps on disk.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindConfirmation      Kind = "potvrzeni"
	KindErrorConfirmation Kind = "chyby"
)

const requestDumpName = "soap_request_error.xml"

type Store struct {
	confirmations string
	diagnostics   string
	now           func() time.Time
}

func New(confirmationsDir, diagnosticsDir string) *Store {
	return &Store{
		confirmations: confirmationsDir,
		diagnostics:   diagnosticsDir,
		now:           time.Now,
	}
}

// WithClock is used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// SaveConfirmation writes a document as <kind>_YYYYMMDD_HHMMSS.pdf. A name
// taken within the same second gets a numeric suffix.
func (s *Store) SaveConfirmation(kind Kind, data []byte) (string, error) {
	if err := os.MkdirAll(s.confirmations, 0o755); err != nil {
		return "", errors.Wrap(err, "create confirmations dir")
	}
	base := fmt.Sprintf("%s_%s", kind, s.now().Format("20060102_150405"))

	for i := 1; i < 100; i++ {
		name := base + ".pdf"
		if i > 1 {
			name = fmt.Sprintf("%s_%d.pdf", base, i)
		}
		path := filepath.Join(s.confirmations, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", errors.Wrap(err, "create confirmation file")
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", errors.Wrap(err, "write confirmation")
		}
		return path, errors.Wrap(f.Close(), "close confirmation")
	}
	return "", errors.Errorf("no free file name for %s", base)
}

// DumpRequest overwrites the diagnostic copy of the last failed request.
func (s *Store) DumpRequest(payload []byte) (string, error) {
	if err := os.MkdirAll(s.diagnostics, 0o755); err != nil {
		return "", errors.Wrap(err, "create diagnostics dir")
	}
	path := filepath.Join(s.diagnostics, requestDumpName)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", errors.Wrap(err, "write request dump")
	}
	return path, nil
}
