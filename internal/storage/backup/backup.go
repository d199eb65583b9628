// Package backup writes JSON snapshots of the ledger before a run submits
// anything, keeping a bounded number of them.
package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

const (
	filePrefix = "ubysync_backup_"
	fileSuffix = ".json"
)

// Source provides the ledger contents to back up.
type Source interface {
	Snapshot(ctx context.Context) (*pgledger.Snapshot, error)
}

type Manager struct {
	dir  string
	src  Source
	keep int
	now  func() time.Time
}

func New(dir string) *Manager {
	return &Manager{dir: dir, keep: 10, now: time.Now}
}

// WithSource sets what Backup snapshots and how many files it retains.
func (m *Manager) WithSource(src Source, keep int) *Manager {
	m.src = src
	if keep > 0 {
		m.keep = keep
	}
	return m
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create writes snapshot as indented JSON and returns the file path.
func (m *Manager) Create(snapshot any) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create backup dir")
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal snapshot")
	}

	path := filepath.Join(m.dir, filePrefix+m.now().Format("20060102_150405")+fileSuffix)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", errors.Wrap(err, "write backup")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrap(err, "rename backup")
	}
	return path, nil
}

// Prune keeps the newest keep backups and deletes the rest.
func (m *Manager) Prune(keep int) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read backup dir")
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, filePrefix) && strings.HasSuffix(n, fileSuffix) {
			names = append(names, n)
		}
	}
	if len(names) <= keep {
		return nil, nil
	}

	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var removed []string
	for _, n := range names[max(keep, 0):] {
		p := filepath.Join(m.dir, n)
		if err := os.Remove(p); err != nil {
			return removed, errors.Wrap(err, "remove old backup")
		}
		removed = append(removed, p)
	}
	return removed, nil
}

// Backup snapshots the source, writes it and prunes old backups. A prune
// failure is returned with the path of the written backup.
func (m *Manager) Backup(ctx context.Context) (string, error) {
	if m.src == nil {
		return "", errors.New("backup source not configured")
	}
	snap, err := m.src.Snapshot(ctx)
	if err != nil {
		return "", errors.Wrap(err, "snapshot ledger")
	}
	path, err := m.Create(snap)
	if err != nil {
		return "", err
	}
	if _, err := m.Prune(m.keep); err != nil {
		return path, err
	}
	return path, nil
}
