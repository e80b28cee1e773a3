package store

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cwbudde/goeda/internal/config"
)

// Open creates the checkpoint store selected by the run section.
func Open(run config.Run) (Store, error) {
	switch run.Store {
	case "", config.StoreFS:
		return NewFSStore(run.OutputDir)
	case config.StoreBadger:
		return OpenBadgerStore(BadgerOptions{
			Path:   filepath.Join(run.OutputDir, "badger"),
			Logger: slog.Default().With("component", "badger"),
		})
	default:
		return nil, fmt.Errorf("unknown store %q", run.Store)
	}
}

// Location describes where the latest checkpoint of runID lives in s.
func Location(s Store, runID string) string {
	if l, ok := s.(interface{ Location(string) string }); ok {
		return l.Location(runID)
	}
	return runID
}
