package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store on an embedded badger database. Keys:
//
//	cp/<runID>/latest
//	cp/<runID>/iter/<iteration, 9 digits>
type BadgerStore struct {
	db   *badger.DB
	path string
}

// BadgerOptions configures OpenBadgerStore.
type BadgerOptions struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// OpenBadgerStore opens or creates the database.
func OpenBadgerStore(o BadgerOptions) (*BadgerStore, error) {
	if !o.InMemory && o.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(o.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", o.Path, err)
		}
		opts = badger.DefaultOptions(o.Path)
	}
	opts = opts.WithSyncWrites(o.SyncWrites).WithNumVersionsToKeep(1)
	if o.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: o.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, path: o.Path}, nil
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Location names the key of a run's latest checkpoint.
func (s *BadgerStore) Location(runID string) string {
	if s.path == "" {
		return "badger:" + string(latestKey(runID))
	}
	return "badger:" + s.path + "#" + string(latestKey(runID))
}

func runPrefix(runID string) []byte { return []byte("cp/" + runID + "/") }

func latestKey(runID string) []byte { return []byte("cp/" + runID + "/latest") }

func iterKey(runID string, iteration int) []byte {
	return []byte(fmt.Sprintf("cp/%s/iter/%09d", runID, iteration))
}

// SaveCheckpoint writes both keys in one transaction.
func (s *BadgerStore) SaveCheckpoint(runID string, cp *Checkpoint) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(iterKey(runID, cp.Iteration), data); err != nil {
			return err
		}
		return txn.Set(latestKey(runID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	slog.Debug("Checkpoint saved", "run_id", runID, "iteration", cp.Iteration, "store", "badger")
	return nil
}

func (s *BadgerStore) get(runID string, key []byte) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *BadgerStore) LoadCheckpoint(runID string) (*Checkpoint, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	return s.get(runID, latestKey(runID))
}

func (s *BadgerStore) LoadCheckpointAt(runID string, iteration int) (*Checkpoint, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	return s.get(runID, iterKey(runID, iteration))
}

func (s *BadgerStore) ListIterations(runID string) ([]int, error) {
	prefix := []byte("cp/" + runID + "/iter/")
	var iterations []int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n, err := strconv.Atoi(strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
			if err == nil {
				iterations = append(iterations, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}
	sort.Ints(iterations)
	return iterations, nil
}

func (s *BadgerStore) PruneHistory(runID string, keep int) error {
	iterations, err := s.ListIterations(runID)
	if err != nil {
		return err
	}
	doomed := prune(iterations, keep)
	if len(doomed) == 0 {
		return nil
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, it := range doomed {
			if err := txn.Delete(iterKey(runID, it)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return nil
}

// ListCheckpoints reports every run with a latest checkpoint.
func (s *BadgerStore) ListCheckpoints() ([]CheckpointInfo, error) {
	type runStat struct {
		size    int64
		history int
	}
	stats := map[string]*runStat{}
	latest := map[string][]byte{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("cp/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), "cp/")
			runID, rest, ok := strings.Cut(key, "/")
			if !ok {
				continue
			}
			st := stats[runID]
			if st == nil {
				st = &runStat{}
				stats[runID] = st
			}
			st.size += item.ValueSize()
			switch {
			case rest == "latest":
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				latest[runID] = val
			case strings.HasPrefix(rest, "iter/"):
				st.history++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	infos := []CheckpointInfo{}
	for runID, data := range latest {
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			slog.Warn("Failed to load checkpoint for listing", "run_id", runID, "error", err)
			continue
		}
		info := cp.ToInfo()
		info.Size = stats[runID].size
		info.History = stats[runID].history
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SavedAt.After(infos[j].SavedAt) })
	return infos, nil
}

func (s *BadgerStore) DeleteCheckpoint(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if _, err := s.LoadCheckpoint(runID); err != nil {
		return err
	}
	if err := s.db.DropPrefix(runPrefix(runID)); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
