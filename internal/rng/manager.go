// Package rng provides named, reproducible random streams derived from a
// single master seed.
package rng

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"sync"
)

// SnapshotVersion is the format version written by Snapshot.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned when restoring a snapshot written by an
// incompatible manager.
var ErrSnapshotVersion = errors.New("rng snapshot version mismatch")

// Stream is an independent random sequence. A Stream must not be shared
// between goroutines.
type Stream struct {
	*rand.Rand
	name string
	src  *rand.PCG
}

// Name returns the stream name.
func (s *Stream) Name() string {
	return s.name
}

// Snapshot holds the master seed and the state of every stream created so
// far. Streams absent from the snapshot are derived from the seed on demand.
type Snapshot struct {
	Version    int               `json:"version"`
	MasterSeed uint64            `json:"masterSeed"`
	Streams    map[string][]byte `json:"streams"`
}

// Manager hands out named streams. Stream(name) depends only on the master
// seed and the name, never on how other streams were used.
type Manager struct {
	mu      sync.Mutex
	seed    uint64
	streams map[string]*Stream
}

// NewManager creates a manager for the given master seed.
func NewManager(seed uint64) *Manager {
	return &Manager{
		seed:    seed,
		streams: make(map[string]*Stream),
	}
}

// Seed returns the master seed.
func (m *Manager) Seed() uint64 {
	return m.seed
}

// Stream returns the stream for name, creating it lazily.
func (m *Manager) Stream(name string) *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.streams[name]; ok {
		return s
	}
	hi, lo := DeriveSeed(m.seed, name)
	src := rand.NewPCG(hi, lo)
	s := &Stream{Rand: rand.New(src), name: name, src: src}
	m.streams[name] = s
	return s
}

// Snapshot captures the state of all streams.
func (m *Manager) Snapshot() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Version:    SnapshotVersion,
		MasterSeed: m.seed,
		Streams:    make(map[string][]byte, len(m.streams)),
	}
	for name, s := range m.streams {
		state, err := s.src.MarshalBinary()
		if err != nil {
			return Snapshot{}, fmt.Errorf("marshal stream %q: %w", name, err)
		}
		snap.Streams[name] = state
	}
	return snap, nil
}

// Restore replaces the manager state with snap. Streams handed out before
// Restore are detached and must not be used afterwards.
func (m *Manager) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, snap.Version, SnapshotVersion)
	}

	streams := make(map[string]*Stream, len(snap.Streams))
	for name, state := range snap.Streams {
		src := &rand.PCG{}
		if err := src.UnmarshalBinary(state); err != nil {
			return fmt.Errorf("restore stream %q: %w", name, err)
		}
		streams[name] = &Stream{Rand: rand.New(src), name: name, src: src}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seed = snap.MasterSeed
	m.streams = streams
	return nil
}

// Names lists the streams created so far, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.streams))
	for name := range m.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeriveSeed mixes the master seed with the FNV-1a hash of name and returns
// the two PCG seed words.
func DeriveSeed(master uint64, name string) (uint64, uint64) {
	h := fnv.New64a()
	h.Write([]byte(name))
	x := master ^ h.Sum64()
	hi := splitMix64(&x)
	lo := splitMix64(&x)
	return hi, lo
}

func splitMix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
