package rng

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draw(s *Stream, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = s.Uint64()
	}
	return out
}

func TestStream_IndependentOfOtherStreams(t *testing.T) {
	a := NewManager(42)
	want := draw(a.Stream("sample"), 16)

	b := NewManager(42)
	draw(b.Stream("init"), 100)
	draw(b.Stream("selection"), 7)
	got := draw(b.Stream("sample"), 16)

	assert.Equal(t, want, got)
}

func TestStream_DifferentNamesDiffer(t *testing.T) {
	m := NewManager(7)
	assert.NotEqual(t, draw(m.Stream("a"), 4), draw(m.Stream("b"), 4))
}

func TestStream_SameInstanceReturned(t *testing.T) {
	m := NewManager(1)
	assert.Same(t, m.Stream("fit"), m.Stream("fit"))
}

func TestSnapshot_RestoreReproducesFutureDraws(t *testing.T) {
	m := NewManager(99)
	draw(m.Stream("fit"), 5)
	m.Stream("sample").NormFloat64()

	snap, err := m.Snapshot()
	require.NoError(t, err)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	wantFit := draw(m.Stream("fit"), 10)
	wantSample := m.Stream("sample").NormFloat64()
	wantLazy := draw(m.Stream("restart"), 3)

	restored := NewManager(0)
	require.NoError(t, restored.Restore(decoded))
	assert.Equal(t, uint64(99), restored.Seed())
	assert.Equal(t, wantFit, draw(restored.Stream("fit"), 10))
	assert.Equal(t, wantSample, restored.Stream("sample").NormFloat64())
	assert.Equal(t, wantLazy, draw(restored.Stream("restart"), 3))
}

func TestRestore_VersionMismatch(t *testing.T) {
	m := NewManager(3)
	err := m.Restore(Snapshot{Version: SnapshotVersion + 1, MasterSeed: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSnapshotVersion))
}

func TestRestore_CorruptState(t *testing.T) {
	m := NewManager(3)
	err := m.Restore(Snapshot{
		Version:    SnapshotVersion,
		MasterSeed: 3,
		Streams:    map[string][]byte{"fit": []byte("garbage")},
	})
	assert.Error(t, err)
}

func TestNames_Sorted(t *testing.T) {
	m := NewManager(5)
	m.Stream("sample")
	m.Stream("fit")
	m.Stream("init")
	assert.Equal(t, []string{"fit", "init", "sample"}, m.Names())
}
