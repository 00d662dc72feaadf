package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

func TestNewEmptyStore(t *testing.T) {
	s := New(nil)
	assert.Empty(t, s.Tree())

	_, ok := s.Read(path.MustParse("anything"))
	assert.False(t, ok)
}

func TestNewSeedIsolation(t *testing.T) {
	seed := value.Map{"a": value.Map{"b": value.Int(0)}}
	s := New(seed)

	// Mutating the seed after construction must not leak in.
	seed["a"].(value.Map)["b"] = value.Int(99)

	got, ok := s.Read(path.MustParse("a.b"))
	require.True(t, ok)
	assert.Equal(t, value.Int(0), got)
}

func TestWriteReadErase(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.Write(path.MustParse("a.b"), value.Int(1)))
	got, ok := s.Read(path.MustParse("a.b"))
	require.True(t, ok)
	assert.Equal(t, value.Int(1), got)

	s.Erase(path.MustParse("a.b"))
	_, ok = s.Read(path.MustParse("a.b"))
	assert.False(t, ok)

	// Erasing again stays a no-op.
	s.Erase(path.MustParse("a.b"))
}

func TestWriteStructuralErrorLeavesTreeUntouched(t *testing.T) {
	s := New(value.Map{"a": value.Int(1)})

	err := s.Write(path.MustParse("a.b"), value.Int(2))
	require.Error(t, err)
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)

	got, ok := s.Read(path.MustParse("a"))
	require.True(t, ok)
	assert.Equal(t, value.Int(1), got, "failed write must not disturb the tree")
}

func TestWriteObservedIsOneSwap(t *testing.T) {
	s := New(value.Map{"a": value.Int(0)})
	p := path.MustParse("a")

	require.NoError(t, s.WriteObserved(p, value.Int(5)))

	got, ok := s.Read(p)
	require.True(t, ok)
	assert.Equal(t, value.Int(5), got)
	assert.True(t, s.Observed(p))
}

func TestWriteObservedFailureMarksNothing(t *testing.T) {
	s := New(value.Map{"a": value.Int(1)})
	p := path.MustParse("a.through.leaf")

	err := s.WriteObserved(p, value.Int(2))
	require.Error(t, err)
	assert.False(t, s.Observed(p), "failed write must not leave an observed mark")
}

func TestConcurrentWritersAllLand(t *testing.T) {
	s := New(nil)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := path.MustParse(fmt.Sprintf("slot.k%02d", n))
			_ = s.Write(p, value.Int(int64(n)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		p := path.MustParse(fmt.Sprintf("slot.k%02d", i))
		got, ok := s.Read(p)
		require.True(t, ok, "write %d lost under contention", i)
		assert.Equal(t, value.Int(int64(i)), got)
	}
}

func TestConcurrentMarksAllLand(t *testing.T) {
	s := New(nil)

	const marks = 32
	var wg sync.WaitGroup
	for i := 0; i < marks; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.MarkObserved(path.MustParse(fmt.Sprintf("p%02d", n)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.ObservedKeys(), marks)
}
