package idpool

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAscending(t *testing.T) {
	p := New(3)
	for want := uint32(1); want <= 3; want++ {
		id, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	_, err := p.Acquire()
	assert.True(t, errors.Is(err, ErrPoolExhausted))
	assert.Equal(t, 0, p.Size())
}

func TestAscendingReuse(t *testing.T) {
	p := New(5)
	for i := 0; i < 5; i++ {
		_, err := p.Acquire()
		require.NoError(t, err)
	}
	p.Release(3)
	p.Release(1)

	id, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	id, err = p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id)
}

func TestReleaseIgnoresDuplicatesAndRange(t *testing.T) {
	p := New(2)
	p.Release(1)
	p.Release(0)
	p.Release(3)
	assert.Equal(t, 2, p.Size())

	id, _ := p.Acquire()
	p.Release(id)
	p.Release(id)
	assert.Equal(t, 2, p.Size())
}

func TestFreeCountAccounting(t *testing.T) {
	const max = 16
	p := New(max)
	active := map[uint32]struct{}{}
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 2000; step++ {
		if rng.Intn(2) == 0 {
			id, err := p.Acquire()
			if err != nil {
				require.Len(t, active, max)
				continue
			}
			_, dup := active[id]
			require.False(t, dup, "id %d handed out twice", id)
			active[id] = struct{}{}
		} else if len(active) > 0 {
			for id := range active {
				delete(active, id)
				p.Release(id)
				break
			}
		}

		// 活跃集合与空闲集合不相交, 并集为 1..max
		require.Equal(t, max, len(active)+p.Size())
		for id := uint32(1); id <= max; id++ {
			_, isActive := active[id]
			require.NotEqual(t, isActive, p.Contains(id), "id %d", id)
		}
	}
}

func TestReset(t *testing.T) {
	p := New(4)
	_, _ = p.Acquire()
	_, _ = p.Acquire()
	p.Reset()
	assert.Equal(t, 4, p.Size())
	id, _ := p.Acquire()
	assert.Equal(t, uint32(1), id)
}
