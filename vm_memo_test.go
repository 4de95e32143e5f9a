package nezvm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestMemoTable(t *testing.T) {
	t.Run("lookup returns exactly what was recorded", func(t *testing.T) {
		arena := NewArena(4)
		m := newMemoTable(arena, 2, 8)

		node := arena.Alloc(3, 7, "R")
		m.record(3, 1, 4, false, node)
		arena.Release(node)

		for i := 0; i < 2; i++ {
			e, ok := m.lookup(3, 1)
			assert.True(t, ok)
			want := memoEntry{pos: 3, memoPoint: 1, consumed: 4, node: node}
			if diff := cmp.Diff(want, e, cmp.AllowUnexported(memoEntry{})); diff != "" {
				t.Errorf("lookup %d (-want +got):\n%s", i, diff)
			}
		}
		assert.Equal(t, 2, m.hits)
		assert.Equal(t, 1, arena.Refs(node))
	})

	t.Run("other memo points and positions miss", func(t *testing.T) {
		arena := NewArena(4)
		m := newMemoTable(arena, 2, 8)
		m.record(3, 1, 4, false, NoNode)

		_, ok := m.lookup(3, 0)
		assert.False(t, ok)
		_, ok = m.lookup(4, 1)
		assert.False(t, ok)
		_, ok = m.lookup(3, 5)
		assert.False(t, ok)
		assert.Equal(t, 3, m.misses)
	})

	t.Run("failures are kept apart from empty matches", func(t *testing.T) {
		arena := NewArena(4)
		m := newMemoTable(arena, 2, 8)
		m.record(0, 0, 0, true, NoNode)
		m.record(0, 1, 0, false, NoNode)

		e, _ := m.lookup(0, 0)
		assert.True(t, e.failed)
		e, _ = m.lookup(0, 1)
		assert.False(t, e.failed)
		assert.Equal(t, 0, e.consumed)
	})

	t.Run("colliding positions evict each other", func(t *testing.T) {
		arena := NewArena(4)
		m := newMemoTable(arena, 1, 4)

		first := arena.Alloc(1, 2, "First")
		m.record(1, 0, 1, false, first)
		arena.Release(first)

		m.record(5, 0, 2, false, NoNode)
		assert.Equal(t, 1, m.evictions)
		assert.Equal(t, 0, arena.Live())

		_, ok := m.lookup(1, 0)
		assert.False(t, ok)
		e, ok := m.lookup(5, 0)
		assert.True(t, ok)
		assert.Equal(t, 2, e.consumed)
	})

	t.Run("rewriting the same key is not an eviction", func(t *testing.T) {
		arena := NewArena(4)
		m := newMemoTable(arena, 1, 4)
		m.record(2, 0, 1, false, NoNode)
		m.record(2, 0, 3, false, NoNode)
		assert.Equal(t, 0, m.evictions)

		e, _ := m.lookup(2, 0)
		assert.Equal(t, 3, e.consumed)
	})

	t.Run("reset drops every reference", func(t *testing.T) {
		arena := NewArena(4)
		m := newMemoTable(arena, 2, 2)
		for pos := 0; pos < 2; pos++ {
			n := arena.Alloc(pos, pos+1, "N")
			m.record(pos, 0, 1, false, n)
			arena.Release(n)
		}
		assert.Equal(t, 2, arena.Live())

		m.reset()
		assert.Equal(t, 0, arena.Live())
		_, ok := m.lookup(0, 0)
		assert.False(t, ok)
	})
}
