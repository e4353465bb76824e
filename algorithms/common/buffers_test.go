package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingEviction(t *testing.T) {
	r := NewRing[int](3)
	assert.True(t, r.IsEmpty())

	for i := 1; i <= 3; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}
	assert.True(t, r.IsFull())
	assert.Equal(t, []int{1, 2, 3}, r.Slice())

	old, evicted := r.Push(4)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{2, 3, 4}, r.Slice())
	assert.Equal(t, 2, r.At(0))
	assert.Equal(t, 4, r.At(2))
}

func TestRingNeverExceedsCapacity(t *testing.T) {
	r := NewRing[int](5)
	for i := range 37 {
		r.Push(i)
		assert.LessOrEqual(t, r.Len(), r.Cap())
	}
	assert.Equal(t, []int{32, 33, 34, 35, 36}, r.Slice())
}

func TestRingClear(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Slice())

	r.Push("c")
	assert.Equal(t, []string{"c"}, r.Slice())
}

func TestRingAtOutOfRange(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	assert.Panics(t, func() { r.At(1) })
}
