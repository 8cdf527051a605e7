package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTableInsertGet(t *testing.T) {
	table := NewHandleTable[string]("buffers")

	a := table.Insert("a", "alpha")
	b := table.Insert("b", "beta")
	require.True(t, a.IsValid())
	assert.NotEqual(t, a, b)

	v, err := table.Get(b)
	require.NoError(t, err)
	assert.Equal(t, "beta", v)
	assert.Equal(t, 2, table.Len())
}

func TestHandleTableDetectsStaleHandles(t *testing.T) {
	table := NewHandleTable[int]("images")

	old := table.Insert("img", 1)
	_, err := table.Remove(old)
	require.NoError(t, err)

	// the slot is reused, but the old handle must not resolve to the new value
	fresh := table.Insert("img", 2)
	assert.NotEqual(t, old, fresh)

	_, err = table.Get(old)
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = table.Remove(old)
	assert.ErrorIs(t, err, ErrStaleHandle)

	v, err := table.Get(fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestHandleTableInvalidHandle(t *testing.T) {
	table := NewHandleTable[int]("samplers")
	_, err := table.Get(InvalidHandle)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.False(t, table.Contains(Handle(1<<40|7)))
}

func TestHandleTableDrain(t *testing.T) {
	table := NewHandleTable[int]("fences")
	table.Insert("f0", 10)
	h := table.Insert("f1", 11)
	table.Insert("f2", 12)
	_, err := table.Remove(h)
	require.NoError(t, err)

	var released []int
	labels := table.Drain(func(v int) { released = append(released, v) })

	assert.ElementsMatch(t, []int{10, 12}, released)
	assert.Len(t, labels, 2)
	assert.Equal(t, 0, table.Len())
}
