package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingAdvanceWraps(t *testing.T) {
	r, err := NewRing("a", "b")
	require.NoError(t, err)

	assert.Equal(t, "a", r.Current())
	assert.Equal(t, "b", r.Advance())
	assert.Equal(t, "a", r.Advance())
	assert.Equal(t, 0, r.Index())
	assert.Equal(t, 2, r.Len())
}

func TestRingSeek(t *testing.T) {
	r, err := NewRing(10, 20, 30)
	require.NoError(t, err)

	assert.Equal(t, 30, r.Seek(5))
	assert.Equal(t, 30, r.Seek(-1))
	assert.Equal(t, 20, r.At(1))
}

func TestRingRejectsEmpty(t *testing.T) {
	_, err := NewRing[int]()
	assert.Error(t, err)
}
