package frame

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCadence(t *testing.T) (*rendertest.Device, *rendertest.Presenter, *Cadence) {
	t.Helper()
	device := rendertest.NewDevice()
	presenter, err := rendertest.NewPresenter(device, 3, metadata.Extent2D{Width: 800, Height: 600})
	require.NoError(t, err)
	c, err := New(device, presenter, time.Second)
	require.NoError(t, err)
	return device, presenter, c
}

func noop(cmd metadata.CommandBuffer, target Target) error { return nil }

func TestFrameNumberAndContextsCycle(t *testing.T) {
	device, presenter, c := newCadence(t)

	var seen []*Context
	for i := 0; i < 6; i++ {
		assert.Equal(t, uint64(i), c.FrameNumber())
		assert.Equal(t, uint64(i%2), c.CurrentFrame())
		seen = append(seen, c.Current())
		require.NoError(t, c.Tick(noop))
		assert.Equal(t, uint64(i+1), c.FrameNumber())
	}

	assert.NotSame(t, seen[0], seen[1])
	for i := 2; i < len(seen); i++ {
		assert.Same(t, seen[i%2], seen[i])
	}
	assert.Equal(t, 6, device.Submits)
	assert.Equal(t, 6, presenter.Presents)
	assert.Empty(t, device.Violations)
}

func TestTickRecordsIntoCurrentContext(t *testing.T) {
	_, presenter, c := newCadence(t)

	var targets []Target
	for i := 0; i < 4; i++ {
		want := c.Current().Command
		require.NoError(t, c.Tick(func(cmd metadata.CommandBuffer, target Target) error {
			assert.Same(t, want, cmd)
			assert.True(t, cmd.(*rendertest.CommandBuffer).Recording())
			targets = append(targets, target)
			return nil
		}))
	}
	assert.Equal(t, uint32(0), targets[0].Index)
	assert.Equal(t, uint32(1), targets[1].Index)
	assert.Equal(t, uint32(0), targets[3].Index, "three presentable images wrap")
	assert.Equal(t, presenter.Image(2), targets[2].Image)
	assert.Equal(t, metadata.Extent2D{Width: 800, Height: 600}, targets[0].Extent)
}

func TestOutOfDateAcquireRebuildsAndSkips(t *testing.T) {
	device, presenter, c := newCadence(t)
	presenter.OutOfDateAcquires = 1
	presenter.RebuildExtent = metadata.Extent2D{Width: 1024, Height: 768}

	var rebuiltAt metadata.Extent2D
	c.OnRebuild(func(extent metadata.Extent2D) error {
		rebuiltAt = extent
		return nil
	})

	recorded := 0
	record := func(metadata.CommandBuffer, Target) error {
		recorded++
		return nil
	}

	require.NoError(t, c.Tick(record))
	assert.Equal(t, 0, recorded)
	assert.Equal(t, 0, device.Submits)
	assert.Equal(t, uint64(1), c.Rebuilds())
	assert.Equal(t, metadata.Extent2D{Width: 1024, Height: 768}, rebuiltAt)
	assert.Equal(t, uint64(1), c.FrameNumber())

	// the skipped context kept its signaled fence, so coming back to it does not block
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Tick(record))
	}
	assert.Equal(t, 4, recorded)
	assert.Empty(t, device.Violations)
}

func TestOutOfDatePresentRebuilds(t *testing.T) {
	device, presenter, c := newCadence(t)
	presenter.OutOfDatePresents = 1

	require.NoError(t, c.Tick(noop))
	assert.Equal(t, 1, device.Submits)
	assert.Equal(t, uint64(1), c.Rebuilds())
	require.NoError(t, c.Tick(noop))
	require.NoError(t, c.Tick(noop))
	assert.Equal(t, 3, device.Submits)
}

func TestMinimizedSurfaceSuspendsUntilRebuilt(t *testing.T) {
	device, presenter, c := newCadence(t)
	presenter.OutOfDateAcquires = 1
	presenter.MinimizedRebuilds = 2

	rebuilt := 0
	c.OnRebuild(func(metadata.Extent2D) error {
		rebuilt++
		return nil
	})

	// out of date, then two rebuild attempts against a zero-sized window
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Tick(noop))
		assert.Equal(t, i < 2, c.Suspended(), "tick %d", i)
	}
	assert.Equal(t, 0, device.Submits)
	assert.Equal(t, 1, presenter.Acquires)
	assert.Equal(t, 3, presenter.Rebuilds)
	assert.Equal(t, 1, rebuilt)
	assert.Equal(t, uint64(1), c.Rebuilds())

	require.NoError(t, c.Tick(noop))
	assert.Equal(t, 1, device.Submits)
	assert.Empty(t, device.Violations)
}

func TestFenceTimeoutIsAnError(t *testing.T) {
	core.SetLogOutput(io.Discard)
	defer core.SetLogOutput(os.Stderr)

	device, _, c := newCadence(t)
	device.HangFences = true

	require.NoError(t, c.Tick(noop))
	require.NoError(t, c.Tick(noop))
	err := c.Tick(noop)
	require.Error(t, err)
	assert.True(t, core.Is(err, core.ErrFenceTimeout))
}

func TestRecordErrorPropagates(t *testing.T) {
	device, _, c := newCadence(t)
	boom := core.Newf("boom")

	err := c.Tick(func(metadata.CommandBuffer, Target) error { return boom })
	require.Error(t, err)
	assert.True(t, core.Is(err, boom))
	assert.Equal(t, 0, device.Submits)
	assert.False(t, c.contexts.At(0).Command.(*rendertest.CommandBuffer).Recording())
}

func TestDestroyReleasesContexts(t *testing.T) {
	device, presenter, c := newCadence(t)
	c.Destroy()
	presenter.Destroy()
	assert.Equal(t, 0, device.Live())
}
