package staged

import (
	"bytes"
	"os"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })
	return &buf
}

func newBuffer[T any](t *testing.T, capacity uint64) (*rendertest.Device, *Buffer[T]) {
	t.Helper()
	device := rendertest.NewDevice()
	b, err := New[T](device, "test", capacity, metadata.BufferUsageStorage)
	require.NoError(t, err)
	return device, b
}

func TestPushThenPopRestoresSize(t *testing.T) {
	_, b := newBuffer[uint32](t, 16)
	b.Push(1, 2, 3)
	before := b.StagedSize()

	x := []uint32{7, 8, 9, 10}
	b.Push(x...)
	assert.Equal(t, before+uint64(len(x))*4, b.StagedSize())

	b.Pop(uint64(len(x)))
	assert.Equal(t, before, b.StagedSize())
	assert.Equal(t, []uint32{1, 2, 3}, b.Read())
}

func TestPopPastZeroIsNoop(t *testing.T) {
	_, b := newBuffer[uint32](t, 4)
	b.Push(1, 2)
	b.Pop(3)
	assert.Equal(t, uint64(8), b.StagedSize())
}

func TestOverwriteCopyRead(t *testing.T) {
	device, b := newBuffer[mgl32.Vec4](t, 8)
	x := []mgl32.Vec4{{1, 2, 3, 4}, {5, 6, 7, 8}}
	b.Push(mgl32.Vec4{9, 9, 9, 9}, mgl32.Vec4{9, 9, 9, 9}, mgl32.Vec4{9, 9, 9, 9})
	b.Overwrite(x)
	assert.True(t, b.Dirty())

	require.NoError(t, device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		b.RecordCopyToDevice(cmd)
		b.RecordTotalCopyBarrier(cmd, metadata.StageComputeShader, metadata.AccessShaderRead)
	}))

	assert.False(t, b.Dirty())
	assert.Equal(t, x, b.Read())
	assert.Equal(t, uint64(32), b.DeviceSizeQueuedBytes())
	assert.Equal(t, uint64(2), b.DeviceCountQueued())

	// the device side received exactly the staged bytes
	deviceBytes := device.Buffer(b.DeviceBuffer()).Bytes[:32]
	assert.Equal(t, metadata.AsBytes(x), deviceBytes)
	assert.Empty(t, device.Violations)
}

func TestQueuedSizeIsSetAtRecordTime(t *testing.T) {
	device, b := newBuffer[float32](t, 4)
	b.Push(1, 2, 3)

	cmd, err := device.AllocateCommandBuffer("frame")
	require.NoError(t, err)
	require.NoError(t, cmd.Begin(true))
	b.RecordCopyToDevice(cmd)
	// not yet submitted
	assert.Equal(t, uint64(12), b.DeviceSizeQueuedBytes())
	assert.False(t, b.Dirty())
	require.NoError(t, cmd.End())
}

func TestZeroByteCopyIsNotRecorded(t *testing.T) {
	device, b := newBuffer[float32](t, 4)
	b.Push(1, 2)
	require.NoError(t, device.ImmediateSubmit(b.RecordCopyToDevice))
	device.ResetCounters()

	b.ClearStaged()
	require.NoError(t, device.ImmediateSubmit(b.RecordCopyToDevice))

	assert.NotContains(t, device.Ops(), "copy")
	assert.Equal(t, uint64(0), b.DeviceSizeQueuedBytes())
	assert.False(t, b.Dirty())
}

func TestClearStagedAndDevice(t *testing.T) {
	device, b := newBuffer[float32](t, 4)
	b.Push(1, 2, 3)
	require.NoError(t, device.ImmediateSubmit(b.RecordCopyToDevice))
	assert.Equal(t, uint64(12), b.DeviceSizeQueuedBytes())

	b.ClearStaged()
	assert.Equal(t, uint64(0), b.StagedSize())
	assert.Equal(t, uint64(12), b.DeviceSizeQueuedBytes())

	b.ClearStagedAndDevice()
	assert.Equal(t, uint64(0), b.DeviceSizeQueuedBytes())
}

func TestPushPastCapacityClamps(t *testing.T) {
	logs := captureLogs(t)
	device, b := newBuffer[uint32](t, 4)

	b.Push(1, 2, 3)
	b.Push(4, 5, 6)
	assert.LessOrEqual(t, b.StagedSize(), b.CapacityBytes())
	assert.Equal(t, []uint32{1, 2, 3, 4}, b.Read())
	assert.Contains(t, logs.String(), "dropping 2")

	b.PushBytes([]byte{0xff, 0xff})
	assert.Equal(t, b.CapacityBytes(), b.StagedSize())

	b.Overwrite([]uint32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, b.CapacityBytes(), b.StagedSize())

	b.OverwriteBytes(make([]byte, 64))
	assert.Equal(t, b.CapacityBytes(), b.StagedSize())

	// the host allocation is exactly the capacity and was never grown
	assert.Len(t, device.Buffer(b.host).Bytes, int(b.CapacityBytes()))
}

func TestPushBytesTruncatesToRoom(t *testing.T) {
	_, b := newBuffer[uint32](t, 2)
	b.Push(1)
	b.PushBytes([]byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, uint64(8), b.StagedSize())
}

func TestReadDirtyWarns(t *testing.T) {
	logs := captureLogs(t)
	_, b := newBuffer[uint32](t, 4)
	b.Push(42)
	assert.Equal(t, []uint32{42}, b.Read())
	assert.Contains(t, logs.String(), "dirty")
}

func TestAllocationFailureReleasesHost(t *testing.T) {
	_ = captureLogs(t)
	device := rendertest.NewDevice()
	device.Fail = func(kind, name string) bool { return kind == "buffer" && name == "lights-device" }

	b, err := New[uint32](device, "lights", 8, metadata.BufferUsageStorage)
	assert.Nil(t, b)
	require.Error(t, err)
	assert.True(t, core.Is(err, core.ErrAllocationFailed))
	assert.Equal(t, 0, device.Live())
}

func TestZeroCapacityRejected(t *testing.T) {
	_ = captureLogs(t)
	_, err := New[uint32](rendertest.NewDevice(), "empty", 0, metadata.BufferUsageStorage)
	assert.Error(t, err)
}

func TestDestroyReleasesBoth(t *testing.T) {
	device, b := newBuffer[uint32](t, 4)
	assert.Equal(t, 2, device.Live())
	assert.NotZero(t, b.DeviceAddress())
	b.Destroy()
	assert.Equal(t, 0, device.Live())
}
