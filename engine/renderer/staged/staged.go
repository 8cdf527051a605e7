// Package staged pairs a host-visible buffer with a device-local buffer of the same size.
// Writes land in the host buffer; a recorded copy moves them to the device buffer.
package staged

import (
	"unsafe"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type Buffer[T any] struct {
	name   string
	device metadata.Device

	host      metadata.BufferHandle
	deviceBuf metadata.BufferHandle
	mapped    []byte
	address   metadata.DeviceAddress

	elemSize uint64
	capacity uint64

	// bytes written to the host buffer since the last clear
	stagedSize uint64
	// bytes covered by the last recorded copy; set when recording, not when the copy runs
	deviceSizeQueued uint64
	dirty            bool
}

// New allocates room for capacity elements of T on both sides. usage is added to the
// transfer and device-address usage every device buffer gets.
func New[T any](device metadata.Device, name string, capacity uint64, usage metadata.BufferUsage) (*Buffer[T], error) {
	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	if capacity == 0 || elemSize == 0 {
		err := core.Newf("staged buffer %s: capacity and element size must be non-zero", name)
		core.LogError(err.Error())
		return nil, err
	}
	size := capacity * elemSize

	host, err := device.CreateBuffer(metadata.BufferCreateInfo{
		Name:     name + "-host",
		Size:     size,
		Usage:    metadata.BufferUsageTransferSrc,
		Location: metadata.MemoryHostVisible,
	})
	if err != nil {
		err = core.Wrapf(err, "staged buffer %s: host buffer", name)
		core.LogError(err.Error())
		return nil, err
	}
	mapped, err := device.MappedBytes(host)
	if err != nil {
		device.DestroyBuffer(host)
		err = core.Wrapf(err, "staged buffer %s: map host buffer", name)
		core.LogError(err.Error())
		return nil, err
	}
	dev, err := device.CreateBuffer(metadata.BufferCreateInfo{
		Name:     name + "-device",
		Size:     size,
		Usage:    usage | metadata.BufferUsageTransferDst | metadata.BufferUsageDeviceAddress,
		Location: metadata.MemoryDeviceLocal,
	})
	if err != nil {
		device.DestroyBuffer(host)
		err = core.Wrapf(err, "staged buffer %s: device buffer", name)
		core.LogError(err.Error())
		return nil, err
	}

	return &Buffer[T]{
		name:      name,
		device:    device,
		host:      host,
		deviceBuf: dev,
		mapped:    mapped[:size],
		address:   device.BufferAddress(dev),
		elemSize:  elemSize,
		capacity:  capacity,
	}, nil
}

func (b *Buffer[T]) Destroy() {
	if b.host.IsValid() {
		b.device.DestroyBuffer(b.host)
		b.host = 0
	}
	if b.deviceBuf.IsValid() {
		b.device.DestroyBuffer(b.deviceBuf)
		b.deviceBuf = 0
	}
	b.mapped = nil
	b.stagedSize = 0
	b.deviceSizeQueued = 0
}

func (b *Buffer[T]) capacityBytes() uint64 {
	return b.capacity * b.elemSize
}

// Overwrite replaces the staged contents with elems.
func (b *Buffer[T]) Overwrite(elems []T) {
	if n := uint64(len(elems)); n > b.capacity {
		core.LogWarn("staged buffer %s: overwrite of %d elements exceeds capacity %d, truncating", b.name, n, b.capacity)
		elems = elems[:b.capacity]
	}
	b.overwrite(metadata.AsBytes(elems))
}

func (b *Buffer[T]) OverwriteBytes(data []byte) {
	if n := uint64(len(data)); n > b.capacityBytes() {
		core.LogWarn("staged buffer %s: overwrite of %d bytes exceeds capacity %d, truncating", b.name, n, b.capacityBytes())
		data = data[:b.capacityBytes()]
	}
	b.overwrite(data)
}

func (b *Buffer[T]) overwrite(data []byte) {
	copy(b.mapped, data)
	b.stagedSize = uint64(len(data))
	b.dirty = true
}

// Push appends elems after the staged contents. Elements that do not fit are dropped.
func (b *Buffer[T]) Push(elems ...T) {
	room := (b.capacityBytes() - b.stagedSize) / b.elemSize
	if n := uint64(len(elems)); n > room {
		core.LogWarn("staged buffer %s: push of %d elements with room for %d, dropping %d", b.name, n, room, n-room)
		elems = elems[:room]
	}
	b.push(metadata.AsBytes(elems))
}

// PushBytes appends raw bytes, truncating at capacity.
func (b *Buffer[T]) PushBytes(data []byte) {
	room := b.capacityBytes() - b.stagedSize
	if n := uint64(len(data)); n > room {
		core.LogWarn("staged buffer %s: push of %d bytes with room for %d, truncating", b.name, n, room)
		data = data[:room]
	}
	b.push(data)
}

func (b *Buffer[T]) push(data []byte) {
	if len(data) == 0 {
		return
	}
	copy(b.mapped[b.stagedSize:], data)
	b.stagedSize += uint64(len(data))
	b.dirty = true
}

// Pop drops the last count elements. Popping more than is staged does nothing.
func (b *Buffer[T]) Pop(count uint64) {
	n := count * b.elemSize
	if n > b.stagedSize {
		return
	}
	b.stagedSize -= n
	b.dirty = true
}

// ClearStaged forgets the staged contents. The bytes and what was queued to the device
// are left alone.
func (b *Buffer[T]) ClearStaged() {
	b.stagedSize = 0
	b.dirty = true
}

// ClearStagedAndDevice also marks the device side as holding nothing valid, for readers
// that size their work by DeviceSizeQueuedBytes.
func (b *Buffer[T]) ClearStagedAndDevice() {
	b.stagedSize = 0
	b.deviceSizeQueued = 0
	b.dirty = false
}

// RecordCopyToDevice records a copy of the staged bytes. The queued size and dirty flag
// change now, before the device runs the copy: consumers still need the barrier from
// RecordTotalCopyBarrier.
func (b *Buffer[T]) RecordCopyToDevice(cmd metadata.CommandBuffer) {
	if b.stagedSize > 0 {
		cmd.CopyBuffer(b.host, b.deviceBuf, []metadata.BufferCopy{{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      b.stagedSize,
		}})
	}
	b.deviceSizeQueued = b.stagedSize
	b.dirty = false
}

// RecordTotalCopyBarrier makes every transfer write recorded so far visible to dstStage.
// One barrier covers any number of staged copies.
func RecordTotalCopyBarrier(cmd metadata.CommandBuffer, dstStage metadata.PipelineStage, dstAccess metadata.Access) {
	cmd.MemoryBarrier(metadata.StageTransfer, metadata.AccessTransferWrite, dstStage, dstAccess)
}

func (b *Buffer[T]) RecordTotalCopyBarrier(cmd metadata.CommandBuffer, dstStage metadata.PipelineStage, dstAccess metadata.Access) {
	RecordTotalCopyBarrier(cmd, dstStage, dstAccess)
}

// Read returns a copy of the staged elements. A dirty buffer is read anyway, with a
// warning, since the device may not hold these bytes.
func (b *Buffer[T]) Read() []T {
	if b.dirty {
		core.LogWarn("staged buffer %s: reading dirty contents", b.name)
	}
	count := b.StagedCount()
	out := make([]T, count)
	copy(metadata.AsBytes(out), b.mapped[:count*b.elemSize])
	return out
}

func (b *Buffer[T]) Name() string { return b.name }

func (b *Buffer[T]) StagedSize() uint64 { return b.stagedSize }

func (b *Buffer[T]) StagedCount() uint64 { return b.stagedSize / b.elemSize }

func (b *Buffer[T]) DeviceSizeQueuedBytes() uint64 { return b.deviceSizeQueued }

func (b *Buffer[T]) DeviceCountQueued() uint64 { return b.deviceSizeQueued / b.elemSize }

func (b *Buffer[T]) Capacity() uint64 { return b.capacity }

func (b *Buffer[T]) CapacityBytes() uint64 { return b.capacityBytes() }

func (b *Buffer[T]) Dirty() bool { return b.dirty }

func (b *Buffer[T]) DeviceBuffer() metadata.BufferHandle { return b.deviceBuf }

func (b *Buffer[T]) DeviceAddress() metadata.DeviceAddress { return b.address }
