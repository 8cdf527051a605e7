package rendertest

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// pendingWrite is a write no barrier has made visible yet.
type pendingWrite struct {
	op     string
	access metadata.Access
}

// hazardTracker follows writes between barriers. A memory barrier retires the writes its
// source access covers, an image transition retires the writes to the images it names,
// and a submission retires everything.
type hazardTracker struct {
	buffers map[metadata.BufferHandle]pendingWrite
	images  map[metadata.ImageHandle]pendingWrite
}

func (h *hazardTracker) reset() {
	h.buffers = map[metadata.BufferHandle]pendingWrite{}
	h.images = map[metadata.ImageHandle]pendingWrite{}
}

func (d *Device) hazard(format string, args ...interface{}) {
	d.Hazards = append(d.Hazards, fmt.Sprintf(format, args...))
}

func (d *Device) readBuffer(h metadata.BufferHandle, op string) {
	if w, ok := d.pending.buffers[h]; ok {
		d.hazard("read-after-write: %s reads %s written by %s without a barrier", op, d.bufferName(h), w.op)
	}
}

func (d *Device) writeBuffer(h metadata.BufferHandle, op string, access metadata.Access) {
	if w, ok := d.pending.buffers[h]; ok {
		d.hazard("write-after-write: %s writes %s written by %s without a barrier", op, d.bufferName(h), w.op)
	}
	d.pending.buffers[h] = pendingWrite{op: op, access: access}
}

func (d *Device) readImage(h metadata.ImageHandle, op string) {
	if w, ok := d.pending.images[h]; ok {
		d.hazard("read-after-write: %s reads %s written by %s without a barrier", op, d.imageName(h), w.op)
	}
}

func (d *Device) writeImage(h metadata.ImageHandle, op string, access metadata.Access) {
	if w, ok := d.pending.images[h]; ok {
		d.hazard("write-after-write: %s writes %s written by %s without a barrier", op, d.imageName(h), w.op)
	}
	d.pending.images[h] = pendingWrite{op: op, access: access}
}

func (d *Device) memoryBarrier(srcAccess metadata.Access) {
	covers := func(w pendingWrite) bool {
		return srcAccess&metadata.AccessMemoryWrite != 0 || w.access&srcAccess != 0
	}
	for h, w := range d.pending.buffers {
		if covers(w) {
			delete(d.pending.buffers, h)
		}
	}
	for h, w := range d.pending.images {
		if covers(w) {
			delete(d.pending.images, h)
		}
	}
}

func (d *Device) imageBarrier(images []metadata.ImageHandle) {
	for _, h := range images {
		delete(d.pending.images, h)
	}
}

// readAddresses marks pending buffers whose device address range holds any 8-byte word of
// data as read. Draws fetch vertices, models and the camera this way.
func (d *Device) readAddresses(data []byte, op string) {
	if len(d.pending.buffers) == 0 {
		return
	}
	for off := 0; off+8 <= len(data); off += 8 {
		addr := metadata.DeviceAddress(binary.LittleEndian.Uint64(data[off:]))
		for h := range d.pending.buffers {
			b := d.Buffer(h)
			if b == nil || b.Address == 0 {
				continue
			}
			if addr >= b.Address && addr < b.Address+metadata.DeviceAddress(b.Info.Size) {
				d.readBuffer(h, op)
			}
		}
	}
}

// accessSet reads every resource the set was last written with. Storage images are
// written instead.
func (d *Device) accessSet(set metadata.DescriptorSetHandle, op string) {
	s := d.DescriptorSet(set)
	if s == nil {
		return
	}
	latest := map[uint32]metadata.DescriptorWrite{}
	for _, w := range s.Writes {
		latest[w.Binding] = w
	}
	for _, w := range latest {
		for _, img := range w.Images {
			if d.Image(img.Image) == nil {
				continue
			}
			if w.Type == metadata.DescriptorTypeStorageImage {
				d.writeImage(img.Image, op, metadata.AccessShaderWrite)
			} else {
				d.readImage(img.Image, op)
			}
		}
		for _, b := range w.Buffers {
			if d.Buffer(b.Buffer) != nil {
				d.readBuffer(b.Buffer, op)
			}
		}
	}
}

func (d *Device) bufferName(h metadata.BufferHandle) string {
	if b := d.Buffer(h); b != nil {
		return b.Info.Name
	}
	return "unknown buffer"
}

func (d *Device) imageName(h metadata.ImageHandle) string {
	if img := d.Image(h); img != nil {
		return img.Info.Name
	}
	return "unknown image"
}
