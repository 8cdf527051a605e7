package rendertest

import (
	"fmt"

	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// Presenter hands out swapchain-like images in round robin.
type Presenter struct {
	device *Device
	images []metadata.ImageHandle
	extent metadata.Extent2D
	next   uint32

	// OutOfDateAcquires and OutOfDatePresents make the next N calls report an out of date
	// surface.
	OutOfDateAcquires int
	OutOfDatePresents int
	// RebuildExtent, when non-zero, is the size the surface has after the next Rebuild.
	RebuildExtent metadata.Extent2D
	// MinimizedRebuilds makes the next N Rebuild calls fail the way a zero-sized window
	// does, leaving the images in place.
	MinimizedRebuilds int

	Acquires int
	Presents int
	Rebuilds int
}

var _ metadata.Presenter = (*Presenter)(nil)

func NewPresenter(device *Device, count uint32, extent metadata.Extent2D) (*Presenter, error) {
	p := &Presenter{device: device, extent: extent}
	if err := p.create(count); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Presenter) create(count uint32) error {
	for i := uint32(0); i < count; i++ {
		h, err := p.device.CreateImage(metadata.ImageCreateInfo{
			Name:   fmt.Sprintf("swapchain-%d", i),
			Format: metadata.FormatB8G8R8A8Unorm,
			Extent: p.extent,
			Usage:  metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferDst,
		})
		if err != nil {
			return err
		}
		p.images = append(p.images, h)
	}
	return nil
}

func (p *Presenter) Acquire(signal metadata.SemaphoreHandle) (uint32, error) {
	p.Acquires++
	if p.OutOfDateAcquires > 0 {
		p.OutOfDateAcquires--
		return 0, core.Mark(core.Newf("acquire: surface out of date"), core.ErrSurfaceOutOfDate)
	}
	if !p.device.semaphores.Contains(containers.Handle(signal)) {
		p.device.violation("acquire with unknown semaphore")
	}
	idx := p.next
	p.next = (p.next + 1) % uint32(len(p.images))
	p.device.log("acquire", "%d", idx)
	return idx, nil
}

func (p *Presenter) Present(imageIndex uint32, wait metadata.SemaphoreHandle) error {
	p.Presents++
	if p.OutOfDatePresents > 0 {
		p.OutOfDatePresents--
		return core.Mark(core.Newf("present: surface out of date"), core.ErrSurfaceOutOfDate)
	}
	p.device.log("present", "%d", imageIndex)
	return nil
}

func (p *Presenter) Image(imageIndex uint32) metadata.ImageHandle { return p.images[imageIndex] }

func (p *Presenter) ImageCount() uint32 { return uint32(len(p.images)) }

func (p *Presenter) Extent() metadata.Extent2D { return p.extent }

func (p *Presenter) Format() metadata.Format { return metadata.FormatB8G8R8A8Unorm }

func (p *Presenter) Rebuild() error {
	p.Rebuilds++
	if p.MinimizedRebuilds > 0 {
		p.MinimizedRebuilds--
		return core.Mark(core.Newf("rebuild: window is minimized"), core.ErrSwapchainBooting)
	}
	count := uint32(len(p.images))
	p.Destroy()
	if !p.RebuildExtent.IsZero() {
		p.extent = p.RebuildExtent
	}
	p.next = 0
	return p.create(count)
}

func (p *Presenter) Destroy() {
	for _, h := range p.images {
		p.device.DestroyImage(h)
	}
	p.images = nil
}
