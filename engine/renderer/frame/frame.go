// Package frame drives submission: a ring of two frame contexts, each reused only after
// the device has finished the frame previously recorded into it.
package frame

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// FramesInFlight bounds how far the host may run ahead of the device.
const FramesInFlight = 2

type Context struct {
	Command        metadata.CommandBuffer
	Fence          metadata.FenceHandle
	ImageAcquired  metadata.SemaphoreHandle
	RenderComplete metadata.SemaphoreHandle
}

// Target is the presentable image a tick renders into.
type Target struct {
	Image  metadata.ImageHandle
	Index  uint32
	Extent metadata.Extent2D
}

type RecordFunc func(cmd metadata.CommandBuffer, target Target) error

type Cadence struct {
	device    metadata.Device
	presenter metadata.Presenter
	contexts  *containers.Ring[*Context]
	timeout   time.Duration

	frameNumber uint64
	rebuilds    uint64
	// stale is set while the surface needs a rebuild that has not succeeded yet
	stale     bool
	onRebuild func(extent metadata.Extent2D) error
}

func New(device metadata.Device, presenter metadata.Presenter, fenceTimeout time.Duration) (*Cadence, error) {
	c := &Cadence{
		device:    device,
		presenter: presenter,
		timeout:   fenceTimeout,
	}

	contexts := make([]*Context, 0, FramesInFlight)
	for i := 0; i < FramesInFlight; i++ {
		ctx, err := c.newContext(i)
		if err != nil {
			for _, created := range contexts {
				c.destroyContext(created)
			}
			err = core.Wrapf(err, "frame cadence: failed to create context %d", i)
			core.LogError(err.Error())
			return nil, err
		}
		contexts = append(contexts, ctx)
	}
	ring, err := containers.NewRing(contexts...)
	if err != nil {
		return nil, err
	}
	c.contexts = ring
	return c, nil
}

func (c *Cadence) newContext(i int) (*Context, error) {
	ctx := &Context{}
	var err error
	if ctx.Command, err = c.device.AllocateCommandBuffer(fmt.Sprintf("frame-%d", i)); err != nil {
		return nil, err
	}
	// signaled so the first wait on each context returns at once
	if ctx.Fence, err = c.device.CreateFence(true); err != nil {
		c.destroyContext(ctx)
		return nil, err
	}
	if ctx.ImageAcquired, err = c.device.CreateSemaphore(); err != nil {
		c.destroyContext(ctx)
		return nil, err
	}
	if ctx.RenderComplete, err = c.device.CreateSemaphore(); err != nil {
		c.destroyContext(ctx)
		return nil, err
	}
	return ctx, nil
}

func (c *Cadence) destroyContext(ctx *Context) {
	if ctx.RenderComplete.IsValid() {
		c.device.DestroySemaphore(ctx.RenderComplete)
	}
	if ctx.ImageAcquired.IsValid() {
		c.device.DestroySemaphore(ctx.ImageAcquired)
	}
	if ctx.Fence.IsValid() {
		c.device.DestroyFence(ctx.Fence)
	}
	if ctx.Command != nil {
		c.device.FreeCommandBuffer(ctx.Command)
	}
}

// OnRebuild registers what to do after the surface was rebuilt, typically recreating
// everything sized by it.
func (c *Cadence) OnRebuild(fn func(extent metadata.Extent2D) error) {
	c.onRebuild = fn
}

// Tick renders one frame. An out of date surface is rebuilt and the frame skipped without
// an error; the frame number advances either way. A surface with no area (a minimized
// window) is retried on every following tick until it rebuilds. A fence that does not signal within the
// timeout is returned as an error marked core.ErrFenceTimeout.
func (c *Cadence) Tick(record RecordFunc) error {
	defer func() { c.frameNumber++ }()
	ctx := c.contexts.Seek(int(c.CurrentFrame()))

	if err := c.device.WaitForFence(ctx.Fence, c.timeout); err != nil {
		err = core.Wrapf(err, "frame %d: waiting for context %d", c.frameNumber, c.CurrentFrame())
		core.LogError(err.Error())
		return err
	}

	if c.stale {
		return c.rebuild()
	}

	imageIndex, err := c.presenter.Acquire(ctx.ImageAcquired)
	if err != nil {
		if core.Is(err, core.ErrSurfaceOutOfDate) {
			// the fence stays signaled, nothing was submitted on this context
			return c.rebuild()
		}
		return core.Wrapf(err, "frame %d: acquire", c.frameNumber)
	}

	// only now is a submission certain to follow
	if err := c.device.ResetFence(ctx.Fence); err != nil {
		return core.Wrapf(err, "frame %d: reset fence", c.frameNumber)
	}

	cmd := ctx.Command
	if err := cmd.Reset(); err != nil {
		return core.Wrapf(err, "frame %d: reset command buffer", c.frameNumber)
	}
	if err := cmd.Begin(true); err != nil {
		return core.Wrapf(err, "frame %d: begin command buffer", c.frameNumber)
	}

	target := Target{
		Image:  c.presenter.Image(imageIndex),
		Index:  imageIndex,
		Extent: c.presenter.Extent(),
	}
	if err := record(cmd, target); err != nil {
		_ = cmd.End()
		return core.Wrapf(err, "frame %d: record", c.frameNumber)
	}
	if err := cmd.End(); err != nil {
		return core.Wrapf(err, "frame %d: end command buffer", c.frameNumber)
	}

	if err := c.device.Submit(metadata.SubmitInfo{
		Command:   cmd,
		Wait:      ctx.ImageAcquired,
		WaitStage: metadata.StageColorAttachmentOutput | metadata.StageTransfer,
		Signal:    ctx.RenderComplete,
		Fence:     ctx.Fence,
	}); err != nil {
		return core.Wrapf(err, "frame %d: submit", c.frameNumber)
	}

	if err := c.presenter.Present(imageIndex, ctx.RenderComplete); err != nil {
		if core.Is(err, core.ErrSurfaceOutOfDate) {
			return c.rebuild()
		}
		return core.Wrapf(err, "frame %d: present", c.frameNumber)
	}
	return nil
}

func (c *Cadence) rebuild() error {
	c.stale = true
	if err := c.device.WaitIdle(); err != nil {
		return core.Wrap(err, "surface rebuild: wait idle")
	}
	if err := c.presenter.Rebuild(); err != nil {
		if core.Is(err, core.ErrSwapchainBooting) {
			core.LogDebug("surface rebuild postponed: %s", err)
			return nil
		}
		return core.Wrap(err, "surface rebuild")
	}
	c.stale = false
	c.rebuilds++
	extent := c.presenter.Extent()
	core.LogDebug("surface rebuilt at %dx%d", extent.Width, extent.Height)
	if c.onRebuild != nil {
		return c.onRebuild(extent)
	}
	return nil
}

// FrameNumber counts ticks, skipped ones included.
func (c *Cadence) FrameNumber() uint64 { return c.frameNumber }

// CurrentFrame is the ring slot the next tick uses.
func (c *Cadence) CurrentFrame() uint64 { return c.frameNumber % FramesInFlight }

func (c *Cadence) Current() *Context { return c.contexts.At(int(c.CurrentFrame())) }

func (c *Cadence) Rebuilds() uint64 { return c.rebuilds }

// Suspended reports whether ticks are being skipped until the surface can be rebuilt.
func (c *Cadence) Suspended() bool { return c.stale }

func (c *Cadence) Destroy() {
	if err := c.device.WaitIdle(); err != nil {
		core.LogWarn("frame cadence: wait idle on destroy: %s", err)
	}
	c.contexts.Each(func(_ int, ctx *Context) {
		c.destroyContext(ctx)
	})
}
