package renderer

import (
	"time"

	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/deferred"
	"github.com/spaghettifunk/umbra/engine/renderer/frame"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
)

// DrawFormat is the HDR format the frame is composed in before the blit to the surface.
const DrawFormat = metadata.FormatR16G16B16A16Sfloat

// FrameSource is the scene as the renderer sees it.
type FrameSource interface {
	CameraBuffer() metadata.BufferHandle
	AtmosphereBuffer() metadata.BufferHandle
	// RecordUploads records the copies of camera, atmosphere and instance transforms.
	RecordUploads(cmd metadata.CommandBuffer)
	FrameInputs() *deferred.FrameInputs
}

// SkyFunc records after the lighting pass. The output image is in LayoutGeneral.
type SkyFunc func(cmd metadata.CommandBuffer, output metadata.ImageHandle, extent metadata.Extent2D)

type Options struct {
	Shaders    metadata.ShaderSource
	Reflection config.Reflection
}

type Renderer struct {
	backend *Backend
	source  FrameSource

	cadence  *frame.Cadence
	pipeline *deferred.Pipeline
	draw     metadata.ImageHandle
	extent   metadata.Extent2D
	sky      SkyFunc
}

// New builds the frame cadence, the draw image and the deferred pipeline around backend
// and takes ownership of it once it succeeds. On failure only what New created is released;
// the backend stays with the caller, whose own device resources must go first.
func New(backend *Backend, cfg *config.Config, source FrameSource, opts Options) (*Renderer, error) {
	r := &Renderer{
		backend: backend,
		source:  source,
		extent:  backend.Presenter.Extent(),
	}

	var err error
	timeout := time.Duration(cfg.Renderer.FenceTimeoutMs) * time.Millisecond
	if r.cadence, err = frame.New(backend.Device, backend.Presenter, timeout); err != nil {
		return nil, r.fail(err, "frame cadence")
	}
	if r.draw, err = r.createDrawImage(r.extent); err != nil {
		return nil, r.fail(err, "draw image")
	}

	pipelineCfg := deferred.ConfigFrom(cfg, r.extent, opts.Shaders, opts.Reflection)
	targets := deferred.Targets{
		Output:     r.draw,
		Camera:     source.CameraBuffer(),
		Atmosphere: source.AtmosphereBuffer(),
	}
	if r.pipeline, err = deferred.New(backend.Device, backend.Allocator, pipelineCfg, targets); err != nil {
		return nil, r.fail(err, "deferred pipeline")
	}
	r.cadence.OnRebuild(r.resize)

	core.LogInfo("Renderer initialized at %dx%d.", r.extent.Width, r.extent.Height)
	return r, nil
}

func (r *Renderer) fail(err error, what string) error {
	r.release()
	err = core.Wrapf(err, "renderer: failed to create %s", what)
	core.LogError(err.Error())
	return err
}

func (r *Renderer) createDrawImage(extent metadata.Extent2D) (metadata.ImageHandle, error) {
	return r.backend.Device.CreateImage(metadata.ImageCreateInfo{
		Name:   "draw",
		Format: DrawFormat,
		Extent: extent,
		Usage: metadata.ImageUsageStorage | metadata.ImageUsageTransferSrc |
			metadata.ImageUsageTransferDst | metadata.ImageUsageColorAttachment,
	})
}

// resize runs after the surface was rebuilt, with the device idle.
func (r *Renderer) resize(extent metadata.Extent2D) error {
	if r.draw.IsValid() {
		r.backend.Device.DestroyImage(r.draw)
		r.draw = 0
	}
	draw, err := r.createDrawImage(extent)
	if err != nil {
		return core.Wrapf(err, "renderer: recreate draw image at %dx%d", extent.Width, extent.Height)
	}
	r.draw = draw
	r.extent = extent
	return r.pipeline.Resize(extent, draw)
}

// SetSky installs the pass drawn over the lit image, or removes it when fn is nil.
func (r *Renderer) SetSky(fn SkyFunc) { r.sky = fn }

// DrawFrame renders and presents one frame.
func (r *Renderer) DrawFrame() error {
	return r.cadence.Tick(r.record)
}

func (r *Renderer) record(cmd metadata.CommandBuffer, target frame.Target) error {
	r.source.RecordUploads(cmd)
	r.pipeline.RecordDrawCommands(cmd, r.source.FrameInputs())
	if r.sky != nil {
		// lighting stores must land before the sky writes over them
		cmd.TransitionImages([]metadata.ImageHandle{r.draw}, metadata.LayoutGeneral)
		r.sky(cmd, r.draw, r.extent)
	}

	cmd.TransitionImages([]metadata.ImageHandle{r.draw}, metadata.LayoutTransferSrc)
	cmd.TransitionImages([]metadata.ImageHandle{target.Image}, metadata.LayoutTransferDst)
	cmd.BlitImage(r.draw, target.Image, r.extent, target.Extent)
	cmd.TransitionImages([]metadata.ImageHandle{target.Image}, metadata.LayoutPresentSrc)
	return nil
}

func (r *Renderer) Device() metadata.Device { return r.backend.Device }

func (r *Renderer) Allocator() metadata.DescriptorAllocator { return r.backend.Allocator }

// MaterialLayout is the layout material descriptor sets must be allocated against.
func (r *Renderer) MaterialLayout() metadata.DescriptorSetLayoutHandle {
	return r.pipeline.MaterialLayout()
}

func (r *Renderer) Extent() metadata.Extent2D { return r.extent }

func (r *Renderer) DrawImage() metadata.ImageHandle { return r.draw }

func (r *Renderer) FrameNumber() uint64 { return r.cadence.FrameNumber() }

// Suspended is true while the surface has no area and frames are skipped.
func (r *Renderer) Suspended() bool { return r.cadence.Suspended() }

func (r *Renderer) Stats() deferred.Stats { return r.pipeline.Stats() }

func (r *Renderer) ShadowBias() shadow.Bias { return r.pipeline.ShadowBias() }

func (r *Renderer) SetShadowBias(b shadow.Bias) { r.pipeline.SetShadowBias(b) }

// WaitIdle blocks until the device has finished all submitted frames.
func (r *Renderer) WaitIdle() error {
	if r.backend == nil || r.backend.Device == nil {
		return nil
	}
	return r.backend.Device.WaitIdle()
}

// release destroys what New created, leaving the backend alone.
func (r *Renderer) release() {
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
	if r.draw.IsValid() {
		r.backend.Device.DestroyImage(r.draw)
		r.draw = 0
	}
	if r.cadence != nil {
		r.cadence.Destroy()
		r.cadence = nil
	}
}

// Destroy releases the renderer and its backend. Anything the caller created on the
// device, such as scene buffers, must be destroyed first; leftovers are returned by label.
func (r *Renderer) Destroy() []string {
	if r.backend == nil {
		return nil
	}
	if err := r.WaitIdle(); err != nil {
		core.LogWarn("renderer: wait idle on destroy: %s", err)
	}
	r.release()
	leaked := r.backend.Destroy()
	r.backend = nil
	core.LogInfo("Renderer shut down.")
	return leaked
}
