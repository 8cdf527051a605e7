package renderer

import (
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/vulkan"
)

// Allocator is a descriptor allocator that can release every set it handed out.
type Allocator interface {
	metadata.DescriptorAllocator
	Destroy()
}

// Backend is the device side the renderer drives. Once handed to New, the renderer owns
// all of it.
type Backend struct {
	Device    metadata.Device
	Presenter metadata.Presenter
	Allocator Allocator
}

// NewVulkanBackend opens a Vulkan device on window, with a swapchain and a growable
// descriptor allocator.
func NewVulkanBackend(window vulkan.Surface, cfg *config.Config) (*Backend, error) {
	device, err := vulkan.NewBackend(window, cfg.Window.Title, cfg.Renderer.Validation)
	if err != nil {
		return nil, core.Wrap(err, "failed to create the vulkan device")
	}
	swapchain, err := vulkan.NewSwapchain(device, window, cfg.Renderer.VSync)
	if err != nil {
		device.Destroy()
		return nil, core.Wrap(err, "failed to create the swapchain")
	}
	allocator, err := vulkan.NewDescriptorAllocator(device, vulkan.DefaultPoolRatios)
	if err != nil {
		swapchain.Destroy()
		device.Destroy()
		return nil, core.Wrap(err, "failed to create the descriptor allocator")
	}
	return &Backend{
		Device:    device,
		Presenter: swapchain,
		Allocator: allocator,
	}, nil
}

// Destroy releases the backend in reverse creation order and reports leaked resources.
func (b *Backend) Destroy() []string {
	if b.Device == nil {
		return nil
	}
	if err := b.Device.WaitIdle(); err != nil {
		core.LogWarn("renderer backend: wait idle on destroy: %s", err)
	}
	if b.Allocator != nil {
		b.Allocator.Destroy()
	}
	if b.Presenter != nil {
		b.Presenter.Destroy()
	}
	leaked := b.Device.Destroy()
	b.Device, b.Presenter, b.Allocator = nil, nil, nil
	return leaked
}
