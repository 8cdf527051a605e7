package vulkan

import "sync"

type LockGroup string

const (
	// ResourceManagement guards the handle tables.
	ResourceManagement LockGroup = "resource_management"
	// QueueManagement serializes submissions and presents, which share one queue.
	QueueManagement      LockGroup = "queue_management"
	DescriptorManagement LockGroup = "descriptor_management"
	RenderpassManagement LockGroup = "renderpass_management"
)

// VulkanLockPool hands out one mutex per group, created on first use.
type VulkanLockPool struct {
	mu    sync.Mutex // Protects access to the locks map
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, exists := vs.locks[group]
	if !exists {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

// SafeCall runs fn holding the lock of group. Calls must not nest on the same group.
func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}
