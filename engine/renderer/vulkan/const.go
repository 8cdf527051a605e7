package vulkan

import "time"

/**
 * @brief Descriptor sets the first pool of an allocator can hold. Each new
 * pool is grown by half when the previous one runs dry.
 */
const VULKAN_DESCRIPTOR_POOL_INITIAL_SETS uint32 = 64

/** @brief Upper bound for the sets of a single descriptor pool. */
const VULKAN_DESCRIPTOR_POOL_MAX_SETS uint32 = 4096

/** @brief How long an immediate submission may take before it is reported as hung. */
const VULKAN_IMMEDIATE_SUBMIT_TIMEOUT = 10 * time.Second

/** @brief Entry point every shader module exposes. */
const VULKAN_SHADER_ENTRY_POINT = "main"

/** @brief Color attachments a single render pass may use. */
const VULKAN_MAX_ATTACHMENTS = 8

/** @brief Image count the swapchain asks for when the surface allows it. */
const VULKAN_SWAPCHAIN_PREFERRED_IMAGES uint32 = 3
