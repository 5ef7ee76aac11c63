// Package vulkan implements gpu.Device on a headless Vulkan device. It is compiled
// only without the headless build tag.
package vulkan
