//go:build !headless

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

var resultNames = map[vk.Result]string{
	vk.Success:                   "VK_SUCCESS",
	vk.NotReady:                  "VK_NOT_READY",
	vk.Timeout:                   "VK_TIMEOUT",
	vk.Incomplete:                "VK_INCOMPLETE",
	vk.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
}

func VulkanResultString(result vk.Result) string {
	if name, ok := resultNames[result]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", result)
}

// vkError turns a failed result into an error wrapping the matching gpu sentinel.
func vkError(op string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %s: %w", op, VulkanResultString(result), gpu.ErrDeviceLost)
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfHostMemory:
		return fmt.Errorf("%s: %s: %w", op, VulkanResultString(result), gpu.ErrOutOfMemory)
	case vk.ErrorFormatNotSupported:
		return fmt.Errorf("%s: %s: %w", op, VulkanResultString(result), gpu.ErrUnsupportedFormat)
	}
	return fmt.Errorf("%s: %s", op, VulkanResultString(result))
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	for i := range list {
		list[i] = VulkanSafeString(list[i])
	}
	return list
}

func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

var formats = map[metadata.TextureFormat]vk.Format{
	metadata.TextureFormatR8:        vk.FormatR8Unorm,
	metadata.TextureFormatRG8:       vk.FormatR8g8Unorm,
	metadata.TextureFormatRGBA8:     vk.FormatR8g8b8a8Unorm,
	metadata.TextureFormatRGBA8SRGB: vk.FormatR8g8b8a8Srgb,
	metadata.TextureFormatBGRA8:     vk.FormatB8g8r8a8Unorm,
	metadata.TextureFormatBGRA8SRGB: vk.FormatB8g8r8a8Srgb,
	metadata.TextureFormatR16F:      vk.FormatR16Sfloat,
	metadata.TextureFormatRGBA16F:   vk.FormatR16g16b16a16Sfloat,
	metadata.TextureFormatR32F:      vk.FormatR32Sfloat,
	metadata.TextureFormatRGBA32F:   vk.FormatR32g32b32a32Sfloat,
	metadata.TextureFormatBC1:       vk.FormatBc1RgbaUnormBlock,
	metadata.TextureFormatBC1SRGB:   vk.FormatBc1RgbaSrgbBlock,
	metadata.TextureFormatBC2:       vk.FormatBc2UnormBlock,
	metadata.TextureFormatBC3:       vk.FormatBc3UnormBlock,
	metadata.TextureFormatBC3SRGB:   vk.FormatBc3SrgbBlock,
	metadata.TextureFormatBC4:       vk.FormatBc4UnormBlock,
	metadata.TextureFormatBC5:       vk.FormatBc5UnormBlock,
	metadata.TextureFormatBC7:       vk.FormatBc7UnormBlock,
	metadata.TextureFormatBC7SRGB:   vk.FormatBc7SrgbBlock,
	metadata.TextureFormatETC2RGB8:  vk.FormatEtc2R8g8b8UnormBlock,
	metadata.TextureFormatETC2RGBA8: vk.FormatEtc2R8g8b8a8UnormBlock,
	metadata.TextureFormatASTC4x4:   vk.FormatAstc4x4UnormBlock,
}

func toVkFormat(format metadata.TextureFormat) (vk.Format, error) {
	f, ok := formats[format]
	if !ok {
		return vk.FormatUndefined, fmt.Errorf("texture format %s: %w", format, gpu.ErrUnsupportedFormat)
	}
	return f, nil
}

// toImageLayout maps a resource state to the image layout it implies.
func toImageLayout(state metadata.ResourceState) vk.ImageLayout {
	switch {
	case state == metadata.ResourceStateUndefined:
		return vk.ImageLayoutUndefined
	case state.Has(metadata.ResourceStateCopySource):
		return vk.ImageLayoutTransferSrcOptimal
	case state.Has(metadata.ResourceStateCopyDest):
		return vk.ImageLayoutTransferDstOptimal
	case state.Has(metadata.ResourceStateRenderTarget):
		return vk.ImageLayoutColorAttachmentOptimal
	case state.Has(metadata.ResourceStateDepthWrite):
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case state.Has(metadata.ResourceStateDepthRead):
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case state.Has(metadata.ResourceStateUnorderedAccess):
		return vk.ImageLayoutGeneral
	case state&metadata.ResourceStateShaderResource != 0:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case state.Has(metadata.ResourceStatePresent):
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutGeneral
}

func toAccessFlags(state metadata.ResourceState) vk.AccessFlags {
	var flags vk.AccessFlagBits
	if state.Has(metadata.ResourceStateCopySource) {
		flags |= vk.AccessTransferReadBit
	}
	if state.Has(metadata.ResourceStateCopyDest) {
		flags |= vk.AccessTransferWriteBit
	}
	if state.Has(metadata.ResourceStateVertexAndConstantBuffer) {
		flags |= vk.AccessUniformReadBit | vk.AccessVertexAttributeReadBit
	}
	if state.Has(metadata.ResourceStateIndexBuffer) {
		flags |= vk.AccessIndexReadBit
	}
	if state.Has(metadata.ResourceStateUnorderedAccess) {
		flags |= vk.AccessShaderReadBit | vk.AccessShaderWriteBit
	}
	if state.Has(metadata.ResourceStateIndirectArgument) {
		flags |= vk.AccessIndirectCommandReadBit
	}
	if state.Has(metadata.ResourceStateRenderTarget) {
		flags |= vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit
	}
	if state.Has(metadata.ResourceStateDepthWrite) {
		flags |= vk.AccessDepthStencilAttachmentWriteBit
	}
	if state.Has(metadata.ResourceStateDepthRead) {
		flags |= vk.AccessDepthStencilAttachmentReadBit
	}
	if state&metadata.ResourceStateShaderResource != 0 {
		flags |= vk.AccessShaderReadBit
	}
	if state.Has(metadata.ResourceStatePresent) {
		flags |= vk.AccessMemoryReadBit
	}
	return vk.AccessFlags(flags)
}
