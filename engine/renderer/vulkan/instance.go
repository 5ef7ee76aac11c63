//go:build !headless

package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/core"
)

/**
 * @brief The Vulkan instance shared by every device (node) of a renderer.
 */
type Instance struct {
	Handle    vk.Instance
	Allocator *vk.AllocationCallbacks

	debug          bool
	debugMessenger vk.DebugReportCallback
	hasMessenger   bool
}

func NewInstance(appName string, debug bool) (*Instance, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		core.LogError("failed to load the vulkan loader: %s", err)
		return nil, err
	}
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	inst := &Instance{debug: debug}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("TheFork Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Headless: no surface extensions are needed.
	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	requiredLayers := []string{}
	if debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		requiredLayers = append(requiredLayers, "VK_LAYER_KHRONOS_validation")
		if err := checkLayers(requiredLayers); err != nil {
			core.LogWarn("%s, continuing without validation", err)
			requiredLayers = requiredLayers[:0]
			requiredExtensions = requiredExtensions[:len(requiredExtensions)-1]
			inst.debug = false
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, inst.Allocator, &inst.Handle); res != vk.Success {
		err := vkError("failed in creating the Vulkan Instance", res)
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(inst.Handle); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if inst.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(inst.Handle, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return nil, err
		}
		inst.debugMessenger = dbg
		inst.hasMessenger = true
		core.LogDebug("Vulkan debugger created.")
	}
	return inst, nil
}

func checkLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return vkError("failed to enumerate instance layers", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return vkError("failed to enumerate instance layers", res)
	}
	for _, name := range required {
		found := false
		for j := range available {
			available[j].Deref()
			end := FindFirstZeroInByteArray(available[j].LayerName[:])
			if name == string(available[j].LayerName[:end]) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	return nil
}

// PhysicalDevices lists the GPUs visible to the instance.
func (inst *Instance) PhysicalDevices() ([]vk.PhysicalDevice, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(inst.Handle, &count, nil); res != vk.Success {
		return nil, vkError("failed to enumerate physical devices", res)
	}
	if count == 0 {
		return nil, fmt.Errorf("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(inst.Handle, &count, devices); res != vk.Success {
		return nil, vkError("failed to enumerate physical devices", res)
	}
	return devices, nil
}

func (inst *Instance) Destroy() {
	if inst.hasMessenger {
		vk.DestroyDebugReportCallback(inst.Handle, inst.debugMessenger, inst.Allocator)
	}
	vk.DestroyInstance(inst.Handle, inst.Allocator)
	core.LogInfo("Vulkan Instance destroyed.")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
