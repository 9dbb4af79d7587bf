// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API.
// It requires the VK_KHR_acceleration_structure and
// VK_KHR_ray_tracing_pipeline device extensions.
package vk

// #cgo linux LDFLAGS: -lvulkan
// #cgo windows LDFLAGS: -lvulkan-1
// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/log"
)

const driverName = "vulkan"
const requiredAPIVersion = C.VK_API_VERSION_1_2

var logger = log.New("vk")

// Driver implements driver.Driver, driver.GPU,
// driver.Tracer and driver.Presenter.
type Driver struct {
	inst  C.VkInstance
	pdev  C.VkPhysicalDevice
	dname string
	dvers C.uint32_t
	dev   C.VkDevice
	que   C.VkQueue
	qfam  C.uint32_t

	// Queue submission requires that the queue handle
	// be externally synchronized.
	qmu sync.Mutex

	// Enabled extensions, indexed by ext* constants.
	exts [extN]bool

	mprop C.VkPhysicalDeviceMemoryProperties

	lim   driver.Limits
	rtlim driver.RTLimits
}

func init() {
	driver.Register(&Driver{})
}

// initInstance initializes the Vulkan instance.
func (d *Driver) initInstance() error {
	var vers C.uint32_t
	if err := checkResult("vkEnumerateInstanceVersion", C.vkEnumerateInstanceVersion(&vers)); err != nil {
		return err
	}
	if vers < requiredAPIVersion || isVariant(vers) {
		return driver.ErrNotInstalled
	}
	appInfo := (*C.VkApplicationInfo)(C.malloc(C.sizeof_VkApplicationInfo))
	defer C.free(unsafe.Pointer(appInfo))
	*appInfo = C.VkApplicationInfo{
		sType:      C.VK_STRUCTURE_TYPE_APPLICATION_INFO,
		apiVersion: requiredAPIVersion,
	}
	info := C.VkInstanceCreateInfo{
		sType:            C.VK_STRUCTURE_TYPE_INSTANCE_CREATE_INFO,
		pApplicationInfo: appInfo,
	}
	free := d.setInstanceExts(&info)
	defer free()
	return checkResult("vkCreateInstance", C.vkCreateInstance(&info, nil, &d.inst))
}

// initDevice initializes the Vulkan device.
func (d *Driver) initDevice() error {
	var n C.uint32_t
	if err := checkResult("vkEnumeratePhysicalDevices", C.vkEnumeratePhysicalDevices(d.inst, &n, nil)); err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrNoDevice
	}
	p := (*C.VkPhysicalDevice)(C.malloc(C.sizeof_VkPhysicalDevice * C.size_t(n)))
	defer C.free(unsafe.Pointer(p))
	if err := checkResult("vkEnumeratePhysicalDevices", C.vkEnumeratePhysicalDevices(d.inst, &n, p)); err != nil {
		return err
	}

	// Select a device that supports ray tracing and has a
	// queue capable of both compute and graphics operations.
	// Discrete GPUs are preferred.
	weight := 0
	for _, dev := range unsafe.Slice(p, n) {
		var prop C.VkPhysicalDeviceProperties
		C.vkGetPhysicalDeviceProperties(dev, &prop)
		if prop.apiVersion < requiredAPIVersion || isVariant(prop.apiVersion) {
			continue
		}
		exts, err := deviceExts(dev)
		if err != nil || !hasExts(deviceExtNames[:], exts) {
			continue
		}
		fam, ok := queueFamily(dev)
		if !ok {
			continue
		}
		wgt := 1
		switch prop.deviceType {
		case C.VK_PHYSICAL_DEVICE_TYPE_DISCRETE_GPU:
			wgt += 2
		case C.VK_PHYSICAL_DEVICE_TYPE_INTEGRATED_GPU:
			wgt++
		}
		if wgt > weight {
			d.pdev = dev
			prop.deviceName[len(prop.deviceName)-1] = 0
			d.dname = C.GoString(&prop.deviceName[0])
			d.dvers = prop.apiVersion
			d.qfam = fam
			d.setLimits(&prop.limits)
			weight = wgt
		}
	}
	if weight == 0 {
		return driver.ErrNoDevice
	}
	logger.Noticef("using device '%s' (Vulkan %d.%d)", d.dname, versionMajor(d.dvers), versionMinor(d.dvers))
	C.vkGetPhysicalDeviceMemoryProperties(d.pdev, &d.mprop)
	d.setRTLimits()

	quePrio := (*C.float)(C.malloc(C.sizeof_float))
	defer C.free(unsafe.Pointer(quePrio))
	*quePrio = 1.0
	queInfo := (*C.VkDeviceQueueCreateInfo)(C.malloc(C.sizeof_VkDeviceQueueCreateInfo))
	defer C.free(unsafe.Pointer(queInfo))
	*queInfo = C.VkDeviceQueueCreateInfo{
		sType:            C.VK_STRUCTURE_TYPE_DEVICE_QUEUE_CREATE_INFO,
		queueFamilyIndex: d.qfam,
		queueCount:       1,
		pQueuePriorities: quePrio,
	}
	info := C.VkDeviceCreateInfo{
		sType:                C.VK_STRUCTURE_TYPE_DEVICE_CREATE_INFO,
		queueCreateInfoCount: 1,
		pQueueCreateInfos:    queInfo,
	}
	freeExts := d.setDeviceExts(&info)
	defer freeExts()
	freeFeat := setFeatures(&info)
	defer freeFeat()
	if err := checkResult("vkCreateDevice", C.vkCreateDevice(d.pdev, &info, nil, &d.dev)); err != nil {
		return err
	}
	if C.loadRTProcs(d.dev) != C.VK_TRUE {
		return driver.ErrCannotTrace
	}
	C.vkGetDeviceQueue(d.dev, d.qfam, 0, &d.que)
	return nil
}

// queueFamily returns the index of a queue family that
// supports both graphics and compute operations.
func queueFamily(dev C.VkPhysicalDevice) (C.uint32_t, bool) {
	var n C.uint32_t
	C.vkGetPhysicalDeviceQueueFamilyProperties(dev, &n, nil)
	p := (*C.VkQueueFamilyProperties)(C.malloc(C.sizeof_VkQueueFamilyProperties * C.size_t(n)))
	defer C.free(unsafe.Pointer(p))
	C.vkGetPhysicalDeviceQueueFamilyProperties(dev, &n, p)
	flg := C.VkFlags(C.VK_QUEUE_GRAPHICS_BIT | C.VK_QUEUE_COMPUTE_BIT)
	for i, qp := range unsafe.Slice(p, n) {
		if qp.queueFlags&flg == flg {
			return C.uint32_t(i), true
		}
	}
	return 0, false
}

// setLimits sets d.lim.
func (d *Driver) setLimits(lim *C.VkPhysicalDeviceLimits) {
	d.lim = driver.Limits{
		DeviceName:       d.dname,
		MaxImage2D:       int(lim.maxImageDimension2D),
		MinConstantAlign: int64(lim.minUniformBufferOffsetAlignment),
		MaxConstantRange: int64(lim.maxUniformBufferRange),
	}
}

// setRTLimits sets d.rtlim.
func (d *Driver) setRTLimits() {
	rtp := (*C.VkPhysicalDeviceRayTracingPipelinePropertiesKHR)(C.malloc(C.sizeof_VkPhysicalDeviceRayTracingPipelinePropertiesKHR))
	defer C.free(unsafe.Pointer(rtp))
	asp := (*C.VkPhysicalDeviceAccelerationStructurePropertiesKHR)(C.malloc(C.sizeof_VkPhysicalDeviceAccelerationStructurePropertiesKHR))
	defer C.free(unsafe.Pointer(asp))
	*asp = C.VkPhysicalDeviceAccelerationStructurePropertiesKHR{
		sType: C.VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_PROPERTIES_KHR,
	}
	*rtp = C.VkPhysicalDeviceRayTracingPipelinePropertiesKHR{
		sType: C.VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_PROPERTIES_KHR,
		pNext: unsafe.Pointer(asp),
	}
	prop := (*C.VkPhysicalDeviceProperties2)(C.malloc(C.sizeof_VkPhysicalDeviceProperties2))
	defer C.free(unsafe.Pointer(prop))
	*prop = C.VkPhysicalDeviceProperties2{
		sType: C.VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_PROPERTIES_2,
		pNext: unsafe.Pointer(rtp),
	}
	C.vkGetPhysicalDeviceProperties2(d.pdev, prop)
	d.rtlim = driver.RTLimits{
		HandleSize:   int64(rtp.shaderGroupHandleSize),
		HandleAlign:  int64(rtp.shaderGroupHandleAlignment),
		BaseAlign:    int64(rtp.shaderGroupBaseAlignment),
		ScratchAlign: int64(asp.minAccelerationStructureScratchOffsetAlignment),
		MaxRecursion: int(rtp.maxRayRecursionDepth),
		MaxDispatch:  int64(rtp.maxRayDispatchInvocationCount),
	}
}

// setFeatures enables the features that ray tracing
// depends on.
// Call the free closure to deallocate the feature chain.
func setFeatures(info *C.VkDeviceCreateInfo) (free func()) {
	v12 := (*C.VkPhysicalDeviceVulkan12Features)(C.malloc(C.sizeof_VkPhysicalDeviceVulkan12Features))
	as := (*C.VkPhysicalDeviceAccelerationStructureFeaturesKHR)(C.malloc(C.sizeof_VkPhysicalDeviceAccelerationStructureFeaturesKHR))
	rt := (*C.VkPhysicalDeviceRayTracingPipelineFeaturesKHR)(C.malloc(C.sizeof_VkPhysicalDeviceRayTracingPipelineFeaturesKHR))
	*rt = C.VkPhysicalDeviceRayTracingPipelineFeaturesKHR{
		sType:              C.VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_FEATURES_KHR,
		rayTracingPipeline: C.VK_TRUE,
	}
	*as = C.VkPhysicalDeviceAccelerationStructureFeaturesKHR{
		sType:                 C.VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_FEATURES_KHR,
		pNext:                 unsafe.Pointer(rt),
		accelerationStructure: C.VK_TRUE,
	}
	*v12 = C.VkPhysicalDeviceVulkan12Features{
		sType:               C.VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_VULKAN_1_2_FEATURES,
		pNext:               unsafe.Pointer(as),
		bufferDeviceAddress: C.VK_TRUE,
	}
	info.pNext = unsafe.Pointer(v12)
	return func() {
		C.free(unsafe.Pointer(v12))
		C.free(unsafe.Pointer(as))
		C.free(unsafe.Pointer(rt))
	}
}

// Open initializes the driver.
func (d *Driver) Open() (gpu driver.GPU, err error) {
	if d.dev != nil {
		return d, nil
	}
	if err = d.initInstance(); err != nil {
		goto fail
	}
	if err = d.initDevice(); err != nil {
		goto fail
	}
	return d, nil
fail:
	d.Close()
	return nil, err
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	if d.inst != nil {
		if d.dev != nil {
			C.vkDeviceWaitIdle(d.dev)
			C.vkDestroyDevice(d.dev, nil)
		}
		C.vkDestroyInstance(d.inst, nil)
	}
	C.clearRTProcs()
	*d = Driver{}
}

// Driver returns the receiver (for driver.GPU conformance).
func (d *Driver) Driver() driver.Driver { return d }

// Limits returns the implementation limits.
func (d *Driver) Limits() driver.Limits { return d.lim }

// RTLimits returns the ray tracing limits.
func (d *Driver) RTLimits() driver.RTLimits { return d.rtlim }

// WaitIdle blocks until the device is idle.
func (d *Driver) WaitIdle() error {
	return checkResult("vkDeviceWaitIdle", C.vkDeviceWaitIdle(d.dev))
}

// memory represents a device memory allocation.
type memory struct {
	d    *Driver
	size int64
	vis  bool
	p    []byte
	mem  C.VkDeviceMemory
}

// selectMemory selects a suitable memory type from the device.
// It returns the index of the selected memory, or -1 if none suffices.
func (d *Driver) selectMemory(typeBits uint, prop C.VkMemoryPropertyFlags) int {
	for i := 0; i < int(d.mprop.memoryTypeCount); i++ {
		if 1<<i&typeBits != 0 {
			flags := d.mprop.memoryTypes[i].propertyFlags
			if flags&prop == prop {
				return i
			}
		}
	}
	return -1
}

// newMemory creates a new memory allocation.
// If addr is set, the memory can back resources whose
// device address is queried.
func (d *Driver) newMemory(req C.VkMemoryRequirements, visible, addr bool) (*memory, error) {
	var prop C.VkMemoryPropertyFlags = C.VK_MEMORY_PROPERTY_DEVICE_LOCAL_BIT
	if visible {
		prop |= C.VK_MEMORY_PROPERTY_HOST_VISIBLE_BIT | C.VK_MEMORY_PROPERTY_HOST_COHERENT_BIT
	}
	typ := d.selectMemory(uint(req.memoryTypeBits), prop)
	if typ == -1 {
		// Device-local memory is desired but not required.
		prop &^= C.VK_MEMORY_PROPERTY_DEVICE_LOCAL_BIT
		typ = d.selectMemory(uint(req.memoryTypeBits), prop)
		if typ == -1 {
			return nil, errors.New("vk: no suitable memory type found")
		}
	}

	info := (*C.VkMemoryAllocateInfo)(C.malloc(C.sizeof_VkMemoryAllocateInfo))
	defer C.free(unsafe.Pointer(info))
	*info = C.VkMemoryAllocateInfo{
		sType:           C.VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_INFO,
		allocationSize:  req.size,
		memoryTypeIndex: C.uint32_t(typ),
	}
	if addr {
		flags := (*C.VkMemoryAllocateFlagsInfo)(C.malloc(C.sizeof_VkMemoryAllocateFlagsInfo))
		defer C.free(unsafe.Pointer(flags))
		*flags = C.VkMemoryAllocateFlagsInfo{
			sType: C.VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_FLAGS_INFO,
			flags: C.VK_MEMORY_ALLOCATE_DEVICE_ADDRESS_BIT,
		}
		info.pNext = unsafe.Pointer(flags)
	}
	var mem C.VkDeviceMemory
	if err := checkResult("vkAllocateMemory", C.vkAllocateMemory(d.dev, info, nil, &mem)); err != nil {
		return nil, err
	}
	return &memory{
		d:    d,
		size: int64(req.size),
		vis:  visible,
		mem:  mem,
	}, nil
}

// mmap maps the memory for host access.
// The memory must be host visible and bound to a resource.
func (m *memory) mmap() error {
	if !m.vis {
		panic("cannot map memory that is not host visible")
	}
	if len(m.p) == 0 {
		var p unsafe.Pointer
		if err := checkResult("vkMapMemory", C.vkMapMemory(m.d.dev, m.mem, 0, C.VK_WHOLE_SIZE, 0, &p)); err != nil {
			return err
		}
		m.p = unsafe.Slice((*byte)(p), m.size)
	}
	return nil
}

// free deallocates and invalidates the memory.
func (m *memory) free() {
	if m == nil {
		return
	}
	if m.d != nil {
		if len(m.p) != 0 {
			C.vkUnmapMemory(m.d.dev, m.mem)
		}
		C.vkFreeMemory(m.d.dev, m.mem, nil)
	}
	*m = memory{}
}

// checkResult returns a *driver.OpError derived from a
// VkResult value, or nil if res does not indicate an error.
// op is the name of the call that produced res.
func checkResult(op string, res C.VkResult) error {
	if res >= 0 {
		// Not an error: VK_ERROR_* values are all negative.
		return nil
	}
	var err error
	switch res {
	case C.VK_ERROR_OUT_OF_HOST_MEMORY:
		err = driver.ErrNoHostMemory
	case C.VK_ERROR_OUT_OF_DEVICE_MEMORY:
		err = driver.ErrNoDeviceMemory
	case C.VK_ERROR_DEVICE_LOST:
		err = driver.ErrFatal
	case C.VK_ERROR_OUT_OF_DATE_KHR:
		err = driver.ErrSwapchain
	case C.VK_ERROR_SURFACE_LOST_KHR, C.VK_ERROR_NATIVE_WINDOW_IN_USE_KHR:
		err = driver.ErrWindow
	case C.VK_ERROR_EXTENSION_NOT_PRESENT, C.VK_ERROR_FEATURE_NOT_PRESENT:
		err = errNoFeature
	case C.VK_ERROR_INITIALIZATION_FAILED, C.VK_ERROR_INCOMPATIBLE_DRIVER:
		err = driver.ErrNotInstalled
	default:
		err = errUnknown
	}
	return &driver.OpError{Op: op, Code: int(res), Err: err}
}

var (
	errNoFeature = errors.New("vk: extension or feature not present")
	errUnknown   = errors.New("vk: unknown error")
)

// DeviceName returns the name of the VkDevice that the driver
// is using.
func (d *Driver) DeviceName() string { return d.dname }

// DeviceVersion returns the version of the VkDevice that
// the driver is using.
func (d *Driver) DeviceVersion() (major, minor, patch int) {
	major = versionMajor(d.dvers)
	minor = versionMinor(d.dvers)
	patch = versionPatch(d.dvers)
	return
}

func versionMajor(v C.uint32_t) int { return int(v >> 22 & 0x7f) }

func versionMinor(v C.uint32_t) int { return int(v >> 12 & 0x3ff) }

func versionPatch(v C.uint32_t) int { return int(v & 0xfff) }

// isVariant returns whether version v identifies a variant
// implementation of the Vulkan API.
func isVariant(v C.uint32_t) bool { return v>>29 != 0 }
