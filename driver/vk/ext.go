// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"unsafe"
)

const (
	// Instance extensions.
	extSurface, extSurfaceS               = iota, "VK_KHR_surface"
	extWaylandSurface, extWaylandSurfaceS = iota, "VK_KHR_wayland_surface"
	extXCBSurface, extXCBSurfaceS         = iota, "VK_KHR_xcb_surface"
	extXlibSurface, extXlibSurfaceS       = iota, "VK_KHR_xlib_surface"
	extWin32Surface, extWin32SurfaceS     = iota, "VK_KHR_win32_surface"
	extMetalSurface, extMetalSurfaceS     = iota, "VK_EXT_metal_surface"

	extN = iota
)

// Device extensions. All of them are required.
var deviceExtNames = [...]string{
	"VK_KHR_swapchain",
	"VK_KHR_deferred_host_operations",
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
}

// Surface extensions that are enabled when available.
// The window system picks whichever one matches the
// platform in use.
var surfaceExts = [...]struct {
	ext  int
	name string
}{
	{extWaylandSurface, extWaylandSurfaceS},
	{extXCBSurface, extXCBSurfaceS},
	{extXlibSurface, extXlibSurfaceS},
	{extWin32Surface, extWin32SurfaceS},
	{extMetalSurface, extMetalSurfaceS},
}

// setInstanceExts sets the instance extensions of info.
// Call the free closure to deallocate the names array.
func (d *Driver) setInstanceExts(info *C.VkInstanceCreateInfo) (free func()) {
	from, err := instanceExts()
	if err != nil || !hasExts([]string{extSurfaceS}, from) {
		logger.Warning("surface extension not present")
		return func() {}
	}
	exts := []string{extSurfaceS}
	d.exts[extSurface] = true
	for _, e := range surfaceExts {
		if hasExts([]string{e.name}, from) {
			exts = append(exts, e.name)
			d.exts[e.ext] = true
		}
	}
	names, free := cstrings(exts)
	info.enabledExtensionCount = C.uint32_t(len(exts))
	info.ppEnabledExtensionNames = names
	return free
}

// setDeviceExts sets the device extensions of info.
// Call the free closure to deallocate the names array.
func (d *Driver) setDeviceExts(info *C.VkDeviceCreateInfo) (free func()) {
	names, free := cstrings(deviceExtNames[:])
	info.enabledExtensionCount = C.uint32_t(len(deviceExtNames))
	info.ppEnabledExtensionNames = names
	return free
}

// instanceExts returns a list containing the names of all instance extensions
// advertised by the Vulkan implementation.
func instanceExts() (exts []string, err error) {
	var n C.uint32_t
	if err = checkResult("vkEnumerateInstanceExtensionProperties", C.vkEnumerateInstanceExtensionProperties(nil, &n, nil)); err != nil || n == 0 {
		return
	}
	p := (*C.VkExtensionProperties)(C.malloc(C.sizeof_VkExtensionProperties * C.size_t(n)))
	defer C.free(unsafe.Pointer(p))
	if err = checkResult("vkEnumerateInstanceExtensionProperties", C.vkEnumerateInstanceExtensionProperties(nil, &n, p)); err != nil {
		return
	}
	return extNames(unsafe.Slice(p, n)), nil
}

// deviceExts returns a list containing the names of all device extensions
// advertised by the Vulkan implementation.
func deviceExts(d C.VkPhysicalDevice) (exts []string, err error) {
	var n C.uint32_t
	if err = checkResult("vkEnumerateDeviceExtensionProperties", C.vkEnumerateDeviceExtensionProperties(d, nil, &n, nil)); err != nil || n == 0 {
		return
	}
	p := (*C.VkExtensionProperties)(C.malloc(C.sizeof_VkExtensionProperties * C.size_t(n)))
	defer C.free(unsafe.Pointer(p))
	if err = checkResult("vkEnumerateDeviceExtensionProperties", C.vkEnumerateDeviceExtensionProperties(d, nil, &n, p)); err != nil {
		return
	}
	return extNames(unsafe.Slice(p, n)), nil
}

func extNames(props []C.VkExtensionProperties) []string {
	exts := make([]string, len(props))
	for i := range props {
		props[i].extensionName[len(props[i].extensionName)-1] = 0
		exts[i] = C.GoString(&props[i].extensionName[0])
	}
	return exts
}

// hasExts returns whether exts is a subset of from.
func hasExts(exts []string, from []string) bool {
extLoop:
	for _, e := range exts {
		for _, f := range from {
			if e == f {
				continue extLoop
			}
		}
		return false
	}
	return true
}

// cstrings creates an array of C strings that matches the
// contents of s.
// Call the free closure to deallocate the array and strings.
func cstrings(s []string) (names **C.char, free func()) {
	names = (**C.char)(C.malloc(C.size_t(unsafe.Sizeof(*names)) * C.size_t(len(s))))
	cs := unsafe.Slice(names, len(s))
	for i := range s {
		cs[i] = C.CString(s[i])
	}
	free = func() {
		for _, x := range cs {
			C.free(unsafe.Pointer(x))
		}
		C.free(unsafe.Pointer(names))
	}
	return
}
