// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"unsafe"

	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/wsi"
)

// swapchain implements driver.Swapchain.
type swapchain struct {
	d      *Driver
	win    wsi.Window
	sf     C.VkSurfaceKHR
	sc     C.VkSwapchainKHR
	nimg   int
	imgs   []driver.Image
	params driver.SurfaceParams

	// The swapchain is marked as 'broken' when either
	// suboptimal or out of date errors occur.
	// It is expected that Recreate or Destroy will be
	// called eventually.
	broken bool
}

// NewSwapchain creates a new swapchain.
func (d *Driver) NewSwapchain(win wsi.Window, imageCount int) (driver.Swapchain, error) {
	if !d.exts[extSurface] {
		return nil, driver.ErrCannotPresent
	}
	s := &swapchain{
		d:    d,
		win:  win,
		nimg: imageCount,
	}
	if err := s.initSurface(); err != nil {
		return nil, err
	}
	if err := s.initSwapchain(); err != nil {
		C.vkDestroySurfaceKHR(d.inst, s.sf, nil)
		return nil, err
	}
	if err := s.initImages(); err != nil {
		C.vkDestroySwapchainKHR(d.dev, s.sc, nil)
		C.vkDestroySurfaceKHR(d.inst, s.sf, nil)
		return nil, err
	}
	return s, nil
}

// initSurface creates the window's surface and checks that
// the driver's queue can present to it.
func (s *swapchain) initSurface() error {
	// The instance is passed as a typed pointer so the
	// window system can create the surface on it.
	sf, err := s.win.VulkanSurface(s.d.inst)
	if err != nil {
		return driver.ErrWindow
	}
	s.sf = C.VkSurfaceKHR(unsafe.Pointer(sf))
	var sup C.VkBool32
	res := C.vkGetPhysicalDeviceSurfaceSupportKHR(s.d.pdev, s.d.qfam, s.sf, &sup)
	if err := checkResult("vkGetPhysicalDeviceSurfaceSupportKHR", res); err != nil {
		C.vkDestroySurfaceKHR(s.d.inst, s.sf, nil)
		return err
	}
	if sup != C.VK_TRUE {
		C.vkDestroySurfaceKHR(s.d.inst, s.sf, nil)
		return driver.ErrCannotPresent
	}
	return nil
}

// initSwapchain creates a new swapchain from s.sf,
// retiring the current one, if any.
// It sets the sc and params fields of s.
func (s *swapchain) initSwapchain() error {
	var capab C.VkSurfaceCapabilitiesKHR
	res := C.vkGetPhysicalDeviceSurfaceCapabilitiesKHR(s.d.pdev, s.sf, &capab)
	if err := checkResult("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res); err != nil {
		return err
	}
	if capab.supportedUsageFlags&C.VK_IMAGE_USAGE_TRANSFER_DST_BIT == 0 {
		return driver.ErrCannotPresent
	}

	nimg := C.uint32_t(s.nimg)
	if capab.minImageCount > nimg {
		nimg = capab.minImageCount
	} else if capab.maxImageCount != 0 && capab.maxImageCount < nimg {
		nimg = capab.maxImageCount
	}

	var extent C.VkExtent2D
	if capab.maxImageExtent == extent {
		return driver.ErrWindow
	}
	if capab.currentExtent.width == ^C.uint32_t(0) {
		extent.width = C.uint32_t(s.win.Width())
		extent.height = C.uint32_t(s.win.Height())
	} else {
		extent = capab.currentExtent
	}

	calpha := C.VkCompositeAlphaFlagBitsKHR(1)
	for range 32 {
		if C.VkFlags(calpha)&capab.supportedCompositeAlpha != 0 {
			break
		}
		calpha <<= 1
	}

	var nfmt C.uint32_t
	res = C.vkGetPhysicalDeviceSurfaceFormatsKHR(s.d.pdev, s.sf, &nfmt, nil)
	if err := checkResult("vkGetPhysicalDeviceSurfaceFormatsKHR", res); err != nil {
		return err
	}
	pfmts := (*C.VkSurfaceFormatKHR)(C.malloc(C.size_t(nfmt) * C.sizeof_VkSurfaceFormatKHR))
	defer C.free(unsafe.Pointer(pfmts))
	res = C.vkGetPhysicalDeviceSurfaceFormatsKHR(s.d.pdev, s.sf, &nfmt, pfmts)
	if err := checkResult("vkGetPhysicalDeviceSurfaceFormatsKHR", res); err != nil {
		return err
	}
	fmts := unsafe.Slice(pfmts, nfmt)
	prefFmts := []driver.PixelFmt{
		driver.BGRA8Unorm,
		driver.RGBA8Unorm,
		driver.BGRA8SRGB,
		driver.RGBA8SRGB,
	}
	ifmt := -1
fmtLoop:
	for _, pf := range prefFmts {
		for j := range fmts {
			if convPixelFmt(pf) == fmts[j].format {
				s.params.Format = pf
				ifmt = j
				break fmtLoop
			}
		}
	}
	if ifmt == -1 {
		return driver.ErrCannotPresent
	}
	switch fmts[ifmt].colorSpace {
	case C.VK_COLOR_SPACE_EXTENDED_SRGB_LINEAR_EXT:
		s.params.ColorSpace = driver.ExtendedSRGBLinear
	default:
		s.params.ColorSpace = driver.SRGBNonlinear
	}

	old := s.sc
	info := C.VkSwapchainCreateInfoKHR{
		sType:            C.VK_STRUCTURE_TYPE_SWAPCHAIN_CREATE_INFO_KHR,
		surface:          s.sf,
		minImageCount:    nimg,
		imageFormat:      fmts[ifmt].format,
		imageColorSpace:  fmts[ifmt].colorSpace,
		imageExtent:      extent,
		imageArrayLayers: 1,
		imageUsage:       C.VK_IMAGE_USAGE_TRANSFER_DST_BIT | C.VK_IMAGE_USAGE_COLOR_ATTACHMENT_BIT,
		imageSharingMode: C.VK_SHARING_MODE_EXCLUSIVE,
		preTransform:     capab.currentTransform,
		compositeAlpha:   calpha,
		presentMode:      C.VK_PRESENT_MODE_FIFO_KHR,
		clipped:          C.VK_TRUE,
		oldSwapchain:     old,
	}
	var sc C.VkSwapchainKHR
	res = C.vkCreateSwapchainKHR(s.d.dev, &info, nil, &sc)
	if old != nil {
		C.vkDestroySwapchainKHR(s.d.dev, old, nil)
		s.sc = nil
	}
	if err := checkResult("vkCreateSwapchainKHR", res); err != nil {
		return err
	}
	s.sc = sc
	s.params.MinImages = int(capab.minImageCount)
	s.params.MaxImages = int(capab.maxImageCount)
	s.params.Width = int(extent.width)
	s.params.Height = int(extent.height)
	return nil
}

// initImages fetches the images of s.sc.
func (s *swapchain) initImages() error {
	var n C.uint32_t
	res := C.vkGetSwapchainImagesKHR(s.d.dev, s.sc, &n, nil)
	if err := checkResult("vkGetSwapchainImagesKHR", res); err != nil {
		return err
	}
	p := (*C.VkImage)(C.malloc(C.size_t(n) * C.sizeof_VkImage))
	defer C.free(unsafe.Pointer(p))
	res = C.vkGetSwapchainImagesKHR(s.d.dev, s.sc, &n, p)
	if err := checkResult("vkGetSwapchainImagesKHR", res); err != nil {
		return err
	}
	s.imgs = make([]driver.Image, n)
	size := driver.Dim3D{Width: s.params.Width, Height: s.params.Height, Depth: 1}
	for i, img := range unsafe.Slice(p, n) {
		s.imgs[i] = &image{
			d:    s.d,
			img:  img,
			pf:   s.params.Format,
			size: size,
		}
	}
	return nil
}

// Images returns the swapchain's images.
func (s *swapchain) Images() []driver.Image { return s.imgs }

// Next acquires the next writable image.
func (s *swapchain) Next(sem driver.Semaphore) (int, error) {
	if s.broken {
		return -1, &driver.OpError{Op: "vkAcquireNextImageKHR", Code: int(C.VK_SUBOPTIMAL_KHR), Err: driver.ErrSwapchain}
	}
	var idx C.uint32_t
	var null C.VkFence
	res := C.vkAcquireNextImageKHR(s.d.dev, s.sc, C.UINT64_MAX, sem.(*semaphore).sem, null, &idx)
	switch res {
	case C.VK_SUCCESS:
		return int(idx), nil
	case C.VK_SUBOPTIMAL_KHR:
		// The semaphore will be signaled, so the image
		// must be presented before recreation.
		s.broken = true
		return int(idx), nil
	default:
		if res == C.VK_ERROR_OUT_OF_DATE_KHR {
			s.broken = true
		}
		return -1, checkResult("vkAcquireNextImageKHR", res)
	}
}

// Present presents the image identified by index.
func (s *swapchain) Present(index int, wait driver.Semaphore) error {
	info := (*C.VkPresentInfoKHR)(C.malloc(C.sizeof_VkPresentInfoKHR))
	defer C.free(unsafe.Pointer(info))
	sem := (*C.VkSemaphore)(C.malloc(C.sizeof_VkSemaphore))
	defer C.free(unsafe.Pointer(sem))
	sc := (*C.VkSwapchainKHR)(C.malloc(C.sizeof_VkSwapchainKHR))
	defer C.free(unsafe.Pointer(sc))
	idx := (*C.uint32_t)(C.malloc(C.sizeof_uint32_t))
	defer C.free(unsafe.Pointer(idx))
	*sem = wait.(*semaphore).sem
	*sc = s.sc
	*idx = C.uint32_t(index)
	*info = C.VkPresentInfoKHR{
		sType:              C.VK_STRUCTURE_TYPE_PRESENT_INFO_KHR,
		waitSemaphoreCount: 1,
		pWaitSemaphores:    sem,
		swapchainCount:     1,
		pSwapchains:        sc,
		pImageIndices:      idx,
	}
	s.d.qmu.Lock()
	res := C.vkQueuePresentKHR(s.d.que, info)
	s.d.qmu.Unlock()
	switch res {
	case C.VK_SUCCESS:
		return nil
	case C.VK_SUBOPTIMAL_KHR:
		// Reported by the next call to Next.
		s.broken = true
		return nil
	case C.VK_ERROR_OUT_OF_DATE_KHR:
		s.broken = true
	}
	return checkResult("vkQueuePresentKHR", res)
}

// Recreate recreates the swapchain.
func (s *swapchain) Recreate() error {
	if err := s.initSwapchain(); err != nil {
		return err
	}
	if err := s.initImages(); err != nil {
		return err
	}
	s.broken = false
	return nil
}

// Format returns the images' driver.PixelFmt.
func (s *swapchain) Format() driver.PixelFmt { return s.params.Format }

// Params returns the negotiated surface parameters.
func (s *swapchain) Params() driver.SurfaceParams { return s.params }

// Destroy destroys the swapchain.
func (s *swapchain) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		if s.sc != nil {
			C.vkDestroySwapchainKHR(s.d.dev, s.sc, nil)
		}
		C.vkDestroySurfaceKHR(s.d.inst, s.sf, nil)
	}
	*s = swapchain{}
}
