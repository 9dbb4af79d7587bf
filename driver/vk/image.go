// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include "rtproc.h"
import "C"

import (
	"github.com/gviegas/rtframe/driver"
)

// image implements driver.Image.
type image struct {
	d    *Driver
	m    *memory
	img  C.VkImage
	pf   driver.PixelFmt
	size driver.Dim3D
}

// NewImage creates a new 2D image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, usg driver.Usage) (driver.Image, error) {
	var u C.VkImageUsageFlags
	if usg&driver.UShaderRead != 0 {
		u |= C.VK_IMAGE_USAGE_SAMPLED_BIT
	}
	if usg&driver.UShaderWrite != 0 {
		u |= C.VK_IMAGE_USAGE_STORAGE_BIT
	}
	if usg&driver.UCopySrc != 0 {
		u |= C.VK_IMAGE_USAGE_TRANSFER_SRC_BIT
	}
	if usg&driver.UCopyDst != 0 {
		u |= C.VK_IMAGE_USAGE_TRANSFER_DST_BIT
	}
	info := C.VkImageCreateInfo{
		sType:     C.VK_STRUCTURE_TYPE_IMAGE_CREATE_INFO,
		imageType: C.VK_IMAGE_TYPE_2D,
		format:    convPixelFmt(pf),
		extent: C.VkExtent3D{
			width:  C.uint32_t(size.Width),
			height: C.uint32_t(size.Height),
			depth:  1,
		},
		mipLevels:     1,
		arrayLayers:   1,
		samples:       C.VK_SAMPLE_COUNT_1_BIT,
		tiling:        C.VK_IMAGE_TILING_OPTIMAL,
		usage:         u,
		sharingMode:   C.VK_SHARING_MODE_EXCLUSIVE,
		initialLayout: C.VK_IMAGE_LAYOUT_UNDEFINED,
	}
	var img C.VkImage
	if err := checkResult("vkCreateImage", C.vkCreateImage(d.dev, &info, nil, &img)); err != nil {
		return nil, err
	}
	var req C.VkMemoryRequirements
	C.vkGetImageMemoryRequirements(d.dev, img, &req)
	m, err := d.newMemory(req, false, false)
	if err != nil {
		C.vkDestroyImage(d.dev, img, nil)
		return nil, err
	}
	if err = checkResult("vkBindImageMemory", C.vkBindImageMemory(d.dev, img, m.mem, 0)); err != nil {
		m.free()
		C.vkDestroyImage(d.dev, img, nil)
		return nil, err
	}
	size.Depth = 1
	return &image{
		d:    d,
		m:    m,
		img:  img,
		pf:   pf,
		size: size,
	}, nil
}

// NewView creates a new 2D image view.
func (im *image) NewView() (driver.ImageView, error) {
	info := C.VkImageViewCreateInfo{
		sType:    C.VK_STRUCTURE_TYPE_IMAGE_VIEW_CREATE_INFO,
		image:    im.img,
		viewType: C.VK_IMAGE_VIEW_TYPE_2D,
		format:   convPixelFmt(im.pf),
		subresourceRange: C.VkImageSubresourceRange{
			aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT,
			levelCount: 1,
			layerCount: 1,
		},
	}
	var view C.VkImageView
	if err := checkResult("vkCreateImageView", C.vkCreateImageView(im.d.dev, &info, nil, &view)); err != nil {
		return nil, err
	}
	return &imageView{
		i:    im,
		view: view,
	}, nil
}

// Size returns the image's size.
func (im *image) Size() driver.Dim3D { return im.size }

// Format returns the image's pixel format.
func (im *image) Format() driver.PixelFmt { return im.pf }

// Destroy destroys the image.
// Images owned by a swapchain (im.m == nil) are only
// invalidated.
func (im *image) Destroy() {
	if im == nil {
		return
	}
	if im.m != nil {
		C.vkDestroyImage(im.d.dev, im.img, nil)
		im.m.free()
	}
	*im = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	i    *image
	view C.VkImageView
}

// Destroy destroys the image view.
func (v *imageView) Destroy() {
	if v == nil {
		return
	}
	if v.i != nil && v.i.d != nil {
		C.vkDestroyImageView(v.i.d.dev, v.view, nil)
	}
	*v = imageView{}
}

// convPixelFmt converts a driver.PixelFmt to a VkFormat.
func convPixelFmt(pf driver.PixelFmt) C.VkFormat {
	switch pf {
	case driver.RGBA8Unorm:
		return C.VK_FORMAT_R8G8B8A8_UNORM
	case driver.RGBA8SRGB:
		return C.VK_FORMAT_R8G8B8A8_SRGB
	case driver.BGRA8Unorm:
		return C.VK_FORMAT_B8G8R8A8_UNORM
	case driver.BGRA8SRGB:
		return C.VK_FORMAT_B8G8R8A8_SRGB
	case driver.RGBA16Float:
		return C.VK_FORMAT_R16G16B16A16_SFLOAT
	case driver.RGBA32Float:
		return C.VK_FORMAT_R32G32B32A32_SFLOAT
	}
	return C.VK_FORMAT_UNDEFINED
}
