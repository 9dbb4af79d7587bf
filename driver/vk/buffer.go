// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include "rtproc.h"
import "C"

import (
	"github.com/gviegas/rtframe/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	m    *memory
	buf  C.VkBuffer
	addr uint64
}

// bufferUsages maps driver.Usage bits to the buffer
// usage flags they require.
var bufferUsages = [...]struct {
	usg driver.Usage
	f   C.VkBufferUsageFlags
}{
	{driver.UShaderRead | driver.UShaderWrite, C.VK_BUFFER_USAGE_STORAGE_BUFFER_BIT},
	{driver.UShaderConst, C.VK_BUFFER_USAGE_UNIFORM_BUFFER_BIT},
	{driver.UAccelInput, C.VK_BUFFER_USAGE_ACCELERATION_STRUCTURE_BUILD_INPUT_READ_ONLY_BIT_KHR},
	{driver.UAccelStorage, C.VK_BUFFER_USAGE_ACCELERATION_STRUCTURE_STORAGE_BIT_KHR | C.VK_BUFFER_USAGE_STORAGE_BUFFER_BIT},
	{driver.UShaderTable, C.VK_BUFFER_USAGE_SHADER_BINDING_TABLE_BIT_KHR},
}

// NewBuffer creates a new buffer.
// Every buffer can be copied to and from, and has a
// device address.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (_ driver.Buffer, err error) {
	flags := C.VkBufferUsageFlags(C.VK_BUFFER_USAGE_SHADER_DEVICE_ADDRESS_BIT |
		C.VK_BUFFER_USAGE_TRANSFER_SRC_BIT |
		C.VK_BUFFER_USAGE_TRANSFER_DST_BIT)
	for _, x := range bufferUsages {
		if usg&x.usg != 0 {
			flags |= x.f
		}
	}
	info := C.VkBufferCreateInfo{
		sType:       C.VK_STRUCTURE_TYPE_BUFFER_CREATE_INFO,
		size:        C.VkDeviceSize(size),
		usage:       flags,
		sharingMode: C.VK_SHARING_MODE_EXCLUSIVE,
	}
	b := new(buffer)
	if err = checkResult("vkCreateBuffer", C.vkCreateBuffer(d.dev, &info, nil, &b.buf)); err != nil {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		if b.m != nil {
			b.m.free()
		}
		C.vkDestroyBuffer(d.dev, b.buf, nil)
	}()

	var req C.VkMemoryRequirements
	C.vkGetBufferMemoryRequirements(d.dev, b.buf, &req)
	if b.m, err = d.newMemory(req, visible, true); err != nil {
		return nil, err
	}
	if err = checkResult("vkBindBufferMemory", C.vkBindBufferMemory(d.dev, b.buf, b.m.mem, 0)); err != nil {
		return nil, err
	}
	// Host-visible memory stays mapped until Destroy.
	if visible {
		if err = b.m.mmap(); err != nil {
			return nil, err
		}
	}
	addrInfo := C.VkBufferDeviceAddressInfo{
		sType:  C.VK_STRUCTURE_TYPE_BUFFER_DEVICE_ADDRESS_INFO,
		buffer: b.buf,
	}
	b.addr = uint64(C.vkGetBufferDeviceAddress(d.dev, &addrInfo))
	return b, nil
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.m.vis }

// Bytes returns the persistent mapping of a visible
// buffer, or nil.
func (b *buffer) Bytes() []byte { return b.m.p }

// Cap returns the capacity of the buffer in bytes.
func (b *buffer) Cap() int64 { return b.m.size }

// Address returns the device address of the buffer.
func (b *buffer) Address() uint64 { return b.addr }

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil {
		return
	}
	if b.m != nil {
		C.vkDestroyBuffer(b.m.d.dev, b.buf, nil)
		b.m.free()
	}
	*b = buffer{}
}
