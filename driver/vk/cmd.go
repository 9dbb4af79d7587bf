// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"unsafe"

	"github.com/gviegas/rtframe/driver"
)

// cmdPool implements driver.CmdPool.
type cmdPool struct {
	d    *Driver
	pool C.VkCommandPool
	cb   cmdBuffer
}

// NewCmdPool creates a new command pool with a single
// command buffer.
func (d *Driver) NewCmdPool() (driver.CmdPool, error) {
	var pool C.VkCommandPool
	poolInfo := C.VkCommandPoolCreateInfo{
		sType:            C.VK_STRUCTURE_TYPE_COMMAND_POOL_CREATE_INFO,
		flags:            C.VK_COMMAND_POOL_CREATE_TRANSIENT_BIT,
		queueFamilyIndex: d.qfam,
	}
	if err := checkResult("vkCreateCommandPool", C.vkCreateCommandPool(d.dev, &poolInfo, nil, &pool)); err != nil {
		return nil, err
	}
	var cb C.VkCommandBuffer
	cbInfo := C.VkCommandBufferAllocateInfo{
		sType:              C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_ALLOCATE_INFO,
		commandPool:        pool,
		level:              C.VK_COMMAND_BUFFER_LEVEL_PRIMARY,
		commandBufferCount: 1,
	}
	if err := checkResult("vkAllocateCommandBuffers", C.vkAllocateCommandBuffers(d.dev, &cbInfo, &cb)); err != nil {
		C.vkDestroyCommandPool(d.dev, pool, nil)
		return nil, err
	}
	p := &cmdPool{
		d:    d,
		pool: pool,
	}
	p.cb = cmdBuffer{d: d, cb: cb}
	return p, nil
}

// CmdBuffer returns the pool's command buffer.
func (p *cmdPool) CmdBuffer() driver.CmdBuffer { return &p.cb }

// Reset resets the pool, recycling its command buffer.
func (p *cmdPool) Reset() error {
	if err := checkResult("vkResetCommandPool", C.vkResetCommandPool(p.d.dev, p.pool, 0)); err != nil {
		return err
	}
	p.cb.begun = false
	return nil
}

// Destroy destroys the command pool.
func (p *cmdPool) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		C.vkFreeCommandBuffers(p.d.dev, p.pool, 1, &p.cb.cb)
		C.vkDestroyCommandPool(p.d.dev, p.pool, nil)
	}
	*p = cmdPool{}
}

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	d     *Driver
	cb    C.VkCommandBuffer
	begun bool
}

// Begin puts the command buffer in the recording state.
func (cb *cmdBuffer) Begin() error {
	if cb.begun {
		return nil
	}
	info := C.VkCommandBufferBeginInfo{
		sType: C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_BEGIN_INFO,
		flags: C.VK_COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT,
	}
	if err := checkResult("vkBeginCommandBuffer", C.vkBeginCommandBuffer(cb.cb, &info)); err != nil {
		return err
	}
	cb.begun = true
	return nil
}

// End puts the command buffer in the executable state.
func (cb *cmdBuffer) End() error {
	if !cb.begun {
		return nil
	}
	cb.begun = false
	return checkResult("vkEndCommandBuffer", C.vkEndCommandBuffer(cb.cb))
}

// Barrier records global memory barriers.
func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	for i := range b {
		mb := C.VkMemoryBarrier{
			sType:         C.VK_STRUCTURE_TYPE_MEMORY_BARRIER,
			srcAccessMask: convAccess(b[i].AccessBefore),
			dstAccessMask: convAccess(b[i].AccessAfter),
		}
		C.vkCmdPipelineBarrier(cb.cb, convSync(b[i].SyncBefore), convSync(b[i].SyncAfter), 0, 1, &mb, 0, nil, 0, nil)
	}
}

// Transition records image layout transitions.
func (cb *cmdBuffer) Transition(t []driver.Transition) {
	for i := range t {
		ib := C.VkImageMemoryBarrier{
			sType:               C.VK_STRUCTURE_TYPE_IMAGE_MEMORY_BARRIER,
			srcAccessMask:       convAccess(t[i].AccessBefore),
			dstAccessMask:       convAccess(t[i].AccessAfter),
			oldLayout:           convLayout(t[i].LayoutBefore),
			newLayout:           convLayout(t[i].LayoutAfter),
			srcQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
			dstQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
			image:               t[i].Img.(*image).img,
			subresourceRange: C.VkImageSubresourceRange{
				aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT,
				levelCount: 1,
				layerCount: 1,
			},
		}
		C.vkCmdPipelineBarrier(cb.cb, convSync(t[i].SyncBefore), convSync(t[i].SyncAfter), 0, 0, nil, 0, nil, 1, &ib)
	}
}

// CopyBuffer records a buffer copy.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	reg := C.VkBufferCopy{
		srcOffset: C.VkDeviceSize(param.FromOff),
		dstOffset: C.VkDeviceSize(param.ToOff),
		size:      C.VkDeviceSize(param.Size),
	}
	C.vkCmdCopyBuffer(cb.cb, param.From.(*buffer).buf, param.To.(*buffer).buf, 1, &reg)
}

// CopyImage records an image copy.
func (cb *cmdBuffer) CopyImage(param *driver.ImageCopy) {
	sub := C.VkImageSubresourceLayers{
		aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT,
		layerCount: 1,
	}
	reg := C.VkImageCopy{
		srcSubresource: sub,
		srcOffset: C.VkOffset3D{
			x: C.int32_t(param.FromOff.X),
			y: C.int32_t(param.FromOff.Y),
			z: C.int32_t(param.FromOff.Z),
		},
		dstSubresource: sub,
		dstOffset: C.VkOffset3D{
			x: C.int32_t(param.ToOff.X),
			y: C.int32_t(param.ToOff.Y),
			z: C.int32_t(param.ToOff.Z),
		},
		extent: C.VkExtent3D{
			width:  C.uint32_t(param.Size.Width),
			height: C.uint32_t(param.Size.Height),
			depth:  C.uint32_t(max(1, param.Size.Depth)),
		},
	}
	C.vkCmdCopyImage(cb.cb, param.From.(*image).img, C.VK_IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL,
		param.To.(*image).img, C.VK_IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL, 1, &reg)
}

// SetRTPipeline binds a ray tracing pipeline and one copy
// of its descriptor set.
func (cb *cmdBuffer) SetRTPipeline(pl driver.RTPipeline, descCopy int) {
	p := pl.(*rtPipeline)
	C.vkCmdBindPipeline(cb.cb, C.VK_PIPELINE_BIND_POINT_RAY_TRACING_KHR, p.pl)
	if len(p.sets) > 0 {
		set := p.sets[descCopy]
		C.vkCmdBindDescriptorSets(cb.cb, C.VK_PIPELINE_BIND_POINT_RAY_TRACING_KHR, p.layout, 0, 1, &set, 0, nil)
	}
}

// TraceRays records a ray dispatch.
func (cb *cmdBuffer) TraceRays(param *driver.TraceParam) {
	var call C.VkStridedDeviceAddressRegionKHR
	rgen := convRegion(&param.RayGen)
	miss := convRegion(&param.Miss)
	hit := convRegion(&param.HitGroup)
	C.cmdTraceRays(cb.cb, &rgen, &miss, &hit, &call,
		C.uint32_t(param.Width), C.uint32_t(param.Height), C.uint32_t(max(1, param.Depth)))
}

// convRegion converts a driver.ShaderRegion to a
// VkStridedDeviceAddressRegionKHR.
func convRegion(r *driver.ShaderRegion) C.VkStridedDeviceAddressRegionKHR {
	if r.Buf == nil {
		return C.VkStridedDeviceAddressRegionKHR{}
	}
	return C.VkStridedDeviceAddressRegionKHR{
		deviceAddress: C.VkDeviceAddress(r.Buf.Address() + uint64(r.Off)),
		stride:        C.VkDeviceSize(r.Stride),
		size:          C.VkDeviceSize(r.Size),
	}
}

// BuildAccel records an acceleration structure build.
func (cb *cmdBuffer) BuildAccel(param *driver.AccelBuild) {
	geom := (*C.VkAccelerationStructureGeometryKHR)(C.malloc(C.sizeof_VkAccelerationStructureGeometryKHR))
	defer C.free(unsafe.Pointer(geom))
	info := buildInfo(&param.Geometry, geom)
	info.dstAccelerationStructure = param.Dst.(*accelStruct).as
	addr := param.Scratch.Address() + uint64(param.ScratchOff)
	*(*C.VkDeviceAddress)(unsafe.Pointer(&info.scratchData)) = C.VkDeviceAddress(addr)
	rng := C.VkAccelerationStructureBuildRangeInfoKHR{
		primitiveCount: C.uint32_t(param.Geometry.Count),
	}
	C.cmdBuildAccel(cb.cb, &info, &rng)
}
