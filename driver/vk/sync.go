// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"time"
	"unsafe"

	"github.com/gviegas/rtframe/driver"
)

// fence implements driver.Fence.
type fence struct {
	d *Driver
	f C.VkFence
}

// NewFence creates a new fence.
func (d *Driver) NewFence(signaled bool) (driver.Fence, error) {
	info := C.VkFenceCreateInfo{
		sType: C.VK_STRUCTURE_TYPE_FENCE_CREATE_INFO,
	}
	if signaled {
		info.flags = C.VK_FENCE_CREATE_SIGNALED_BIT
	}
	var f C.VkFence
	if err := checkResult("vkCreateFence", C.vkCreateFence(d.dev, &info, nil, &f)); err != nil {
		return nil, err
	}
	return &fence{d: d, f: f}, nil
}

// Wait waits for the fence to be signaled.
func (f *fence) Wait(timeout time.Duration) error {
	ns := C.uint64_t(C.UINT64_MAX)
	if timeout != driver.Infinite {
		ns = C.uint64_t(timeout.Nanoseconds())
	}
	res := C.vkWaitForFences(f.d.dev, 1, &f.f, C.VK_TRUE, ns)
	if res == C.VK_TIMEOUT {
		return &driver.OpError{Op: "vkWaitForFences", Code: int(res), Err: driver.ErrTimeout}
	}
	return checkResult("vkWaitForFences", res)
}

// Reset resets the fence.
func (f *fence) Reset() error {
	return checkResult("vkResetFences", C.vkResetFences(f.d.dev, 1, &f.f))
}

// Signaled returns whether the fence is signaled.
func (f *fence) Signaled() (bool, error) {
	res := C.vkGetFenceStatus(f.d.dev, f.f)
	if res == C.VK_NOT_READY {
		return false, nil
	}
	if err := checkResult("vkGetFenceStatus", res); err != nil {
		return false, err
	}
	return true, nil
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil {
		return
	}
	if f.d != nil {
		C.vkDestroyFence(f.d.dev, f.f, nil)
	}
	*f = fence{}
}

// semaphore implements driver.Semaphore.
type semaphore struct {
	d   *Driver
	sem C.VkSemaphore
}

// NewSemaphore creates a new binary semaphore.
func (d *Driver) NewSemaphore() (driver.Semaphore, error) {
	info := C.VkSemaphoreCreateInfo{
		sType: C.VK_STRUCTURE_TYPE_SEMAPHORE_CREATE_INFO,
	}
	var sem C.VkSemaphore
	if err := checkResult("vkCreateSemaphore", C.vkCreateSemaphore(d.dev, &info, nil, &sem)); err != nil {
		return nil, err
	}
	return &semaphore{d: d, sem: sem}, nil
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		C.vkDestroySemaphore(s.d.dev, s.sem, nil)
	}
	*s = semaphore{}
}

// Submit submits work to the device's queue.
func (d *Driver) Submit(s *driver.Submission) error {
	if len(s.Wait) != len(s.WaitSync) {
		panic("vk: mismatched wait semaphores and stages")
	}
	info := (*C.VkSubmitInfo)(C.malloc(C.sizeof_VkSubmitInfo))
	defer C.free(unsafe.Pointer(info))
	*info = C.VkSubmitInfo{
		sType:                C.VK_STRUCTURE_TYPE_SUBMIT_INFO,
		waitSemaphoreCount:   C.uint32_t(len(s.Wait)),
		commandBufferCount:   C.uint32_t(len(s.Work)),
		signalSemaphoreCount: C.uint32_t(len(s.Signal)),
	}
	if n := len(s.Work); n > 0 {
		p := (*C.VkCommandBuffer)(C.malloc(C.size_t(n) * C.sizeof_VkCommandBuffer))
		defer C.free(unsafe.Pointer(p))
		cbs := unsafe.Slice(p, n)
		for i := range cbs {
			cbs[i] = s.Work[i].(*cmdBuffer).cb
		}
		info.pCommandBuffers = p
	}
	if n := len(s.Wait); n > 0 {
		p := (*C.VkSemaphore)(C.malloc(C.size_t(n) * C.sizeof_VkSemaphore))
		defer C.free(unsafe.Pointer(p))
		q := (*C.VkPipelineStageFlags)(C.malloc(C.size_t(n) * C.sizeof_VkPipelineStageFlags))
		defer C.free(unsafe.Pointer(q))
		sems := unsafe.Slice(p, n)
		stgs := unsafe.Slice(q, n)
		for i := range sems {
			sems[i] = s.Wait[i].(*semaphore).sem
			stgs[i] = convSync(s.WaitSync[i])
		}
		info.pWaitSemaphores = p
		info.pWaitDstStageMask = q
	}
	if n := len(s.Signal); n > 0 {
		p := (*C.VkSemaphore)(C.malloc(C.size_t(n) * C.sizeof_VkSemaphore))
		defer C.free(unsafe.Pointer(p))
		sems := unsafe.Slice(p, n)
		for i := range sems {
			sems[i] = s.Signal[i].(*semaphore).sem
		}
		info.pSignalSemaphores = p
	}
	var f C.VkFence
	if s.Fence != nil {
		f = s.Fence.(*fence).f
	}
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return checkResult("vkQueueSubmit", C.vkQueueSubmit(d.que, 1, info, f))
}
