// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"errors"
	"unsafe"

	"github.com/gviegas/rtframe/driver"
)

// rtPipeline implements driver.RTPipeline.
type rtPipeline struct {
	d       *Driver
	pl      C.VkPipeline
	layout  C.VkPipelineLayout
	dlayout C.VkDescriptorSetLayout
	pool    C.VkDescriptorPool
	sets    []C.VkDescriptorSet
	desc    []driver.Descriptor
	ngrp    int
}

// NewRTPipeline creates a new ray tracing pipeline.
func (d *Driver) NewRTPipeline(state *driver.RTState) (driver.RTPipeline, error) {
	if state.MaxRecursion > d.rtlim.MaxRecursion {
		return nil, errors.New("vk: ray recursion depth exceeds device limit")
	}
	p := &rtPipeline{
		d:    d,
		desc: state.Desc,
		ngrp: len(state.Groups),
	}
	if err := p.initDesc(state.DescCopies); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.initPipeline(state); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// initDesc creates the descriptor set layout, the pipeline
// layout and n copies of the descriptor set.
func (p *rtPipeline) initDesc(n int) error {
	nd := len(p.desc)
	var binds *C.VkDescriptorSetLayoutBinding
	if nd > 0 {
		binds = (*C.VkDescriptorSetLayoutBinding)(C.malloc(C.size_t(nd) * C.sizeof_VkDescriptorSetLayoutBinding))
		defer C.free(unsafe.Pointer(binds))
	}
	counts := map[C.VkDescriptorType]int{}
	bs := unsafe.Slice(binds, nd)
	for i := range bs {
		for j := i + 1; j < nd; j++ {
			if p.desc[i].Nr == p.desc[j].Nr {
				return errors.New("vk: descriptor number is not unique")
			}
		}
		typ := descType(p.desc[i].Type)
		counts[typ]++
		bs[i] = C.VkDescriptorSetLayoutBinding{
			binding:         C.uint32_t(p.desc[i].Nr),
			descriptorType:  typ,
			descriptorCount: 1,
			stageFlags:      convStage(p.desc[i].Stages),
		}
	}
	dlInfo := C.VkDescriptorSetLayoutCreateInfo{
		sType:        C.VK_STRUCTURE_TYPE_DESCRIPTOR_SET_LAYOUT_CREATE_INFO,
		bindingCount: C.uint32_t(nd),
		pBindings:    binds,
	}
	if err := checkResult("vkCreateDescriptorSetLayout", C.vkCreateDescriptorSetLayout(p.d.dev, &dlInfo, nil, &p.dlayout)); err != nil {
		return err
	}
	dl := (*C.VkDescriptorSetLayout)(C.malloc(C.sizeof_VkDescriptorSetLayout * C.size_t(max(1, n))))
	defer C.free(unsafe.Pointer(dl))
	*dl = p.dlayout
	plInfo := C.VkPipelineLayoutCreateInfo{
		sType:          C.VK_STRUCTURE_TYPE_PIPELINE_LAYOUT_CREATE_INFO,
		setLayoutCount: 1,
		pSetLayouts:    dl,
	}
	if err := checkResult("vkCreatePipelineLayout", C.vkCreatePipelineLayout(p.d.dev, &plInfo, nil, &p.layout)); err != nil {
		return err
	}
	if n == 0 || nd == 0 {
		return nil
	}

	sizes := (*C.VkDescriptorPoolSize)(C.malloc(C.size_t(len(counts)) * C.sizeof_VkDescriptorPoolSize))
	defer C.free(unsafe.Pointer(sizes))
	ss := unsafe.Slice(sizes, len(counts))
	i := 0
	for typ, cnt := range counts {
		ss[i] = C.VkDescriptorPoolSize{
			_type:           typ,
			descriptorCount: C.uint32_t(cnt * n),
		}
		i++
	}
	poolInfo := C.VkDescriptorPoolCreateInfo{
		sType:         C.VK_STRUCTURE_TYPE_DESCRIPTOR_POOL_CREATE_INFO,
		maxSets:       C.uint32_t(n),
		poolSizeCount: C.uint32_t(len(ss)),
		pPoolSizes:    sizes,
	}
	if err := checkResult("vkCreateDescriptorPool", C.vkCreateDescriptorPool(p.d.dev, &poolInfo, nil, &p.pool)); err != nil {
		return err
	}
	dls := unsafe.Slice(dl, n)
	for i := range dls {
		dls[i] = p.dlayout
	}
	setInfo := C.VkDescriptorSetAllocateInfo{
		sType:              C.VK_STRUCTURE_TYPE_DESCRIPTOR_SET_ALLOCATE_INFO,
		descriptorPool:     p.pool,
		descriptorSetCount: C.uint32_t(n),
		pSetLayouts:        dl,
	}
	sets := (*C.VkDescriptorSet)(C.malloc(C.size_t(n) * C.sizeof_VkDescriptorSet))
	defer C.free(unsafe.Pointer(sets))
	if err := checkResult("vkAllocateDescriptorSets", C.vkAllocateDescriptorSets(p.d.dev, &setInfo, sets)); err != nil {
		return err
	}
	p.sets = make([]C.VkDescriptorSet, n)
	copy(p.sets, unsafe.Slice(sets, n))
	return nil
}

// initPipeline creates the pipeline object.
func (p *rtPipeline) initPipeline(state *driver.RTState) error {
	ns := len(state.Stages)
	ng := len(state.Groups)
	if ns == 0 || ng == 0 {
		return errors.New("vk: ray tracing pipeline has no stages")
	}
	stgs := (*C.VkPipelineShaderStageCreateInfo)(C.malloc(C.size_t(ns) * C.sizeof_VkPipelineShaderStageCreateInfo))
	defer C.free(unsafe.Pointer(stgs))
	names := make([]*C.char, ns)
	defer func() {
		for _, s := range names {
			C.free(unsafe.Pointer(s))
		}
	}()
	ss := unsafe.Slice(stgs, ns)
	for i := range ss {
		names[i] = C.CString(state.Stages[i].Func.Name)
		ss[i] = C.VkPipelineShaderStageCreateInfo{
			sType:  C.VK_STRUCTURE_TYPE_PIPELINE_SHADER_STAGE_CREATE_INFO,
			stage:  C.VkShaderStageFlagBits(convStage(state.Stages[i].Stage)),
			module: state.Stages[i].Func.Code.(*shaderCode).mod,
			pName:  names[i],
		}
	}
	grps := (*C.VkRayTracingShaderGroupCreateInfoKHR)(C.malloc(C.size_t(ng) * C.sizeof_VkRayTracingShaderGroupCreateInfoKHR))
	defer C.free(unsafe.Pointer(grps))
	gs := unsafe.Slice(grps, ng)
	for i, g := range state.Groups {
		var typ C.VkRayTracingShaderGroupTypeKHR
		switch g.Type {
		case driver.GGeneral:
			typ = C.VK_RAY_TRACING_SHADER_GROUP_TYPE_GENERAL_KHR
		case driver.GTriangles:
			typ = C.VK_RAY_TRACING_SHADER_GROUP_TYPE_TRIANGLES_HIT_GROUP_KHR
		case driver.GProcedural:
			typ = C.VK_RAY_TRACING_SHADER_GROUP_TYPE_PROCEDURAL_HIT_GROUP_KHR
		}
		gs[i] = C.VkRayTracingShaderGroupCreateInfoKHR{
			sType:              C.VK_STRUCTURE_TYPE_RAY_TRACING_SHADER_GROUP_CREATE_INFO_KHR,
			_type:              typ,
			generalShader:      convShaderIndex(g.General),
			closestHitShader:   convShaderIndex(g.ClosestHit),
			anyHitShader:       convShaderIndex(g.AnyHit),
			intersectionShader: convShaderIndex(g.Intersection),
		}
	}
	info := C.VkRayTracingPipelineCreateInfoKHR{
		sType:                        C.VK_STRUCTURE_TYPE_RAY_TRACING_PIPELINE_CREATE_INFO_KHR,
		stageCount:                   C.uint32_t(ns),
		pStages:                      stgs,
		groupCount:                   C.uint32_t(ng),
		pGroups:                      grps,
		maxPipelineRayRecursionDepth: C.uint32_t(max(1, state.MaxRecursion)),
		layout:                       p.layout,
	}
	return checkResult("vkCreateRayTracingPipelinesKHR", C.createRayTracingPipeline(p.d.dev, &info, &p.pl))
}

// GroupCount returns the number of shader groups.
func (p *rtPipeline) GroupCount() int { return p.ngrp }

// GroupHandles returns the shader group handles.
func (p *rtPipeline) GroupHandles() ([]byte, error) {
	n := int(p.d.rtlim.HandleSize) * p.ngrp
	data := C.malloc(C.size_t(n))
	defer C.free(data)
	res := C.getRayTracingShaderGroupHandles(p.d.dev, p.pl, 0, C.uint32_t(p.ngrp), C.size_t(n), data)
	if err := checkResult("vkGetRayTracingShaderGroupHandlesKHR", res); err != nil {
		return nil, err
	}
	return C.GoBytes(data, C.int(n)), nil
}

// DescCopies returns the number of descriptor set copies.
func (p *rtPipeline) DescCopies() int { return len(p.sets) }

// SetAccel updates an acceleration structure descriptor.
func (p *rtPipeline) SetAccel(cpy, nr int, as driver.AccelStruct) {
	h := (*C.VkAccelerationStructureKHR)(C.malloc(C.sizeof_VkAccelerationStructureKHR))
	defer C.free(unsafe.Pointer(h))
	*h = as.(*accelStruct).as
	ext := (*C.VkWriteDescriptorSetAccelerationStructureKHR)(C.malloc(C.sizeof_VkWriteDescriptorSetAccelerationStructureKHR))
	defer C.free(unsafe.Pointer(ext))
	*ext = C.VkWriteDescriptorSetAccelerationStructureKHR{
		sType:                      C.VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET_ACCELERATION_STRUCTURE_KHR,
		accelerationStructureCount: 1,
		pAccelerationStructures:    h,
	}
	p.write(cpy, nr, C.VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR, unsafe.Pointer(ext), nil, nil)
}

// SetImage updates a storage image descriptor.
func (p *rtPipeline) SetImage(cpy, nr int, iv driver.ImageView) {
	ii := (*C.VkDescriptorImageInfo)(C.malloc(C.sizeof_VkDescriptorImageInfo))
	defer C.free(unsafe.Pointer(ii))
	*ii = C.VkDescriptorImageInfo{
		imageView:   iv.(*imageView).view,
		imageLayout: C.VK_IMAGE_LAYOUT_GENERAL,
	}
	p.write(cpy, nr, C.VK_DESCRIPTOR_TYPE_STORAGE_IMAGE, nil, ii, nil)
}

// SetConstant updates a uniform buffer descriptor.
func (p *rtPipeline) SetConstant(cpy, nr int, buf driver.Buffer, off, size int64) {
	bi := (*C.VkDescriptorBufferInfo)(C.malloc(C.sizeof_VkDescriptorBufferInfo))
	defer C.free(unsafe.Pointer(bi))
	*bi = C.VkDescriptorBufferInfo{
		buffer: buf.(*buffer).buf,
		offset: C.VkDeviceSize(off),
		_range: C.VkDeviceSize(size),
	}
	p.write(cpy, nr, C.VK_DESCRIPTOR_TYPE_UNIFORM_BUFFER, nil, nil, bi)
}

// write updates a single descriptor of set copy cpy.
func (p *rtPipeline) write(cpy, nr int, typ C.VkDescriptorType, next unsafe.Pointer, ii *C.VkDescriptorImageInfo, bi *C.VkDescriptorBufferInfo) {
	wr := (*C.VkWriteDescriptorSet)(C.malloc(C.sizeof_VkWriteDescriptorSet))
	defer C.free(unsafe.Pointer(wr))
	*wr = C.VkWriteDescriptorSet{
		sType:           C.VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET,
		pNext:           next,
		dstSet:          p.sets[cpy],
		dstBinding:      C.uint32_t(nr),
		descriptorCount: 1,
		descriptorType:  typ,
		pImageInfo:      ii,
		pBufferInfo:     bi,
	}
	C.vkUpdateDescriptorSets(p.d.dev, 1, wr, 0, nil)
}

// Destroy destroys the pipeline and its descriptors.
func (p *rtPipeline) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		dev := p.d.dev
		if p.pl != nil {
			C.vkDestroyPipeline(dev, p.pl, nil)
		}
		if p.pool != nil {
			C.vkDestroyDescriptorPool(dev, p.pool, nil)
		}
		if p.layout != nil {
			C.vkDestroyPipelineLayout(dev, p.layout, nil)
		}
		if p.dlayout != nil {
			C.vkDestroyDescriptorSetLayout(dev, p.dlayout, nil)
		}
	}
	*p = rtPipeline{}
}

// descType converts a driver.DescType to a VkDescriptorType.
func descType(t driver.DescType) C.VkDescriptorType {
	switch t {
	case driver.DBuffer:
		return C.VK_DESCRIPTOR_TYPE_STORAGE_BUFFER
	case driver.DImage:
		return C.VK_DESCRIPTOR_TYPE_STORAGE_IMAGE
	case driver.DConstant:
		return C.VK_DESCRIPTOR_TYPE_UNIFORM_BUFFER
	case driver.DAccel:
		return C.VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR
	}
	panic("unexpected descriptor type")
}
