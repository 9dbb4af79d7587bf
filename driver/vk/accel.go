// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"unsafe"

	"github.com/gviegas/rtframe/driver"
)

// accelStruct implements driver.AccelStruct.
type accelStruct struct {
	d      *Driver
	buf    driver.Buffer
	as     C.VkAccelerationStructureKHR
	typ    driver.AccelType
	handle uint64
}

// buildInfo fills geom from g and returns build geometry
// info referring to it.
// geom must point to C memory.
func buildInfo(g *driver.AccelGeometry, geom *C.VkAccelerationStructureGeometryKHR) C.VkAccelerationStructureBuildGeometryInfoKHR {
	*geom = C.VkAccelerationStructureGeometryKHR{
		sType: C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR,
	}
	if g.Opaque {
		geom.flags = C.VK_GEOMETRY_OPAQUE_BIT_KHR
	}
	var addr uint64
	if g.Data != nil {
		addr = g.Data.Address() + uint64(g.Off)
	}
	var typ C.VkAccelerationStructureTypeKHR
	switch g.Type {
	case driver.BottomLevel:
		typ = C.VK_ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL_KHR
		geom.geometryType = C.VK_GEOMETRY_TYPE_AABBS_KHR
		aabbs := (*C.VkAccelerationStructureGeometryAabbsDataKHR)(unsafe.Pointer(&geom.geometry))
		*aabbs = C.VkAccelerationStructureGeometryAabbsDataKHR{
			sType:  C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_AABBS_DATA_KHR,
			stride: driver.AABBSize,
		}
		*(*C.VkDeviceAddress)(unsafe.Pointer(&aabbs.data)) = C.VkDeviceAddress(addr)
	case driver.TopLevel:
		typ = C.VK_ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL_KHR
		geom.geometryType = C.VK_GEOMETRY_TYPE_INSTANCES_KHR
		insts := (*C.VkAccelerationStructureGeometryInstancesDataKHR)(unsafe.Pointer(&geom.geometry))
		*insts = C.VkAccelerationStructureGeometryInstancesDataKHR{
			sType:           C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_INSTANCES_DATA_KHR,
			arrayOfPointers: C.VK_FALSE,
		}
		*(*C.VkDeviceAddress)(unsafe.Pointer(&insts.data)) = C.VkDeviceAddress(addr)
	}
	return C.VkAccelerationStructureBuildGeometryInfoKHR{
		sType:         C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR,
		_type:         typ,
		flags:         C.VK_BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT_KHR,
		mode:          C.VK_BUILD_ACCELERATION_STRUCTURE_MODE_BUILD_KHR,
		geometryCount: 1,
		pGeometries:   geom,
	}
}

// AccelSizes queries the memory requirements of an
// acceleration structure.
func (d *Driver) AccelSizes(g *driver.AccelGeometry) (driver.AccelSizes, error) {
	geom := (*C.VkAccelerationStructureGeometryKHR)(C.malloc(C.sizeof_VkAccelerationStructureGeometryKHR))
	defer C.free(unsafe.Pointer(geom))
	gc := *g
	gc.Data = nil
	info := buildInfo(&gc, geom)
	sizes := C.VkAccelerationStructureBuildSizesInfoKHR{
		sType: C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_SIZES_INFO_KHR,
	}
	C.getAccelerationStructureBuildSizes(d.dev, &info, C.uint32_t(g.Count), &sizes)
	return driver.AccelSizes{
		Storage:      int64(sizes.accelerationStructureSize),
		BuildScratch: int64(sizes.buildScratchSize),
	}, nil
}

// NewAccelStruct creates a new acceleration structure
// backed by a dedicated buffer.
func (d *Driver) NewAccelStruct(typ driver.AccelType, size int64) (driver.AccelStruct, error) {
	buf, err := d.NewBuffer(size, false, driver.UAccelStorage)
	if err != nil {
		return nil, err
	}
	info := C.VkAccelerationStructureCreateInfoKHR{
		sType:  C.VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_CREATE_INFO_KHR,
		buffer: buf.(*buffer).buf,
		size:   C.VkDeviceSize(size),
		_type:  C.VK_ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL_KHR,
	}
	if typ == driver.TopLevel {
		info._type = C.VK_ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL_KHR
	}
	var as C.VkAccelerationStructureKHR
	if err := checkResult("vkCreateAccelerationStructureKHR", C.createAccelerationStructure(d.dev, &info, &as)); err != nil {
		buf.Destroy()
		return nil, err
	}
	return &accelStruct{
		d:      d,
		buf:    buf,
		as:     as,
		typ:    typ,
		handle: uint64(C.getAccelerationStructureDeviceAddress(d.dev, as)),
	}, nil
}

// Type returns the structure's type.
func (a *accelStruct) Type() driver.AccelType { return a.typ }

// Handle returns the structure's device address.
func (a *accelStruct) Handle() uint64 { return a.handle }

// Destroy destroys the acceleration structure and its
// backing buffer.
func (a *accelStruct) Destroy() {
	if a == nil {
		return
	}
	if a.d != nil {
		C.destroyAccelerationStructure(a.d.dev, a.as)
		a.buf.Destroy()
	}
	*a = accelStruct{}
}
