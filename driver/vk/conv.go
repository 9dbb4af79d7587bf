// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

// #include "rtproc.h"
import "C"

import (
	"github.com/gviegas/rtframe/driver"
)

// convSync converts a driver.Sync to a VkPipelineStageFlags.
func convSync(s driver.Sync) (flags C.VkPipelineStageFlags) {
	if s == driver.SNone {
		return C.VK_PIPELINE_STAGE_TOP_OF_PIPE_BIT
	}
	if s&driver.SAll != 0 {
		return C.VK_PIPELINE_STAGE_ALL_COMMANDS_BIT
	}
	if s&driver.STop != 0 {
		flags |= C.VK_PIPELINE_STAGE_TOP_OF_PIPE_BIT
	}
	if s&driver.SComputeShading != 0 {
		flags |= C.VK_PIPELINE_STAGE_COMPUTE_SHADER_BIT
	}
	if s&driver.SRayTracing != 0 {
		flags |= C.VK_PIPELINE_STAGE_RAY_TRACING_SHADER_BIT_KHR
	}
	if s&driver.SAccelBuild != 0 {
		flags |= C.VK_PIPELINE_STAGE_ACCELERATION_STRUCTURE_BUILD_BIT_KHR
	}
	if s&driver.SColorOutput != 0 {
		flags |= C.VK_PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT
	}
	if s&driver.SCopy != 0 {
		flags |= C.VK_PIPELINE_STAGE_TRANSFER_BIT
	}
	if s&driver.SHost != 0 {
		flags |= C.VK_PIPELINE_STAGE_HOST_BIT
	}
	if s&driver.SBottom != 0 {
		flags |= C.VK_PIPELINE_STAGE_BOTTOM_OF_PIPE_BIT
	}
	return
}

// convAccess converts a driver.Access to a VkAccessFlags.
func convAccess(a driver.Access) (flags C.VkAccessFlags) {
	if a&driver.AShaderRead != 0 {
		flags |= C.VK_ACCESS_SHADER_READ_BIT
	}
	if a&driver.AShaderWrite != 0 {
		flags |= C.VK_ACCESS_SHADER_WRITE_BIT
	}
	if a&driver.AConstantRead != 0 {
		flags |= C.VK_ACCESS_UNIFORM_READ_BIT
	}
	if a&driver.AAccelRead != 0 {
		flags |= C.VK_ACCESS_ACCELERATION_STRUCTURE_READ_BIT_KHR
	}
	if a&driver.AAccelWrite != 0 {
		flags |= C.VK_ACCESS_ACCELERATION_STRUCTURE_WRITE_BIT_KHR
	}
	if a&driver.ACopyRead != 0 {
		flags |= C.VK_ACCESS_TRANSFER_READ_BIT
	}
	if a&driver.ACopyWrite != 0 {
		flags |= C.VK_ACCESS_TRANSFER_WRITE_BIT
	}
	if a&driver.AHostWrite != 0 {
		flags |= C.VK_ACCESS_HOST_WRITE_BIT
	}
	if a&driver.AAnyRead != 0 {
		flags |= C.VK_ACCESS_MEMORY_READ_BIT
	}
	if a&driver.AAnyWrite != 0 {
		flags |= C.VK_ACCESS_MEMORY_WRITE_BIT
	}
	return
}

// convLayout converts a driver.Layout to a VkImageLayout.
func convLayout(l driver.Layout) C.VkImageLayout {
	switch l {
	case driver.LCommon:
		return C.VK_IMAGE_LAYOUT_GENERAL
	case driver.LShaderRead:
		return C.VK_IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL
	case driver.LCopySrc:
		return C.VK_IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL
	case driver.LCopyDst:
		return C.VK_IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL
	case driver.LPresent:
		return C.VK_IMAGE_LAYOUT_PRESENT_SRC_KHR
	}
	return C.VK_IMAGE_LAYOUT_UNDEFINED
}

// convStage converts a driver.Stage to a VkShaderStageFlags.
func convStage(stg driver.Stage) (flags C.VkShaderStageFlags) {
	if stg&driver.SCompute != 0 {
		flags |= C.VK_SHADER_STAGE_COMPUTE_BIT
	}
	if stg&driver.SRayGen != 0 {
		flags |= C.VK_SHADER_STAGE_RAYGEN_BIT_KHR
	}
	if stg&driver.SMiss != 0 {
		flags |= C.VK_SHADER_STAGE_MISS_BIT_KHR
	}
	if stg&driver.SClosestHit != 0 {
		flags |= C.VK_SHADER_STAGE_CLOSEST_HIT_BIT_KHR
	}
	if stg&driver.SAnyHit != 0 {
		flags |= C.VK_SHADER_STAGE_ANY_HIT_BIT_KHR
	}
	if stg&driver.SIntersection != 0 {
		flags |= C.VK_SHADER_STAGE_INTERSECTION_BIT_KHR
	}
	return
}

// convShaderIndex converts a shader index of a
// driver.ShaderGroup to a Vulkan shader index.
func convShaderIndex(i int) C.uint32_t {
	if i == driver.NoShader {
		return C.VK_SHADER_UNUSED_KHR
	}
	return C.uint32_t(i)
}
