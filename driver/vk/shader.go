// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include "rtproc.h"
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gviegas/rtframe/driver"
)

// shaderCode implements driver.ShaderCode.
type shaderCode struct {
	d   *Driver
	mod C.VkShaderModule
}

// spirvMagic is the first word of every SPIR-V module,
// in host order.
const spirvMagic = 0x07230203

// NewShaderCode creates a shader module from SPIR-V
// code.
func (d *Driver) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	n := len(data)
	if n < 4 || n&3 != 0 {
		return nil, fmt.Errorf("vk: invalid SPIR-V code size (%d bytes)", n)
	}
	p := C.malloc(C.size_t(n))
	defer C.free(p)
	words := unsafe.Slice((*uint32)(p), n/4)
	copy(unsafe.Slice((*byte)(p), n), data)
	if words[0] != spirvMagic {
		return nil, errors.New("vk: invalid SPIR-V magic number")
	}
	info := C.VkShaderModuleCreateInfo{
		sType:    C.VK_STRUCTURE_TYPE_SHADER_MODULE_CREATE_INFO,
		codeSize: C.size_t(n),
		pCode:    (*C.uint32_t)(p),
	}
	c := &shaderCode{d: d}
	if err := checkResult("vkCreateShaderModule", C.vkCreateShaderModule(d.dev, &info, nil, &c.mod)); err != nil {
		return nil, err
	}
	return c, nil
}

// Destroy destroys the shader code.
func (c *shaderCode) Destroy() {
	if c == nil {
		return
	}
	if c.d != nil {
		C.vkDestroyShaderModule(c.d.dev, c.mod, nil)
	}
	*c = shaderCode{}
}
