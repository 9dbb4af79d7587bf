// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

var keymap = map[glfw.Key]Key{
	glfw.KeyEscape: KeyEsc,
	glfw.KeySpace:  KeySpace,
	glfw.KeyR:      KeyR,
	glfw.KeyW:      KeyW,
	glfw.KeyA:      KeyA,
	glfw.KeyS:      KeyS,
	glfw.KeyD:      KeyD,
	glfw.KeyQ:      KeyQ,
	glfw.KeyE:      KeyE,
}

// keyFrom returns the Key value that represents a GLFW
// key code.
func keyFrom(code glfw.Key) Key {
	if k, ok := keymap[code]; ok {
		return k
	}
	return KeyUnknown
}
