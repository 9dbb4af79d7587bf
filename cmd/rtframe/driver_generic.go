// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux || windows

package main

import (
	_ "github.com/gviegas/rtframe/driver/vk"
)
