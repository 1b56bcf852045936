// This file is part of Testkit project, available at https://github.com/qrdl/testkit
// Copyright (c) 2024-2026 Ilya Caramishev. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build (linux || dragonfly || freebsd || netbsd || openbsd) && (amd64 || arm64)

package patch

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestSinglePage(t *testing.T) {
	ptr, size := calcBoundaries(unsafe.Pointer(uintptr(0x10)), 0x10)
	assert.Equal(t, unsafe.Pointer(uintptr(0x00)), ptr, "incorrect page start")
	assert.Equal(t, uintptr(0x20), size)
}

func TestEndOfPage(t *testing.T) {
	pageSize := uintptr(os.Getpagesize())

	ptr, size := calcBoundaries(unsafe.Pointer(pageSize-uintptr(0x10)), 0x10)
	assert.Equal(t, unsafe.Pointer(uintptr(0x00)), ptr, "incorrect page start")
	assert.Equal(t, pageSize, size)
}

func TestTwoPages(t *testing.T) {
	pageSize := uintptr(os.Getpagesize())

	ptr, size := calcBoundaries(unsafe.Pointer(pageSize-0x4), 0x10)
	assert.Equal(t, unsafe.Pointer(uintptr(0x00)), ptr, "incorrect page start")
	assert.Equal(t, pageSize+0x10-0x4, size)
}
